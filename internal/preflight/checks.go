package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckParentAccess verifies that path can be created: its parent directory
// must be writable.
func CheckParentAccess(name, path string) Result {
	parent := CheckDirectoryAccess(name, filepath.Dir(path))
	if !parent.Passed {
		return parent
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (parent writable)", path)}
}

// CheckScratchLock reports whether another run currently holds the scratch
// directory.
func CheckScratchLock(scratchDir string) Result {
	const name = "Scratch lock"
	lockPath := scratchDir + ".lock"
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: "idle"}
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryRLock()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("error: %v", err)}
	}
	if !ok {
		return Result{Name: name, Detail: "busy (a run is in progress)"}
	}
	_ = lock.Unlock()
	return Result{Name: name, Passed: true, Detail: "idle"}
}
