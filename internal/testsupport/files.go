package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := min(int64(chunkSize), remaining)
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// Task is one entry of a task file as written by WriteTasks.
type Task struct {
	URL       string `json:"url"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// WriteTasks writes a task list JSON file into dir and returns its path.
func WriteTasks(t testing.TB, dir string, tasks ...Task) string {
	t.Helper()

	if tasks == nil {
		tasks = []Task{}
	}
	payload, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		t.Fatalf("marshal tasks: %v", err)
	}
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write tasks: %v", err)
	}
	return path
}
