package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MoveFile renames src to dst, falling back to a verified copy when the two
// paths live on different filesystems. dst is only ever observed complete.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, unix.EXDEV) {
		return err
	}

	partial := dst + ".partial"
	if err := CopyFileVerified(src, partial); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("cross-device copy: %w", err)
	}
	if err := os.Rename(partial, dst); err != nil {
		_ = os.Remove(partial)
		return err
	}
	_ = os.Remove(src)
	return nil
}

// WriteFileAtomic writes data to a sibling temp file and renames it over path.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// CopyFileVerified copies src to dst, syncs it, and re-reads dst to confirm
// its size and SHA-256 match the source. dst is removed on any failure.
func CopyFileVerified(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	srcHash := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHash))
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	dstSize, dstSum, err := hashFile(dst)
	if err != nil {
		return fmt.Errorf("verify copy: %w", err)
	}
	if dstSize != written {
		return fmt.Errorf("copy size mismatch: copied %d bytes, destination has %d", written, dstSize)
	}
	if !bytes.Equal(srcHash.Sum(nil), dstSum) {
		return errors.New("copy hash mismatch: destination differs from source")
	}
	return nil
}

func hashFile(path string) (int64, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, nil, err
	}
	return n, h.Sum(nil), nil
}
