// Package imagestore manages the processed garment PNGs on disk, split
// into a temp directory for staged items and a permanent directory for
// confirmed ones. Files are named {id}.png in both.
package imagestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store holds the two image directories.
type Store struct {
	tempDir string
	permDir string
}

// New creates a Store, creating both directories if needed.
func New(tempDir, permDir string) (*Store, error) {
	for _, dir := range []string{tempDir, permDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating image directory %s: %w", dir, err)
		}
	}
	return &Store{tempDir: tempDir, permDir: permDir}, nil
}

// TempPath returns the on-disk path for a staged image.
func (s *Store) TempPath(tempID string) string {
	return filepath.Join(s.tempDir, tempID+".png")
}

// PermanentPath returns the on-disk path for a confirmed image.
func (s *Store) PermanentPath(id string) string {
	return filepath.Join(s.permDir, id+".png")
}

// SaveTemp writes a staged image and returns its path.
func (s *Store) SaveTemp(tempID string, data []byte) (string, error) {
	path := s.TempPath(tempID)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("saving temp image: %w", err)
	}
	return path, nil
}

// SavePermanent writes a confirmed image directly, used when the staged
// copy is no longer on disk.
func (s *Store) SavePermanent(id string, data []byte) (string, error) {
	path := s.PermanentPath(id)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("saving permanent image: %w", err)
	}
	return path, nil
}

// Promote moves a staged image into the permanent directory under the
// allocated catalog ID. It prefers an atomic rename; when the two
// directories sit on different filesystems it falls back to
// copy-then-delete. Returns the permanent path.
func (s *Store) Promote(tempID, id string) (string, error) {
	src := s.TempPath(tempID)
	dst := s.PermanentPath(id)

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	} else if os.IsNotExist(err) {
		return "", fmt.Errorf("promoting image: %w", err)
	}

	// Cross-device fallback: non-atomic, but the copy completes before
	// the temp file disappears.
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("promoting image: %w", err)
	}
	os.Remove(src)
	return dst, nil
}

// Demote moves a permanent image back into the temp directory. Used to
// roll back a promotion whose catalog insert failed.
func (s *Store) Demote(id, tempID string) error {
	if err := os.Rename(s.PermanentPath(id), s.TempPath(tempID)); err != nil {
		return fmt.Errorf("demoting image: %w", err)
	}
	return nil
}

// DeleteTemp removes a staged image. Returns false if it did not exist.
func (s *Store) DeleteTemp(tempID string) (bool, error) {
	return remove(s.TempPath(tempID))
}

// DeletePermanent removes a confirmed image. Returns false if it did not exist.
func (s *Store) DeletePermanent(id string) (bool, error) {
	return remove(s.PermanentPath(id))
}

func remove(path string) (bool, error) {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing image: %w", err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
