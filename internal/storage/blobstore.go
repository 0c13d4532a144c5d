// Package storage implements the content-addressed blob store backing
// uploaded documents and generated reports (spec.md §3, §4.2). Keys are
// deterministic paths under a root directory; there is no ecosystem library
// in the example pack for local blob storage, so this package is a thin,
// justified stdlib-only wrapper (see DESIGN.md).
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested key has no backing blob.
var ErrNotFound = errors.New("storage: blob not found")

// Store is a local filesystem content-addressed blob store rooted at Root.
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{Root: root}, nil
}

// DocumentKey returns the deterministic storage key for a case document.
func DocumentKey(caseID, documentID uuid.UUID, ext string) string {
	return filepath.Join("cases", caseID.String(), "docs", documentID.String()+ext)
}

// ReportKey returns the deterministic storage key for a case's PDF report
// (spec.md §3: `cases/{case_uuid}/reports/{report_id}.pdf`).
func ReportKey(caseID, reportID uuid.UUID) string {
	return filepath.Join("cases", caseID.String(), "reports", reportID.String()+".pdf")
}

// WriteStream copies src to the blob at key, returning the number of bytes
// written and the sha256 hex digest of the stored content.
func (s *Store) WriteStream(key string, src io.Reader) (size int64, contentHash string, err error) {
	full := filepath.Join(s.Root, filepath.Clean("/"+key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, "", fmt.Errorf("create blob dir: %w", err)
	}
	tmp := full + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", fmt.Errorf("open temp blob: %w", err)
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, hasher), src)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return 0, "", fmt.Errorf("commit blob: %w", err)
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// OpenStream opens the blob at key for reading. Callers must close it.
func (s *Store) OpenStream(key string) (io.ReadCloser, error) {
	full := filepath.Join(s.Root, filepath.Clean("/"+key))
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob at key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	full := filepath.Join(s.Root, filepath.Clean("/"+key))
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
