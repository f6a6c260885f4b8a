package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"urgify-core/internal/domain"
)

// FilesystemStore writes GDPR export artifacts as JSON files under a
// configured root directory, one file per data request.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a new filesystem artifact store
func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

// WriteExport marshals doc and writes it to a new artifact file. Any failure
// comes back as *domain.StorageWriteError; the caller must not ack the data
// request without this file existing.
func (s *FilesystemStore) WriteExport(customerID string, doc any) (string, error) {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return "", &domain.StorageWriteError{Path: s.root, Err: err}
	}

	name := fmt.Sprintf("customers-data-%s-%d.json", sanitize(customerID), time.Now().UnixMilli())
	path := filepath.Join(s.root, name)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", &domain.StorageWriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", &domain.StorageWriteError{Path: path, Err: err}
	}
	return path, nil
}

// Remove deletes one artifact file. A missing file surfaces as the
// fs.ErrNotExist-wrapping error from the OS so callers can treat it as
// already gone.
func (s *FilesystemStore) Remove(path string) error {
	return os.Remove(path)
}

// sanitize keeps artifact names safe when a customer id somehow contains
// path characters.
func sanitize(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
