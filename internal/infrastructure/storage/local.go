package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"visa-tracker/internal/domain"
)

// Local writes documents to a directory on disk.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Store(_ context.Context, data []byte, filename, contentType string) (domain.DocumentRef, error) {
	name, err := objectName(filename)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	path := filepath.Join(l.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.DocumentRef{}, err
	}
	return domain.DocumentRef{Provider: domain.ProviderLocal, Ref: path, ContentType: contentType}, nil
}

func (l *Local) Remove(_ context.Context, ref domain.DocumentRef) error {
	err := os.Remove(ref.Ref)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
