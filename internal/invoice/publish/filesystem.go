package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type FilesystemPublisher struct {
	dir string
	log *zap.Logger
}

func NewFilesystemPublisher(dir string, log *zap.Logger) *FilesystemPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &FilesystemPublisher{dir: dir, log: log.Named("invoice.publish.fs")}
}

func (p *FilesystemPublisher) Backend() string { return BackendFilesystem }

// Publish writes doc to a temp file in the output directory and renames
// it into place, so readers only ever see complete documents.
func (p *FilesystemPublisher) Publish(ctx context.Context, name string, doc []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func(cause error) (string, error) {
		_ = tmp.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.log.Warn("remove temp document failed", zap.String("path", tmpPath), zap.Error(rmErr))
		}
		return "", cause
	}

	if _, err := tmp.Write(doc); err != nil {
		return cleanup(fmt.Errorf("write document: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync document: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("close document: %w", err))
	}

	target := filepath.Join(p.dir, name)
	if err := os.Rename(tmpPath, target); err != nil {
		return cleanup(fmt.Errorf("publish document: %w", err))
	}
	return target, nil
}

func (p *FilesystemPublisher) Exists(_ context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(p.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid document name %q", name)
	}
	return nil
}
