package fleet

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cuemby/colony/pkg/types"
)

// UploadFile uploads the local file at path under key
func (c *Controller) UploadFile(ctx context.Context, path, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return c.deps.Objects.Put(ctx, key, path)
}

// UploadWorkerProgram uploads the program every new instance downloads at boot
func (c *Controller) UploadWorkerProgram(ctx context.Context, path string) error {
	return c.UploadFile(ctx, path, c.cfg.WorkerKey)
}

// DownloadFile fetches key into the files directory and returns the local path
func (c *Controller) DownloadFile(ctx context.Context, key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	dest := filepath.Join(c.cfg.FilesDir, key)
	if err := c.deps.Objects.Get(ctx, key, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// validKey rejects keys that would escape the files directory
func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return types.Errorf(types.ErrObjectStore, "key "+key, "invalid object key %q", key)
	}
	return nil
}
