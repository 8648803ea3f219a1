// Package atomicfile replaces files without ever exposing a truncated version to readers.
package atomicfile

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// WriteFile writes data to a temp file next to path, syncs it and renames it over path.
// On the OS filesystem the parent directory is synced after the rename.
func WriteFile(fs afero.Fs, path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err = fs.Chmod(tmpName, perm); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err = fs.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to rename %s to %s", tmpName, path)
	}

	// the rename is only durable once the directory entry is on disk
	if _, ok := fs.(*afero.OsFs); ok {
		if err := syncDir(dir); err != nil {
			return errors.Wrapf(err, "failed to sync directory %s", dir)
		}
	}
	return nil
}

var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// WriteJSON encodes v with 4-space indentation and without HTML escaping, then writes it atomically.
func WriteJSON(fs afero.Fs, path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to marshal json")
	}
	return WriteFile(fs, path, buf.Bytes(), 0o644)
}
