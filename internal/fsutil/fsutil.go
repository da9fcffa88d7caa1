package fsutil

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AtomicWrite writes data to path through a temp file in the same
// directory and a rename, so readers never see a truncated file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmp := f.Name()
	fail := func(err error, what string) error {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, what)
	}
	if _, err := f.Write(data); err != nil {
		return fail(err, "write")
	}
	if err := f.Sync(); err != nil {
		return fail(err, "sync")
	}
	if err := f.Chmod(perm); err != nil {
		return fail(err, "chmod")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename")
}
