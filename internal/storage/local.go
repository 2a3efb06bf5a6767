package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
)

// LocalStorage keeps files in a directory of an afero filesystem. Uploads are
// written to a temp dir first and renamed into place once fully validated.
type LocalStorage struct {
	fs      afero.Fs
	root    string
	tempDir string
	policy  Policy
}

func NewLocalStorage(fsys afero.Fs, root, tempDir string, policy Policy) (*LocalStorage, error) {
	if root == "" {
		return nil, apperr.InvalidArgument("storage location is required")
	}
	if tempDir == "" {
		tempDir = filepath.Join(root, ".tmp")
	}

	for _, dir := range []string{root, tempDir} {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "Could not initialize storage", err)
		}
	}

	return &LocalStorage{fs: fsys, root: root, tempDir: tempDir, policy: policy}, nil
}

func (s *LocalStorage) Store(ctx context.Context, r io.Reader, size int64, filename string) (string, error) {
	if err := s.policy.Check(filename, size); err != nil {
		return "", err
	}
	name, err := s.policy.Name(filename)
	if err != nil {
		return "", err
	}

	tmp, err := afero.TempFile(s.fs, s.tempDir, "upload-*")
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "Failed to store file", err)
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, io.LimitReader(r, s.policy.ReadLimit()))
	closeErr := tmp.Close()

	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil {
		copyErr = s.policy.CheckWritten(n)
	}
	if copyErr == nil {
		copyErr = ctx.Err()
	}
	if copyErr != nil {
		_ = s.fs.Remove(tmpName)
		if apperr.Is(copyErr, apperr.KindStorage) {
			return "", copyErr
		}
		return "", apperr.Wrap(apperr.KindStorage, "Failed to store file", copyErr)
	}

	if err := s.fs.Rename(tmpName, s.path(name)); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", apperr.Wrap(apperr.KindStorage, "Failed to store file", err)
	}

	return name, nil
}

func (s *LocalStorage) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := ValidateName(name); err != nil {
		return nil, 0, err
	}

	f, err := s.fs.Open(s.path(name))
	if err != nil {
		return nil, 0, s.mapErr(err, name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, s.mapErr(err, name)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, apperr.NotFound("Could not read file: " + name)
	}
	return f, info.Size(), nil
}

func (s *LocalStorage) Load(ctx context.Context, name string) ([]byte, error) {
	rc, _, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "Could not read file: "+name, err)
	}
	return data, nil
}

func (s *LocalStorage) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("File not found: " + name)
	}
	if err := s.fs.Remove(s.path(name)); err != nil {
		return s.mapErr(err, name)
	}
	return nil
}

func (s *LocalStorage) DeleteAll(ctx context.Context) error {
	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.fs.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return apperr.Wrap(apperr.KindStorage, "Failed to delete files", err)
		}
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	info, err := s.fs.Stat(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.KindStorage, "Failed to stat file", err)
	}
	return !info.IsDir(), nil
}

func (s *LocalStorage) Size(ctx context.Context, name string) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(s.path(name))
	if err != nil {
		return 0, s.mapErr(err, name)
	}
	return info.Size(), nil
}

// List returns the stored names in lexical order. The temp dir is skipped.
func (s *LocalStorage) List(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "Failed to read stored files", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStorage) URL(name string) string {
	return s.policy.URL(name)
}

func (s *LocalStorage) NameFromURL(u string) (string, bool) {
	return s.policy.NameFromURL(u)
}

func (s *LocalStorage) path(name string) string {
	return filepath.Join(s.root, name)
}

func (s *LocalStorage) mapErr(err error, name string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.NotFound("File not found: " + name)
	}
	return apperr.Wrap(apperr.KindStorage, "Could not read file: "+name, err)
}
