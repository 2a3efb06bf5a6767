package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/client"
)

// ObjectStore is the subset of the R2 client the object backend needs
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Head(ctx context.Context, key string) (int64, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectStorage keeps files in an S3 compatible bucket under a key prefix
type ObjectStorage struct {
	store     ObjectStore
	prefix    string
	policy    Policy
	publicURL string
}

func NewObjectStorage(store ObjectStore, keyPrefix string, policy Policy) *ObjectStorage {
	keyPrefix = strings.Trim(keyPrefix, "/")
	if keyPrefix != "" {
		keyPrefix += "/"
	}
	return &ObjectStorage{store: store, prefix: keyPrefix, policy: policy}
}

// WithPublicURL makes URL point at the bucket's public domain instead of the
// download route. An empty base keeps the download route.
func (s *ObjectStorage) WithPublicURL(base string) *ObjectStorage {
	s.publicURL = strings.TrimRight(base, "/")
	return s
}

// Store buffers the upload through the size limit so an oversize stream
// is rejected before anything reaches the bucket.
func (s *ObjectStorage) Store(ctx context.Context, r io.Reader, size int64, filename string) (string, error) {
	if err := s.policy.Check(filename, size); err != nil {
		return "", err
	}
	name, err := s.policy.Name(filename)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.policy.ReadLimit()))
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "Failed to store file", err)
	}
	if err := s.policy.CheckWritten(n); err != nil {
		return "", err
	}

	contentType := mimetype.Detect(buf.Bytes()).String()
	if err := s.store.Put(ctx, s.key(name), bytes.NewReader(buf.Bytes()), n, contentType); err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "Failed to store file", err)
	}
	return name, nil
}

func (s *ObjectStorage) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := ValidateName(name); err != nil {
		return nil, 0, err
	}
	rc, size, err := s.store.Get(ctx, s.key(name))
	if err != nil {
		return nil, 0, s.mapErr(err, name)
	}
	return rc, size, nil
}

func (s *ObjectStorage) Load(ctx context.Context, name string) ([]byte, error) {
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

func (s *ObjectStorage) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := s.store.Head(ctx, s.key(name)); err != nil {
		return s.mapErr(err, name)
	}
	if err := s.store.Delete(ctx, s.key(name)); err != nil {
		return apperr.Wrap(apperr.KindStorage, "Failed to delete file: "+name, err)
	}
	return nil
}

func (s *ObjectStorage) DeleteAll(ctx context.Context) error {
	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.store.Delete(ctx, s.key(name)); err != nil {
			return apperr.Wrap(apperr.KindStorage, "Failed to delete files", err)
		}
	}
	return nil
}

func (s *ObjectStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	_, err := s.store.Head(ctx, s.key(name))
	if errors.Is(err, client.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "Failed to stat file", err)
	}
	return true, nil
}

func (s *ObjectStorage) Size(ctx context.Context, name string) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	size, err := s.store.Head(ctx, s.key(name))
	if err != nil {
		return 0, s.mapErr(err, name)
	}
	return size, nil
}

func (s *ObjectStorage) List(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "Failed to read stored files", err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, s.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *ObjectStorage) URL(name string) string {
	if s.publicURL == "" {
		return s.policy.URL(name)
	}
	return s.publicURL + "/" + escapeKey(s.key(name))
}

// NameFromURL accepts both public bucket URLs and download route URLs
func (s *ObjectStorage) NameFromURL(u string) (string, bool) {
	if s.publicURL != "" {
		base := s.publicURL + "/" + escapeKey(s.prefix)
		if strings.HasPrefix(u, base) {
			return nameFromPath(strings.TrimPrefix(u, base))
		}
	}
	return s.policy.NameFromURL(u)
}

func (s *ObjectStorage) key(name string) string {
	return s.prefix + name
}

func (s *ObjectStorage) mapErr(err error, name string) error {
	if errors.Is(err, client.ErrObjectNotFound) {
		return apperr.NotFound("File not found: " + name)
	}
	return apperr.Wrap(apperr.KindStorage, "Could not read file: "+name, err)
}
