package storage

import (
	"context"
	"io"
)

// Storage stores uploaded and generated audio files by name
type Storage interface {
	// Store validates and writes r under a generated name, which is returned.
	// size is the declared length, or -1 when unknown.
	Store(ctx context.Context, r io.Reader, size int64, filename string) (string, error)
	// Open returns a reader for the named file and its size
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Load(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	DeleteAll(ctx context.Context) error
	Exists(ctx context.Context, name string) (bool, error)
	Size(ctx context.Context, name string) (int64, error)
	List(ctx context.Context) ([]string, error)
	// URL is the public address a stored name is served from
	URL(name string) string
	// NameFromURL maps a URL produced by URL back to the stored name
	NameFromURL(url string) (string, bool)
}
