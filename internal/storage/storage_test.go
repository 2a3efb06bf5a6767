package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/client"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
)

func testPolicy() Policy {
	return NewPolicy(config.StorageConfig{
		MaxFileSize:       16,
		AllowedExtensions: []string{"mp3", ".WAV"},
		MaxFilenameLength: 32,
		URLPrefix:         "/api/storage/download/",
	})
}

func newLocal(t *testing.T) (*LocalStorage, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := NewLocalStorage(fsys, "/data/uploads", "/data/tmp", testPolicy())
	require.NoError(t, err)
	return s, fsys
}

// memObjects is an in-memory ObjectStore
type memObjects struct {
	mu   sync.Mutex
	objs map[string][]byte
	puts int
}

func newMemObjects() *memObjects {
	return &memObjects{objs: map[string][]byte{}}
}

func (m *memObjects) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = data
	m.puts++
	return nil
}

func (m *memObjects) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objs[key]
	if !ok {
		return nil, 0, client.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memObjects) Head(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objs[key]
	if !ok {
		return 0, client.ErrObjectNotFound
	}
	return int64(len(data)), nil
}

func (m *memObjects) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objs, key)
	return nil
}

func backends(t *testing.T) map[string]Storage {
	local, _ := newLocal(t)
	return map[string]Storage{
		"local":  local,
		"object": NewObjectStorage(newMemObjects(), "audio", testPolicy()),
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte("ID3 audio bytes")

			stored, err := s.Store(ctx, bytes.NewReader(payload), int64(len(payload)), "My Song.MP3")
			require.NoError(t, err)
			require.True(t, strings.HasSuffix(stored, ".mp3"))
			require.NotContains(t, stored, "My Song")

			ok, err := s.Exists(ctx, stored)
			require.NoError(t, err)
			require.True(t, ok)

			data, err := s.Load(ctx, stored)
			require.NoError(t, err)
			require.Equal(t, payload, data)

			size, err := s.Size(ctx, stored)
			require.NoError(t, err)
			require.Equal(t, int64(len(payload)), size)

			names, err := s.List(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{stored}, names)

			require.NoError(t, s.Delete(ctx, stored))
			ok, err = s.Exists(ctx, stored)
			require.NoError(t, err)
			require.False(t, ok)

			_, err = s.Load(ctx, stored)
			require.True(t, apperr.Is(err, apperr.KindNotFound))
			require.True(t, apperr.Is(s.Delete(ctx, stored), apperr.KindNotFound))
		})
	}
}

func TestStorage_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		size     int64
		filename string
		kind     apperr.Kind
	}{
		{name: "empty payload", payload: "", size: -1, filename: "a.mp3", kind: apperr.KindStorage},
		{name: "declared oversize", payload: "small", size: 1024, filename: "a.mp3", kind: apperr.KindStorage},
		{name: "streamed oversize", payload: strings.Repeat("x", 17), size: -1, filename: "a.mp3", kind: apperr.KindStorage},
		{name: "extension not allowed", payload: "data", size: 4, filename: "notes.txt", kind: apperr.KindStorage},
		{name: "no extension", payload: "data", size: 4, filename: "README", kind: apperr.KindStorage},
		{name: "filename too long", payload: "data", size: 4, filename: strings.Repeat("n", 40) + ".mp3", kind: apperr.KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for backend, s := range backends(t) {
				_, err := s.Store(context.Background(), strings.NewReader(tt.payload), tt.size, tt.filename)
				require.Error(t, err, backend)
				require.True(t, apperr.Is(err, tt.kind), "%s: got %v", backend, err)

				names, err := s.List(context.Background())
				require.NoError(t, err)
				require.Empty(t, names, backend)
			}
		})
	}
}

func TestLocalStorage_OversizeLeavesNoTempFile(t *testing.T) {
	s, fsys := newLocal(t)

	_, err := s.Store(context.Background(), strings.NewReader(strings.Repeat("x", 100)), -1, "big.wav")
	require.True(t, apperr.Is(err, apperr.KindStorage))

	leftovers, err := afero.ReadDir(fsys, "/data/tmp")
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestLocalStorage_UppercaseAllowedExtension(t *testing.T) {
	s, _ := newLocal(t)

	name, err := s.Store(context.Background(), strings.NewReader("RIFFdata"), 8, "take1.Wav")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(name, ".wav"))
}

func TestLocalStorage_OriginalFilename(t *testing.T) {
	policy := testPolicy()
	policy.UseOriginalFilename = true
	s, err := NewLocalStorage(afero.NewMemMapFs(), "/store", "/tmp", policy)
	require.NoError(t, err)

	name, err := s.Store(context.Background(), strings.NewReader("abc"), 3, "../../etc/demo.mp3")
	require.NoError(t, err)
	require.Equal(t, "demo.mp3", name)
}

func TestStorage_PathTraversalRejected(t *testing.T) {
	for backend, s := range backends(t) {
		_, err := s.Load(context.Background(), "../secret.mp3")
		require.True(t, apperr.Is(err, apperr.KindInvalidArgument), backend)

		_, err = s.Exists(context.Background(), "a/b.mp3")
		require.True(t, apperr.Is(err, apperr.KindInvalidArgument), backend)
	}
}

func TestStorage_DeleteAll(t *testing.T) {
	for backend, s := range backends(t) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := s.Store(ctx, strings.NewReader("abc"), 3, "x.mp3")
			require.NoError(t, err, backend)
		}

		require.NoError(t, s.DeleteAll(ctx), backend)
		names, err := s.List(ctx)
		require.NoError(t, err)
		require.Empty(t, names, backend)
	}
}

func TestPolicy_URLMapping(t *testing.T) {
	p := testPolicy()

	url := p.URL("abc.mp3")
	require.Equal(t, "/api/storage/download/abc.mp3", url)

	name, ok := p.NameFromURL(url)
	require.True(t, ok)
	require.Equal(t, "abc.mp3", name)

	_, ok = p.NameFromURL("https://cdn.suno.ai/abc.mp3")
	require.False(t, ok)

	_, ok = p.NameFromURL("/api/storage/download/../x.mp3")
	require.False(t, ok)
}

func TestPolicy_EscapedNames(t *testing.T) {
	p := testPolicy()

	url := p.URL("my song.mp3")
	require.Equal(t, "/api/storage/download/my%20song.mp3", url)

	name, ok := p.NameFromURL(url)
	require.True(t, ok)
	require.Equal(t, "my song.mp3", name)

	_, ok = p.NameFromURL("/api/storage/download/..%2Fx.mp3")
	require.False(t, ok)

	_, err := UnescapeName("bad%zz.mp3")
	require.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

func TestObjectStorage_PublicURL(t *testing.T) {
	s := NewObjectStorage(newMemObjects(), "audio", testPolicy()).WithPublicURL("https://cdn.example.com/")

	url := s.URL("my song.mp3")
	require.Equal(t, "https://cdn.example.com/audio/my%20song.mp3", url)

	name, ok := s.NameFromURL(url)
	require.True(t, ok)
	require.Equal(t, "my song.mp3", name)

	name, ok = s.NameFromURL("/api/storage/download/abc.mp3")
	require.True(t, ok)
	require.Equal(t, "abc.mp3", name)

	_, ok = s.NameFromURL("https://cdn.example.com/other/abc.mp3")
	require.False(t, ok)
}
