package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
)

// Policy holds the upload rules shared by every backend
type Policy struct {
	MaxFileSize         int64
	AllowedExtensions   map[string]struct{}
	MaxFilenameLength   int
	UseOriginalFilename bool
	URLPrefix           string
}

func NewPolicy(cfg config.StorageConfig) Policy {
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = normalizeExt(ext)
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}

	return Policy{
		MaxFileSize:         cfg.MaxFileSize,
		AllowedExtensions:   allowed,
		MaxFilenameLength:   cfg.MaxFilenameLength,
		UseOriginalFilename: cfg.UseOriginalFilename,
		URLPrefix:           strings.TrimRight(cfg.URLPrefix, "/"),
	}
}

// Check validates an upload before any byte is written
func (p Policy) Check(filename string, size int64) error {
	if size == 0 {
		return apperr.New(apperr.KindStorage, "Failed to store empty file")
	}
	if p.MaxFileSize > 0 && size > p.MaxFileSize {
		return apperr.Newf(apperr.KindStorage, "File size exceeds maximum limit of %d bytes", p.MaxFileSize)
	}

	base := cleanFilename(filename)
	if base == "" {
		return apperr.New(apperr.KindStorage, "Filename is required")
	}
	if p.MaxFilenameLength > 0 && len(base) > p.MaxFilenameLength {
		return apperr.Newf(apperr.KindStorage, "Filename exceeds maximum length of %d", p.MaxFilenameLength)
	}
	if !p.Allowed(base) {
		return apperr.Newf(apperr.KindStorage, "File type not allowed: %s", base)
	}
	return nil
}

// CheckWritten validates the number of bytes actually received
func (p Policy) CheckWritten(n int64) error {
	if n == 0 {
		return apperr.New(apperr.KindStorage, "Failed to store empty file")
	}
	if p.MaxFileSize > 0 && n > p.MaxFileSize {
		return apperr.Newf(apperr.KindStorage, "File size exceeds maximum limit of %d bytes", p.MaxFileSize)
	}
	return nil
}

// ReadLimit is how many bytes to read to detect an oversize stream
func (p Policy) ReadLimit() int64 {
	if p.MaxFileSize <= 0 {
		return 1<<63 - 1
	}
	return p.MaxFileSize + 1
}

// Allowed reports whether the filename's extension may be stored. An empty
// allow list accepts everything.
func (p Policy) Allowed(filename string) bool {
	if len(p.AllowedExtensions) == 0 {
		return true
	}
	_, ok := p.AllowedExtensions[normalizeExt(path.Ext(filename))]
	return ok
}

// Name returns the stored name for an uploaded filename
func (p Policy) Name(filename string) (string, error) {
	base := cleanFilename(filename)
	if p.UseOriginalFilename {
		if err := ValidateName(base); err != nil {
			return "", err
		}
		return base, nil
	}

	ext := normalizeExt(path.Ext(base))
	if ext == "" {
		return uuid.NewString(), nil
	}
	return fmt.Sprintf("%s.%s", uuid.NewString(), ext), nil
}

// URL is the download route for a stored name, path escaped
func (p Policy) URL(name string) string {
	return p.URLPrefix + "/" + url.PathEscape(name)
}

func (p Policy) NameFromURL(u string) (string, bool) {
	if u == "" || !strings.HasPrefix(u, p.URLPrefix+"/") {
		return "", false
	}
	return nameFromPath(strings.TrimPrefix(u, p.URLPrefix+"/"))
}

// UnescapeName decodes a filename taken from a request path
func UnescapeName(escaped string) (string, error) {
	name, err := url.PathUnescape(escaped)
	if err != nil {
		return "", apperr.InvalidArgument("filename is not a valid path segment: " + escaped)
	}
	return name, ValidateName(name)
}

func nameFromPath(escaped string) (string, bool) {
	name, err := UnescapeName(escaped)
	if err != nil {
		return "", false
	}
	return name, true
}

// escapeKey path escapes every segment of an object key
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// ValidateName rejects names that could escape the storage root
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperr.InvalidArgument("filename is required")
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return apperr.InvalidArgument("filename contains a path separator or relative path: " + name)
	}
	return nil
}

func cleanFilename(filename string) string {
	filename = strings.ReplaceAll(filename, `\`, "/")
	base := path.Base(path.Clean("/" + filename))
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSpace(base)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
