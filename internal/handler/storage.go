package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/storage"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/pkg/response"
)

type StorageHandler struct {
	files storage.Storage
}

func NewStorageHandler(files storage.Storage) *StorageHandler {
	return &StorageHandler{files: files}
}

// Upload handles POST /api/storage/upload (multipart field "file")
func (h *StorageHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", map[string]string{"file": "required"})
	}

	f, err := file.Open()
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "Failed to read uploaded file", err)
	}
	defer f.Close()

	name, err := h.files.Store(c.UserContext(), f, file.Size, file.Filename)
	if err != nil {
		return err
	}

	return response.OK(c, model.UploadResponse{
		Filename: name,
		URL:      h.files.URL(name),
		Size:     file.Size,
	})
}

// Download handles GET /api/storage/download/:filename
func (h *StorageHandler) Download(c *fiber.Ctx) error {
	name, err := storage.UnescapeName(c.Params("filename"))
	if err != nil {
		return err
	}
	rc, size, err := h.files.Open(c.UserContext(), name)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.SendStream(rc, int(size))
}

// List handles GET /api/storage/list
func (h *StorageHandler) List(c *fiber.Ctx) error {
	names, err := h.files.List(c.UserContext())
	if err != nil {
		return err
	}

	entries := make([]model.FileEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, model.FileEntry{Filename: name, URL: h.files.URL(name)})
	}
	return response.OK(c, entries)
}

// Info handles GET /api/storage/:filename/info
func (h *StorageHandler) Info(c *fiber.Ctx) error {
	name, err := storage.UnescapeName(c.Params("filename"))
	if err != nil {
		return err
	}
	exists, err := h.files.Exists(c.UserContext(), name)
	if err != nil {
		return err
	}

	info := model.FileInfoResponse{Filename: name, URL: h.files.URL(name), Exists: exists}
	if exists {
		if info.Size, err = h.files.Size(c.UserContext(), name); err != nil {
			return err
		}
	}
	return response.OK(c, info)
}

// Delete handles DELETE /api/storage/:filename
func (h *StorageHandler) Delete(c *fiber.Ctx) error {
	name, err := storage.UnescapeName(c.Params("filename"))
	if err != nil {
		return err
	}
	if err := h.files.Delete(c.UserContext(), name); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"filename": name, "deleted": true})
}
