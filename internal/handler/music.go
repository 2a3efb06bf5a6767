package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/service"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/validation"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/pkg/response"
)

type MusicHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
}

func NewMusicHandler(svc *service.GenerationService, v *validator.Validate) *MusicHandler {
	return &MusicHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/music/generate. With ?async=true the record is
// returned right away and the external call runs on the worker pool.
func (h *MusicHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	req.Normalize()
	if err := validation.Struct(h.validator, &req); err != nil {
		return err
	}

	if c.QueryBool("async") {
		rec, err := h.service.SubmitAsync(c.UserContext(), &req)
		if err != nil {
			return err
		}
		return response.Accepted(c, model.NewRecordResponse(rec))
	}

	rec, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return response.OK(c, model.NewRecordResponse(rec))
}

// Get handles GET /api/music/:id
func (h *MusicHandler) Get(c *fiber.Ctx) error {
	rec, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, model.NewRecordResponse(rec))
}

// List handles GET /api/music?page&size
func (h *MusicHandler) List(c *fiber.Ctx) error {
	page, err := h.service.List(c.UserContext(), c.QueryInt("page", 0), c.QueryInt("size", service.DefaultPageSize))
	if err != nil {
		return err
	}
	return response.OK(c, page)
}

// UpdateStatus handles PUT /api/music/:id/status?url=...&lyrics=...
func (h *MusicHandler) UpdateStatus(c *fiber.Ctx) error {
	var lyrics *string
	if c.Context().QueryArgs().Has("lyrics") {
		l := c.Query("lyrics")
		lyrics = &l
	}

	rec, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), c.Query("url"), lyrics)
	if err != nil {
		return err
	}
	return response.OK(c, model.NewRecordResponse(rec))
}

// Cancel handles POST /api/music/:id/cancel
func (h *MusicHandler) Cancel(c *fiber.Ctx) error {
	rec, err := h.service.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, model.NewRecordResponse(rec))
}

// Delete handles DELETE /api/music/:id
func (h *MusicHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return response.NoContent(c)
}

// Quota handles GET /api/music/quota
func (h *MusicHandler) Quota(c *fiber.Ctx) error {
	quota, err := h.service.Quota(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, quota)
}
