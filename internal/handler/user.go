package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/service"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/validation"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/pkg/response"
)

type UserHandler struct {
	users     *service.UserService
	music     *service.GenerationService
	validator *validator.Validate
}

func NewUserHandler(users *service.UserService, music *service.GenerationService, v *validator.Validate) *UserHandler {
	return &UserHandler{
		users:     users,
		music:     music,
		validator: v,
	}
}

// Create handles POST /api/users
func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req model.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := validation.Struct(h.validator, &req); err != nil {
		return err
	}

	user, err := h.users.Create(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return response.Created(c, model.NewUserResponse(user))
}

// Get handles GET /api/users/:id
func (h *UserHandler) Get(c *fiber.Ctx) error {
	user, err := h.users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, model.NewUserResponse(user))
}

// ListMusic handles GET /api/users/:id/music?page&size
func (h *UserHandler) ListMusic(c *fiber.Ctx) error {
	page, err := h.music.ListByOwner(c.UserContext(), c.Params("id"),
		c.QueryInt("page", 0), c.QueryInt("size", service.DefaultPageSize))
	if err != nil {
		return err
	}
	return response.OK(c, page)
}
