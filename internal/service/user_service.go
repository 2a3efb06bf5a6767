package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/repository"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/validation"
)

// UserService manages record owners
type UserService struct {
	users    *repository.UserRepository
	validate *validator.Validate
}

func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users, validate: validation.New()}
}

func (s *UserService) Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}

	u := &model.User{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Email:     req.Email,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	if err := checkID(id, "user id"); err != nil {
		return nil, err
	}
	return s.users.FindByID(ctx, id)
}
