package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

// RegisterUser регистрирует нового покупателя и возвращает его идентификатор.
func (s *Service) RegisterUser(ctx context.Context, username, password, email string) (int64, error) {
	return s.createUser(ctx, username, password, email, model.RoleUser)
}

func (s *Service) createUser(ctx context.Context, username, password, email string, role model.Role) (int64, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || password == "" || email == "" {
		return 0, fmt.Errorf("%w: username, password and email are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return 0, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	if len(password) > auth.MaxPasswordLen {
		return 0, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, auth.MaxPasswordLen)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return 0, err
	}

	return s.repo.CreateUser(ctx, model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
}

// AuthenticateUser проверяет логин и пароль и возвращает данные пользователя для токена.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (model.Actor, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Actor{}, ErrUnauthorized
		}
		return model.Actor{}, err
	}

	if !auth.CheckPassword(u.PasswordHash, password) {
		return model.Actor{}, ErrUnauthorized
	}

	return model.Actor{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}, nil
}

// EnsureAdmin создаёт администратора, если пользователя с таким логином ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, username, password, email string) error {
	existing, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	switch {
	case err == nil:
		if existing.Role != model.RoleAdmin {
			s.logger.Warn("bootstrap admin username is taken by a regular user", zap.String("username", existing.Username))
		}
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("lookup admin: %w", err)
	}

	id, err := s.createUser(ctx, username, password, email, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin user created", zap.Int64("user_id", id), zap.String("username", username))
	return nil
}
