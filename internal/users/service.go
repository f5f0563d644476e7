package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, role string) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ChangeRole(ctx context.Context, change RoleChange) (User, error)
	RoleHistory(ctx context.Context, userID int64) ([]RoleChange, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// ListUsers returns users, filtered by role when role is non-empty.
func (s *Service) ListUsers(ctx context.Context, role string) ([]User, error) {
	if role != "" {
		parsed, err := rbac.ParseRole(role)
		if err != nil {
			return nil, err
		}
		role = string(parsed)
	}
	return s.repo.ListUsers(ctx, role)
}

// ChangeRole assigns newRole to the user and records the change. Setting the
// current role again is a no-op. Granting or revoking admin requires an admin actor.
func (s *Service) ChangeRole(ctx context.Context, actor *shared.Principal, userID int64, newRole, reason string) (User, error) {
	if actor == nil {
		return User{}, shared.ErrUnauthenticated
	}
	role, err := rbac.ParseRole(newRole)
	if err != nil {
		return User{}, err
	}
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	// Unknown or empty stored roles parse to "" and rank below every role.
	currentRole, _ := rbac.ParseRole(current.Role)
	if currentRole == role {
		return current, nil
	}
	actorRole, _ := rbac.ParseRole(actor.Role)
	if (role == rbac.RoleAdmin || currentRole == rbac.RoleAdmin) && !rbac.HasMinimumRole(actorRole, rbac.RoleAdmin) {
		return User{}, &shared.DenialError{Role: actor.Role, Allowed: []string{string(rbac.RoleAdmin)}}
	}
	updated, err := s.repo.ChangeRole(ctx, RoleChange{
		UserID:    userID,
		OldRole:   current.Role,
		NewRole:   string(role),
		ChangedBy: actor.UserID,
		Reason:    strings.TrimSpace(reason),
		ChangedAt: s.now(),
	})
	if err != nil {
		return User{}, fmt.Errorf("users: change role: %w", err)
	}
	s.logger.Info("role changed",
		slog.Int64("user_id", userID),
		slog.String("old_role", current.Role),
		slog.String("new_role", string(role)),
		slog.Int64("changed_by", actor.UserID))
	return updated, nil
}

// RoleHistory lists role changes for a user.
func (s *Service) RoleHistory(ctx context.Context, userID int64) ([]RoleChange, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.RoleHistory(ctx, userID)
}
