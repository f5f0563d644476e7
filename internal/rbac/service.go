package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/taxpilot/taxpilot/internal/shared"
)

// AuditRecorder persists compliance records for grant changes.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DecisionObserver receives authorization outcomes, e.g. for metrics.
type DecisionObserver interface {
	ObserveDecision(check, outcome string)
}

// Service orchestrates permission lookups, caching and grant administration.
type Service struct {
	repo     Repository
	cache    *Cache
	audit    AuditRecorder
	observer DecisionObserver
	logger   *slog.Logger
	loads    singleflight.Group
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Cache    *Cache
	Audit    AuditRecorder
	Observer DecisionObserver
	Logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Cache == nil {
		cfg.Cache = NewCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cfg.Cache,
		audit:    cfg.Audit,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// EnsureCatalog upserts every entry of DefaultCatalog.
func (s *Service) EnsureCatalog(ctx context.Context) error {
	for _, p := range DefaultCatalog() {
		if _, err := s.repo.UpsertPermission(ctx, p); err != nil {
			return fmt.Errorf("rbac: ensure permission %s: %w", p.Slug, err)
		}
	}
	return nil
}

// ListPermissions returns the catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// LoadUserPermissions returns the granted slugs for role, served from cache while fresh.
// A storage failure yields an empty set for this attempt and is not cached.
func (s *Service) LoadUserPermissions(ctx context.Context, role Role) map[string]struct{} {
	if perms, ok := s.cache.Get(role); ok {
		return perms
	}
	v, err, _ := s.loads.Do(string(role), func() (interface{}, error) {
		gen := s.cache.Generation(role)
		slugs, err := s.repo.GrantedSlugs(ctx, role)
		if err != nil {
			return nil, err
		}
		perms := make(map[string]struct{}, len(slugs))
		for _, slug := range slugs {
			perms[strings.ToLower(slug)] = struct{}{}
		}
		if !s.cache.SetIfCurrent(role, perms, gen) {
			s.logger.Debug("discard permissions loaded before invalidation", slog.String("role", string(role)))
		}
		return perms, nil
	})
	if err != nil {
		s.logger.Error("load permissions", slog.String("role", string(role)), slog.Any("error", err))
		return map[string]struct{}{}
	}
	return v.(map[string]struct{})
}

// EffectivePermissions lists the slugs role may use; admin receives the whole catalog.
func (s *Service) EffectivePermissions(ctx context.Context, role Role) ([]string, error) {
	if role == RoleAdmin {
		perms, err := s.repo.ListPermissions(ctx)
		if err != nil {
			return nil, err
		}
		slugs := make([]string, 0, len(perms))
		for _, p := range perms {
			slugs = append(slugs, p.Slug)
		}
		return slugs, nil
	}
	set := s.LoadUserPermissions(ctx, role)
	slugs := make([]string, 0, len(set))
	for slug := range set {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs, nil
}

// ClearPermissionCache invalidates role, or every role when role is empty.
func (s *Service) ClearPermissionCache(ctx context.Context, role Role) {
	// Callers arriving after the clear must not join a load that started before it.
	if role == "" {
		for _, r := range Roles() {
			s.loads.Forget(string(r))
		}
	} else {
		s.loads.Forget(string(role))
	}
	if err := s.cache.Invalidate(ctx, role); err != nil {
		s.logger.Warn("broadcast permission invalidation", slog.String("role", string(role)), slog.Any("error", err))
	}
}

// SetRolePermission upserts the (role, slug) grant and records an audit entry.
// Callers clear the role's cache afterwards; until then cached sets stay stale.
func (s *Service) SetRolePermission(ctx context.Context, actorID int64, role Role, slug string, granted bool) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, role)
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	perm, err := s.repo.FindPermission(ctx, slug)
	if err != nil {
		return err
	}
	if err := s.repo.UpsertRolePermission(ctx, role, perm.ID, granted); err != nil {
		return fmt.Errorf("rbac: upsert role permission: %w", err)
	}
	if s.audit != nil {
		action := "permission.revoke"
		if granted {
			action = "permission.grant"
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "role_permission",
			EntityID: string(role) + ":" + slug,
			Meta:     map[string]any{"role": string(role), "slug": slug, "granted": granted},
		}); err != nil {
			s.logger.Error("record permission audit", slog.Any("error", err))
		}
	}
	return nil
}

// RolePermissionMatrix returns every role x permission pairing, defaulting to false.
func (s *Service) RolePermissionMatrix(ctx context.Context) (Matrix, error) {
	rows, err := s.repo.MatrixRows(ctx)
	if err != nil {
		return Matrix{}, err
	}
	m := Matrix{Matrix: make(map[Role]map[string]bool, len(roleRanks))}
	for _, role := range Roles() {
		m.Matrix[role] = make(map[string]bool)
	}
	seen := make(map[string]struct{})
	for _, row := range rows {
		if _, ok := seen[row.Permission.Slug]; !ok {
			seen[row.Permission.Slug] = struct{}{}
			m.Permissions = append(m.Permissions, row.Permission)
			for _, role := range Roles() {
				m.Matrix[role][row.Permission.Slug] = false
			}
		}
		if row.Role != nil && row.Role.Valid() {
			m.Matrix[*row.Role][row.Permission.Slug] = row.Granted
		}
	}
	return m, nil
}

// AuthorizeRole allows the principal when its role is in allowed or is admin.
func (s *Service) AuthorizeRole(p *shared.Principal, allowed ...Role) error {
	role, err := s.resolveRole(p)
	if err != nil {
		s.observe("role", err)
		return err
	}
	if role == RoleAdmin {
		s.observe("role", nil)
		return nil
	}
	for _, a := range allowed {
		if role == a {
			s.observe("role", nil)
			return nil
		}
	}
	err = &shared.DenialError{Role: string(role), Allowed: roleNames(allowed)}
	s.observe("role", err)
	return err
}

// AuthorizeMinimumRole allows the principal when its rank is at least required.
func (s *Service) AuthorizeMinimumRole(p *shared.Principal, required Role) error {
	role, err := s.resolveRole(p)
	if err == nil && !HasMinimumRole(role, required) {
		err = &shared.DenialError{Role: string(role), Allowed: roleNames(rolesFrom(required))}
	}
	s.observe("minimum_role", err)
	return err
}

// AuthorizePermission allows the principal when any slug is granted to its role or it is admin.
func (s *Service) AuthorizePermission(ctx context.Context, p *shared.Principal, slugs ...string) error {
	role, err := s.resolveRole(p)
	if err != nil {
		s.observe("permission", err)
		return err
	}
	if role == RoleAdmin {
		s.observe("permission", nil)
		return nil
	}
	granted := s.LoadUserPermissions(ctx, role)
	for _, slug := range slugs {
		if _, ok := granted[strings.ToLower(strings.TrimSpace(slug))]; ok {
			s.observe("permission", nil)
			return nil
		}
	}
	err = &shared.DenialError{Role: string(role), Missing: slugs}
	s.observe("permission", err)
	return err
}

func (s *Service) resolveRole(p *shared.Principal) (Role, error) {
	if p == nil {
		return "", shared.ErrUnauthenticated
	}
	if strings.TrimSpace(p.Role) == "" {
		return "", fmt.Errorf("user %s: %w", strconv.FormatInt(p.UserID, 10), shared.ErrNoRole)
	}
	role, err := ParseRole(p.Role)
	if err != nil {
		return "", &shared.DenialError{Role: p.Role}
	}
	return role, nil
}

func (s *Service) observe(check string, err error) {
	if s.observer == nil {
		return
	}
	outcome := "allowed"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrForbidden):
		outcome = "denied"
	default:
		outcome = "unauthenticated"
	}
	s.observer.ObserveDecision(check, outcome)
}

// rolesFrom lists required and every role ranked above it.
func rolesFrom(required Role) []Role {
	var out []Role
	for _, r := range Roles() {
		if HasMinimumRole(r, required) {
			out = append(out, r)
		}
	}
	return out
}

func roleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}
