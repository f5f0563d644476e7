package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/taxpilot/taxpilot/internal/shared"
)

type grantKey struct {
	role Role
	id   int64
}

type fakeRepo struct {
	mu        sync.Mutex
	perms     map[string]Permission
	grants    map[grantKey]bool
	nextID    int64
	loadCalls int
	loadErr   error
}

func newFakeRepo(slugs ...string) *fakeRepo {
	r := &fakeRepo{perms: map[string]Permission{}, grants: map[grantKey]bool{}}
	for _, slug := range slugs {
		_, _ = r.UpsertPermission(context.Background(), Permission{Slug: slug, Label: slug, Group: "test"})
	}
	return r
}

func (r *fakeRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) UpsertPermission(ctx context.Context, p Permission) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.perms[p.Slug]; ok {
		p.ID = existing.ID
	} else {
		r.nextID++
		p.ID = r.nextID
	}
	r.perms[p.Slug] = p
	return p, nil
}

func (r *fakeRepo) FindPermission(ctx context.Context, slug string) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.perms[slug]
	if !ok {
		return Permission{}, fmt.Errorf("permission %q: %w", slug, shared.ErrNotFound)
	}
	return p, nil
}

func (r *fakeRepo) GrantedSlugs(ctx context.Context, role Role) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadCalls++
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	var out []string
	for slug, p := range r.perms {
		if r.grants[grantKey{role, p.ID}] {
			out = append(out, slug)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpsertRolePermission(ctx context.Context, role Role, permissionID int64, granted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grantKey{role, permissionID}] = granted
	return nil
}

func (r *fakeRepo) MatrixRows(ctx context.Context) ([]MatrixRow, error) {
	perms, _ := r.ListPermissions(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []MatrixRow
	for _, p := range perms {
		matched := false
		for key, granted := range r.grants {
			if key.id != p.ID {
				continue
			}
			role := key.role
			rows = append(rows, MatrixRow{Permission: p, Role: &role, Granted: granted})
			matched = true
		}
		if !matched {
			rows = append(rows, MatrixRow{Permission: p})
		}
	}
	return rows, nil
}

func (r *fakeRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadCalls
}

type recordingAudit struct {
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveDecision(check, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[check+"/"+outcome]++
}

// gatedRepo reads grants on the first GrantedSlugs call, then holds the
// result until release is closed.
type gatedRepo struct {
	*fakeRepo
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedRepo(slugs ...string) *gatedRepo {
	return &gatedRepo{fakeRepo: newFakeRepo(slugs...), entered: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedRepo) GrantedSlugs(ctx context.Context, role Role) ([]string, error) {
	slugs, err := r.fakeRepo.GrantedSlugs(ctx, role)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return slugs, err
}
