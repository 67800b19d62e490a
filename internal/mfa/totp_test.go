package mfa

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"splan/backend/internal/mfa/domain"
)

type memRepo struct {
	mu      sync.Mutex
	factors map[string]*domain.Factor
	order   []string
	err     error
}

func newMemRepo() *memRepo {
	return &memRepo{factors: make(map[string]*domain.Factor)}
}

func (m *memRepo) Create(_ context.Context, f *domain.Factor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	cp := *f
	m.factors[f.ID] = &cp
	m.order = append(m.order, f.ID)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*domain.Factor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	f, ok := m.factors[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (m *memRepo) ListByUser(_ context.Context, userID int64) ([]*domain.Factor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Factor
	for _, id := range m.order {
		if f, ok := m.factors[id]; ok && f.UserID == userID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.factors[id]; ok {
		f.Verified = true
	}
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.factors[id]
	if !ok || f.UserID != userID {
		return false, nil
	}
	delete(m.factors, id)
	return true, nil
}

func (m *memRepo) HasVerified(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for _, f := range m.factors {
		if f.UserID == userID && f.Verified {
			return true, nil
		}
	}
	return false, nil
}

var fixedNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestService(repo *memRepo) *Service {
	s := NewService(repo, "splan-test")
	s.now = func() time.Time { return fixedNow }
	return s
}

func codeFor(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

func TestEnrol(t *testing.T) {
	s := newTestService(newMemRepo())
	e, err := s.Enrol(context.Background(), 7, "alice")
	if err != nil {
		t.Fatalf("Enrol: %v", err)
	}
	if e.Factor.ID == "" || e.Factor.Secret == "" {
		t.Fatalf("Enrol returned incomplete factor: %+v", e.Factor)
	}
	if e.Factor.Verified {
		t.Error("new factor should not be verified")
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Errorf("URL = %q, want otpauth://totp/...", e.URL)
	}
	if got := u.Query().Get("issuer"); got != "splan-test" {
		t.Errorf("issuer = %q, want splan-test", got)
	}

	required, err := s.Required(context.Background(), 7)
	if err != nil {
		t.Fatalf("Required: %v", err)
	}
	if required {
		t.Error("unconfirmed factor must not be required at login")
	}
}

func TestConfirmAndCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newMemRepo())
	e, err := s.Enrol(ctx, 7, "alice")
	if err != nil {
		t.Fatalf("Enrol: %v", err)
	}

	if err := s.Confirm(ctx, 7, e.Factor.ID, "000000x"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Confirm with bad code = %v, want ErrInvalidCode", err)
	}
	if err := s.Confirm(ctx, 8, e.Factor.ID, codeFor(t, e.Factor.Secret, fixedNow)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Confirm by other user = %v, want ErrNotFound", err)
	}
	if err := s.Confirm(ctx, 7, e.Factor.ID, codeFor(t, e.Factor.Secret, fixedNow)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := s.Confirm(ctx, 7, e.Factor.ID, codeFor(t, e.Factor.Secret, fixedNow)); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("second Confirm = %v, want ErrAlreadyVerified", err)
	}

	required, err := s.Required(ctx, 7)
	if err != nil || !required {
		t.Fatalf("Required = %v, %v; want true", required, err)
	}

	testCases := []struct {
		name string
		code string
		want bool
	}{
		{"current", codeFor(t, e.Factor.Secret, fixedNow), true},
		{"previous step within skew", codeFor(t, e.Factor.Secret, fixedNow.Add(-30*time.Second)), true},
		{"stale", codeFor(t, e.Factor.Secret, fixedNow.Add(-5*time.Minute)), false},
		{"empty", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := s.Check(ctx, 7, tc.code)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if ok != tc.want {
				t.Errorf("Check(%q) = %v, want %v", tc.code, ok, tc.want)
			}
		})
	}
}

func TestCheck_IgnoresUnverifiedFactors(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newMemRepo())
	e, err := s.Enrol(ctx, 7, "alice")
	if err != nil {
		t.Fatalf("Enrol: %v", err)
	}
	ok, err := s.Check(ctx, 7, codeFor(t, e.Factor.Secret, fixedNow))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check should ignore unverified factors")
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newMemRepo())
	e, err := s.Enrol(ctx, 7, "alice")
	if err != nil {
		t.Fatalf("Enrol: %v", err)
	}
	if err := s.Remove(ctx, 8, e.Factor.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove by other user = %v, want ErrNotFound", err)
	}
	if err := s.Remove(ctx, 7, e.Factor.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	list, err := s.List(ctx, 7)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List after Remove = %d factors, want 0", len(list))
	}
}

func TestEnrol_StorageError(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("db down")
	s := newTestService(repo)
	if _, err := s.Enrol(context.Background(), 7, "alice"); !errors.Is(err, repo.err) {
		t.Errorf("Enrol = %v, want storage error", err)
	}
}
