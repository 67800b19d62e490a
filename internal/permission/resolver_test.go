package permission

import (
	"context"
	"testing"
)

func TestResolver_HealthCheck(t *testing.T) {
	r, err := NewResolver(context.Background())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if err := r.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestResolver_Resolve(t *testing.T) {
	r, err := NewResolver(context.Background())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	testCases := []struct {
		name     string
		userType string
		grants   []string
		has      []string
		hasNot   []string
	}{
		{"student", "student", nil, []string{"timetable.read", DevicesManage}, []string{UsersManage, "exams.write"}},
		{"teacher", "teacher", nil, []string{"exams.write", "announcements.write"}, []string{UsersManage}},
		{"admin", "admin", nil, []string{UsersManage, DevicesTest}, nil},
		{"student with grant", "student", []string{UsersManage}, []string{UsersManage, "timetable.read"}, []string{"exams.write"}},
		{"unknown type", "janitor", nil, nil, []string{"timetable.read"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			perms, err := r.Resolve(context.Background(), tc.userType, tc.grants)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			for _, p := range tc.has {
				if !Has(perms, p) {
					t.Errorf("permissions %v should contain %q", perms, p)
				}
			}
			for _, p := range tc.hasNot {
				if Has(perms, p) {
					t.Errorf("permissions %v should not contain %q", perms, p)
				}
			}
		})
	}
}

func TestResolver_SortedAndDeduplicated(t *testing.T) {
	r, err := NewResolver(context.Background())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	perms, err := r.Resolve(context.Background(), "student", []string{"timetable.read", "b.extra", "a.extra"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 1; i < len(perms); i++ {
		if perms[i-1] >= perms[i] {
			t.Fatalf("permissions not sorted and unique: %v", perms)
		}
	}
}

func TestNewResolverWithPolicy_Custom(t *testing.T) {
	policy := `package splan.permissions

permissions contains "everything" if {
	input.user_type == "admin"
}
`
	r, err := NewResolverWithPolicy(context.Background(), policy)
	if err != nil {
		t.Fatalf("NewResolverWithPolicy: %v", err)
	}
	perms, err := r.Resolve(context.Background(), "admin", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(perms) != 1 || perms[0] != "everything" {
		t.Errorf("perms = %v, want [everything]", perms)
	}
	perms, err = r.Resolve(context.Background(), "student", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(perms) != 0 {
		t.Errorf("perms = %v, want empty", perms)
	}
}

func TestNewResolverWithPolicy_Invalid(t *testing.T) {
	if _, err := NewResolverWithPolicy(context.Background(), "package broken\n\nthis is not rego"); err == nil {
		t.Fatal("NewResolverWithPolicy should fail for invalid policy")
	}
}
