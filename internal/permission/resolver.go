// Package permission resolves a user's effective permissions with an embedded OPA Rego policy.
package permission

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Well-known permission names.
const (
	UsersManage   = "users.manage"
	DevicesManage = "devices.manage"
	DevicesTest   = "devices.test"
)

const query = "data.splan.permissions.permissions"

//go:embed policy.rego
var defaultPolicy string

// Resolver evaluates the permission policy. The query is compiled and prepared once.
type Resolver struct {
	prepared rego.PreparedEvalQuery
}

// NewResolver prepares the built-in policy.
func NewResolver(ctx context.Context) (*Resolver, error) {
	return NewResolverWithPolicy(ctx, defaultPolicy)
}

// NewResolverWithPolicy prepares a custom policy. It must define data.splan.permissions.permissions as a set of strings.
func NewResolverWithPolicy(ctx context.Context, policy string) (*Resolver, error) {
	compiler, err := ast.CompileModules(map[string]string{"permissions.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile permission policy: %w", err)
	}
	prepared, err := rego.New(
		rego.Query(query),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare permission policy: %w", err)
	}
	return &Resolver{prepared: prepared}, nil
}

// Resolve returns the sorted, de-duplicated permissions for a user type plus explicit grants.
func (r *Resolver) Resolve(ctx context.Context, userType string, grants []string) ([]string, error) {
	if grants == nil {
		grants = []string{}
	}
	input := map[string]interface{}{
		"user_type": userType,
		"grants":    grants,
	}
	rs, err := r.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("eval permission policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return []string{}, nil
	}
	values, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("permission policy returned %T, want set", rs[0].Expressions[0].Value)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// HealthCheck evaluates the prepared policy for a minimal input. Returns nil on success.
func (r *Resolver) HealthCheck(ctx context.Context) error {
	_, err := r.Resolve(ctx, "student", nil)
	return err
}

// Has reports whether perms contains p.
func Has(perms []string, p string) bool {
	return slices.Contains(perms, p)
}
