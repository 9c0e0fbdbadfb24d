package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const defaultRoleQuery = "data.perfreview.roles.default_roles"

// Default Rego policy: everyone gets the configured default role; members of the
// "managers" or "hr" provider groups get the matching role as well.
const defaultRegoPolicy = `package perfreview.roles

default_roles contains input.default_role if {
	input.default_role != ""
}

default_roles contains "manager" if {
	some g in input.groups
	g == "managers"
}

default_roles contains "hr" if {
	some g in input.groups
	g == "hr"
}
`

// OPAEvaluator assigns default roles by evaluating a Rego policy.
type OPAEvaluator struct {
	compiler    *ast.Compiler
	defaultRole string
}

// NewOPAEvaluator compiles policy (the built-in policy when empty) and returns an evaluator that
// falls back to defaultRole when evaluation fails or yields nothing.
func NewOPAEvaluator(policy, defaultRole string) (*OPAEvaluator, error) {
	if strings.TrimSpace(policy) == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"roles.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile role policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler, defaultRole: defaultRole}, nil
}

// NewOPAEvaluatorFromFile reads the policy from path; an empty path selects the built-in policy.
func NewOPAEvaluatorFromFile(path, defaultRole string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator("", defaultRole)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role policy: %w", err)
	}
	return NewOPAEvaluator(string(b), defaultRole)
}

// HealthCheck evaluates the compiled policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, RoleInput{})
	return err
}

// DefaultRoles evaluates the policy for in. Evaluation failures are logged and answered with the
// configured default role, so a broken policy never blocks login.
func (e *OPAEvaluator) DefaultRoles(ctx context.Context, in RoleInput) ([]string, error) {
	roles, err := e.eval(ctx, in)
	if err != nil {
		log.Printf("policy: role evaluation failed: %v, using default role", err)
		return e.fallback(), nil
	}
	if len(roles) == 0 {
		return e.fallback(), nil
	}
	return roles, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in RoleInput) ([]string, error) {
	groups := make([]interface{}, 0, len(in.Groups))
	for _, g := range in.Groups {
		groups = append(groups, g)
	}
	input := map[string]interface{}{
		"external_id":    in.ExternalID,
		"email":          in.Email,
		"name":           in.Name,
		"email_verified": in.EmailVerified,
		"groups":         groups,
		"default_role":   e.defaultRole,
	}
	rs, err := rego.New(
		rego.Query(defaultRoleQuery),
		rego.Compiler(e.compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("eval role policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}
	values, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, errors.New("role policy must produce a set of strings")
	}
	seen := make(map[string]bool, len(values))
	roles := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok || s == "" || seen[s] {
			continue
		}
		seen[s] = true
		roles = append(roles, s)
	}
	sort.Strings(roles)
	return roles, nil
}

func (e *OPAEvaluator) fallback() []string {
	if e.defaultRole == "" {
		return []string{}
	}
	return []string{e.defaultRole}
}
