package engine

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e, err := NewOPAEvaluator("", "employee")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e, err := NewOPAEvaluator("", "employee")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	tests := []struct {
		name   string
		groups []string
		want   []string
	}{
		{"no groups", nil, []string{"employee"}},
		{"manager group", []string{"managers", "other"}, []string{"employee", "manager"}},
		{"hr group", []string{"hr"}, []string{"employee", "hr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.DefaultRoles(context.Background(), RoleInput{ExternalID: "idp-42", Groups: tt.groups})
			if err != nil {
				t.Fatalf("DefaultRoles: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DefaultRoles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOPAEvaluator_CustomPolicyFromFile(t *testing.T) {
	policy := `package perfreview.roles

default_roles contains "reviewer" if {
	endswith(input.email, "@example.com")
}
`
	path := filepath.Join(t.TempDir(), "roles.rego")
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e, err := NewOPAEvaluatorFromFile(path, "employee")
	if err != nil {
		t.Fatalf("NewOPAEvaluatorFromFile: %v", err)
	}
	got, _ := e.DefaultRoles(context.Background(), RoleInput{Email: "a@example.com"})
	if !reflect.DeepEqual(got, []string{"reviewer"}) {
		t.Errorf("matching email: roles = %v", got)
	}
	got, _ = e.DefaultRoles(context.Background(), RoleInput{Email: "a@b.com"})
	if !reflect.DeepEqual(got, []string{"employee"}) {
		t.Errorf("empty policy result should fall back: roles = %v", got)
	}
}

func TestOPAEvaluator_NonSetResultFallsBack(t *testing.T) {
	e, err := NewOPAEvaluator("package perfreview.roles\n\ndefault_roles := 42\n", "employee")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	got, err := e.DefaultRoles(context.Background(), RoleInput{})
	if err != nil {
		t.Fatalf("DefaultRoles should swallow evaluation errors: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"employee"}) {
		t.Errorf("roles = %v", got)
	}
}

func TestNewOPAEvaluator_CompileError(t *testing.T) {
	if _, err := NewOPAEvaluator("package broken\n\nthis is not rego", "employee"); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := NewOPAEvaluatorFromFile(filepath.Join(t.TempDir(), "missing.rego"), "employee"); err == nil {
		t.Fatal("expected read error")
	}
}

func TestStaticRoles(t *testing.T) {
	r := StaticRoles{"employee"}
	got, _ := r.DefaultRoles(context.Background(), RoleInput{})
	got[0] = "admin"
	if r[0] != "employee" {
		t.Error("StaticRoles must return a copy")
	}
}
