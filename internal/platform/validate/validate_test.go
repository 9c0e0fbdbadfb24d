package validate

import (
	"strings"
	"testing"
)

type sample struct {
	Name  string  `json:"name" validate:"required,max=5"`
	IP    *string `json:"ip_address" validate:"omitempty,ip"`
	Email string  `json:"email" validate:"omitempty,email"`
}

func TestStruct(t *testing.T) {
	good := "10.0.0.1"
	bad := "999.0.0.1"
	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{"valid", sample{Name: "ab", IP: &good}, ""},
		{"nil optional", sample{Name: "ab"}, ""},
		{"missing required", sample{}, "name is required"},
		{"too long", sample{Name: "abcdef"}, "name must be at most 5 characters"},
		{"bad ip", sample{Name: "ab", IP: &bad}, "ip_address must be a valid IPv4 or IPv6 address"},
		{"bad email", sample{Name: "ab", Email: "nope"}, "email must be a valid email address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Struct: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Struct err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_Shared(t *testing.T) {
	if Engine() != Engine() {
		t.Error("Engine should return the same instance")
	}
}
