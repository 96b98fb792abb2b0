package validation

import (
	"errors"
	"strings"
	"testing"

	aerrors "github.com/FocuswithJustin/annotransfer/core/errors"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr string
	}{
		{"simple", "root", ""},
		{"unicode", "བོད་ཡིག", ""},
		{"dots inside", "v1.2", ""},
		{"empty", "", "must not be empty"},
		{"too long", strings.Repeat("a", MaxIDLength+1), "too long"},
		{"dot", ".", "reserved name"},
		{"dotdot", "..", "reserved name"},
		{"slash", "a/b", "path separator"},
		{"backslash", `a\b`, "path separator"},
		{"hyphen", "-rf", "hyphen"},
		{"null byte", "a\x00b", "control character"},
		{"newline", "a\nb", "control character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID("id", tt.id)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateID(%q) = %v, want nil", tt.id, err)
				}
				return
			}
			if !errors.Is(err, aerrors.ErrInvalidInput) {
				t.Fatalf("ValidateID(%q) = %v, want ErrInvalidInput", tt.id, err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateID(%q) = %v, want message containing %q", tt.id, err, tt.wantErr)
			}
			var v *aerrors.ValidationError
			if errors.As(err, &v) && v.Field != "id" {
				t.Errorf("Field = %q, want id", v.Field)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative", "layers/root.json", false},
		{"absolute", "/var/lib/layers/root.json", false},
		{"parent", "../root.json", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxPathLength+1), true},
		{"null byte", "root\x00.json", true},
		{"tab", "root\t.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath("layer", tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, aerrors.ErrInvalidInput) {
				t.Errorf("ValidatePath(%q) = %v, want ErrInvalidInput", tt.path, err)
			}
		})
	}
}
