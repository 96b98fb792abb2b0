// Package validation checks user-supplied identifiers and paths.
//
// Rendering ids, job names and layer ids end up as file and archive entry
// names (migrated layers, bundle artifacts), so they must be single, safe
// path elements.
package validation

import (
	"strings"
	"unicode"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

const (
	// MaxIDLength is the maximum identifier length in bytes.
	MaxIDLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// ValidateID checks that id can be used as a single file name. Failures are
// reported as a ValidationError for field.
func ValidateID(field, id string) error {
	fail := func(msg string) error {
		v := errors.NewValidation(field, msg)
		v.Value = id
		return v
	}

	if id == "" {
		return fail("must not be empty")
	}
	if len(id) > MaxIDLength {
		return fail("too long")
	}
	if id == "." || id == ".." {
		return fail("reserved name")
	}
	if strings.ContainsAny(id, `/\`) {
		return fail("path separator not allowed")
	}
	if strings.HasPrefix(id, "-") {
		return fail("cannot start with hyphen")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fail("control character not allowed")
		}
	}
	return nil
}

// ValidatePath checks a path for length limits and invalid characters. It
// does not touch the filesystem.
func ValidatePath(field, path string) error {
	fail := func(msg string) error {
		v := errors.NewValidation(field, msg)
		v.Value = path
		return v
	}

	if path == "" {
		return fail("path cannot be empty")
	}
	if len(path) > MaxPathLength {
		return fail("path too long")
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fail("control character not allowed")
		}
	}
	return nil
}
