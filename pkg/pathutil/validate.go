// Package pathutil provides name validation for serialized units and refs.
package pathutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/scribelab/chronicle/pkg/errclass"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateUnitName checks that a table name is safe to use as a
// serialized unit filename.
func ValidateUnitName(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("unit name must not be empty")
	}

	// NFC normalize
	name = norm.NFC.String(name)

	if strings.Contains(name, "..") {
		return errclass.ErrNameInvalid.WithMessagef("unit name must not contain '..': %s", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("unit name must not contain separators: %s", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("unit name must not contain control characters: %q", name)
		}
	}
	if !nameRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("unit name must match [a-zA-Z0-9._-]+: %s", name)
	}
	return nil
}

// ValidateRef checks a revision reference before handing it to the
// history backend. Symbolic suffixes (~N, ^N) are allowed; anything
// that could be parsed as a flag or a path escape is not.
func ValidateRef(ref string) error {
	if ref == "" {
		return errclass.ErrNameInvalid.WithMessage("ref must not be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return errclass.ErrNameInvalid.WithMessagef("ref must not begin with '-': %s", ref)
	}
	for _, r := range ref {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return errclass.ErrNameInvalid.WithMessagef("ref must not contain whitespace or control characters: %q", ref)
		}
	}
	if strings.ContainsAny(ref, "/\\:?*[") {
		return errclass.ErrNameInvalid.WithMessagef("ref contains forbidden characters: %s", ref)
	}
	return nil
}
