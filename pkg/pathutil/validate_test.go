package pathutil_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scribelab/chronicle/pkg/errclass"
	"github.com/scribelab/chronicle/pkg/pathutil"
)

func TestValidateUnitName_Valid(t *testing.T) {
	for _, name := range []string{"sources", "code_text", "case-attributes", "journal.entries", "t2"} {
		assert.NoError(t, pathutil.ValidateUnitName(name), name)
	}
}

func TestValidateUnitName_Invalid(t *testing.T) {
	for _, name := range []string{"", "..", "a/b", `a\b`, "a b", "tab\tname", "semi;colon", "x\x00y"} {
		err := pathutil.ValidateUnitName(name)
		assert.Error(t, err, name)
		assert.True(t, errors.Is(err, errclass.ErrNameInvalid), name)
	}
}

func TestValidateRef_Valid(t *testing.T) {
	for _, ref := range []string{"HEAD", "main", "a1b2c3d4", "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"} {
		assert.NoError(t, pathutil.ValidateRef(ref), ref)
	}
}

func TestValidateRef_Invalid(t *testing.T) {
	for _, ref := range []string{"", "-rf", "a b", "a\nb", "ref:name", "a/../b"} {
		err := pathutil.ValidateRef(ref)
		assert.Error(t, err, ref)
		assert.True(t, errors.Is(err, errclass.ErrNameInvalid), ref)
	}
}
