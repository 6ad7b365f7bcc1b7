package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpersWrapSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		kind     string
	}{
		{BadRequest("from is required"), ErrBadRequest, "bad_request"},
		{Conflict("group %s already exists", "admins"), ErrConflict, "conflict"},
		{PreconditionFailed("owner %s missing", "x"), ErrPreconditionFailed, "precondition_failed"},
		{Validation("parent project %s does not exist in target", "p"), ErrValidation, "validation_failed"},
		{NoSuchAccount("account %d", 7), ErrNoSuchAccount, "no_such_account"},
		{fmt.Errorf("%w: disk full", ErrLock), ErrLock, "lock_error"},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, tc.err, tc.sentinel)
		assert.Equal(t, tc.kind, Kind(tc.err))
	}
}

func TestMessageKeepsContext(t *testing.T) {
	err := Validation("parent project %s does not exist in target", "Parent")
	assert.Equal(t, "validation failed: parent project Parent does not exist in target", err.Error())
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("failed to resolve parent of foo: %w", Conflict("busy"))
	assert.Equal(t, "conflict", Kind(err))
}

func TestKindOfOtherErrors(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "error", Kind(errors.New("connection refused")))
}
