package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "should vanish"))
}

func TestHasCode_WalksChain(t *testing.T) {
	base := errors.New("socket closed")
	inner := Wrap(base, CodeUnavailable, "lease store unreachable")
	outer := Wrap(inner, CodeActivityFailure, "UpdateVisibleServices failed")

	assert.True(t, HasCode(outer, CodeActivityFailure))
	assert.True(t, HasCode(outer, CodeUnavailable))
	assert.False(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(base, CodeUnavailable))
}

func TestCodeOf(t *testing.T) {
	t.Run("outermost code wins", func(t *testing.T) {
		err := Wrap(New(CodeNotFound, "missing"), CodeConflict, "retry")
		assert.Equal(t, CodeConflict, CodeOf(err))
	})

	t.Run("uncoded error maps to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestError_UnwrapSupportsErrorsIs(t *testing.T) {
	base := errors.New("root cause")
	wrapped := Wrap(fmt.Errorf("context: %w", base), CodeInternal, "wrapped")

	require.Error(t, wrapped)
	assert.True(t, errors.Is(wrapped, base))
}
