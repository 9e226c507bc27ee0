package perr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(KindCacheMiss, "no entry for %q", "abc123")
	require.Error(t, err)
	assert.Equal(t, KindCacheMiss, err.Kind)
	assert.Equal(t, "CacheMiss: no entry for \"abc123\"", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindUpstreamFailure, cause, "calling %s", "tool")
	assert.Equal(t, KindUpstreamFailure, err.Kind)
	assert.Same(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "UpstreamFailure: calling tool: boom")
}

func TestOfKind(t *testing.T) {
	err := New(KindUnknownServer, "no such upstream")
	assert.True(t, OfKind(err, KindUnknownServer))
	assert.False(t, OfKind(err, KindCacheMiss))
	assert.False(t, OfKind(errors.New("plain"), KindCacheMiss))
}

func TestErrorsIs(t *testing.T) {
	sentinel := New(KindUpstreamTimeout, "")
	wrapped := Wrap(KindUpstreamTimeout, errors.New("deadline exceeded"), "calling x")
	assert.True(t, errors.Is(wrapped, sentinel))

	other := New(KindCacheMiss, "")
	assert.False(t, errors.Is(wrapped, other))
}

func TestAsText(t *testing.T) {
	err := New(KindInvalidArgument, "missing field %q", "pattern")
	assert.Equal(t, "Error: missing field \"pattern\"", AsText(err))

	plain := errors.New("plain failure")
	assert.Equal(t, "Error: plain failure", AsText(plain))
}

func TestWrapPreservesCauseChain(t *testing.T) {
	root := errors.New("root cause")
	err := Wrap(KindConfig, root, "loading config")
	assert.True(t, errors.Is(err, root))
}
