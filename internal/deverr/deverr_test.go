package deverr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(InvalidReference, "registerDevice", "nil child reference", nil)
	require.Equal(t, "InvalidReference: registerDevice: nil child reference", err.Error())

	wrapped := New(InternalFailure, "bind", "naming directory bind failed", errors.New("connection refused"))
	require.Equal(t, "InternalFailure: bind: naming directory bind failed: connection refused", wrapped.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(RegisterError, "registerManager", "", cause)
	require.ErrorIs(t, err, cause)
}

func TestIs(t *testing.T) {
	err := New(FatalInitError, "start", "cache not writable", nil)
	require.True(t, Is(err, FatalInitError))
	require.False(t, Is(err, InvalidReference))

	outer := fmt.Errorf("context: %w", err)
	require.True(t, Is(outer, FatalInitError))

	require.False(t, Is(errors.New("plain error"), InvalidReference))
	require.False(t, Is(nil, InvalidReference))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "InvalidReference", InvalidReference.String())
	require.Equal(t, "RegisterError", RegisterError.String())
	require.Equal(t, "InternalFailure", InternalFailure.String())
	require.Equal(t, "FatalInitError", FatalInitError.String())
}
