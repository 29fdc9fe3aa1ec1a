package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCstringStopsAtFirstNulByte(t *testing.T) {
	require.Equal(t, "Linux", cstring([]byte{'L', 'i', 'n', 'u', 'x', 0, 0, 0}))
	require.Equal(t, "", cstring([]byte{0, 0, 0}))
	require.Equal(t, "x86_64", cstring([]byte("x86_64")))
}

func TestSetVersionUpdatesRootCommand(t *testing.T) {
	SetVersion("1.2.3")
	require.Equal(t, "1.2.3", version)
	require.Equal(t, "1.2.3", rootCmd.Version)
}
