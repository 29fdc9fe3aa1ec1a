package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sgnls/devicemanager/internal/deverr"
)

func TestCheckCacheEmptyRootIsNotAnError(t *testing.T) {
	require.NoError(t, CheckCache(""))
}

func TestCheckCacheAllWritableSucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "radio.prf"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "amp.prf"), []byte("x"), 0o644))

	require.NoError(t, CheckCache(dir))
}

func TestCheckCacheUnwritableFileIsFatalInitError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permission bits, cannot exercise this failure mode")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "readonly.prf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o444))
	t.Cleanup(func() { os.Chmod(path, 0o644) })

	err := CheckCache(dir)
	require.Error(t, err)
	require.True(t, deverr.Is(err, deverr.FatalInitError))
}
