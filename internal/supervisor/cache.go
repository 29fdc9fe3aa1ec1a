package supervisor

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/sgnls/devicemanager/internal/deverr"
)

// CheckCache verifies every regular file under root is writable,
// matching the original DeviceManager_impl's startup precondition on
// its SDR cache directory (spec.md §6 "Persisted state", supplemented
// from original_source/ per SPEC_FULL.md §12). An empty root is
// treated as no cache configured and is not an error. Any unwritable
// file is fatal to startup.
func CheckCache(root string) error {
	const op = "checkCache"
	if root == "" {
		return nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if accessErr := unix.Access(path, unix.W_OK); accessErr != nil {
			return fmt.Errorf("%s not writable: %w", path, accessErr)
		}
		return nil
	})
	if err != nil {
		return deverr.New(deverr.FatalInitError, op, "SDR cache directory failed writability check", err)
	}
	return nil
}
