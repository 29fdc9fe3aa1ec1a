package cli

import (
	"golang.org/x/sys/unix"

	"github.com/sgnls/devicemanager/internal/profile"
)

// currentHostFacts reads the running kernel's machine/sysname via
// uname(2), matching the invariant spec.md §3 defines for
// ImplementationVariant matching. Grounded in the launcher package's
// existing use of golang.org/x/sys/unix for process-group signaling.
func currentHostFacts() profile.HostFacts {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return profile.HostFacts{}
	}
	return profile.HostFacts{
		Machine: cstring(u.Machine[:]),
		Sysname: cstring(u.Sysname[:]),
	}
}

func cstring(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
