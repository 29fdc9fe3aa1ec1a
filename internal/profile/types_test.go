package profile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostFactsPropertySet(t *testing.T) {
	h := HostFacts{Machine: "x86_64", Sysname: "Linux"}
	props := h.PropertySet()
	require.Equal(t, "x86_64", props["processor_name"])
	require.Equal(t, "Linux", props["os_name"])
}

func TestImplementationVariantMatches(t *testing.T) {
	host := HostFacts{Machine: "x86_64", Sysname: "Linux"}
	v := ImplementationVariant{Processor: "x86_64", OSName: "Linux"}
	require.True(t, v.Matches(host))

	v.OSName = "Darwin"
	require.False(t, v.Matches(host))
}

func TestSelectImplementation(t *testing.T) {
	host := HostFacts{Machine: "x86_64", Sysname: "Linux"}
	pp := &ProgramProfile{
		Implementations: []ImplementationVariant{
			{ID: "arm", Processor: "armv7", OSName: "Linux"},
			{ID: "x86", Processor: "x86_64", OSName: "Linux"},
		},
	}
	impl, ok := pp.SelectImplementation(host)
	require.True(t, ok)
	require.Equal(t, "x86", impl.ID)

	_, ok = pp.SelectImplementation(HostFacts{Machine: "sparc", Sysname: "SunOS"})
	require.False(t, ok)
}

func TestProgramProfileIsService(t *testing.T) {
	cases := []struct {
		scdType string
		want    bool
	}{
		{"device", false},
		{"loadabledevice", false},
		{"executabledevice", false},
		{"service", true},
		{"", false},
		{"resource", false},
	}
	for _, c := range cases {
		pp := &ProgramProfile{SCDComponentType: c.scdType}
		require.Equal(t, c.want, pp.IsService(), "scdType=%q", c.scdType)
	}
}

func TestComponentTypeString(t *testing.T) {
	require.Equal(t, "device", ComponentDevice.String())
	require.Equal(t, "service", ComponentService.String())
	require.Equal(t, "sharedLibrary", ComponentSharedLibrary.String())
}

func TestWarningString(t *testing.T) {
	w := Warning{PlacementFileRef: "dev/foo.spd", Reason: "no matching implementation"}
	require.Equal(t, "dev/foo.spd: no matching implementation", w.String())
}
