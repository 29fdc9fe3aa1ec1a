package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	require.Equal(t, defaultDeviceForceQuitTime, s.DeviceForceQuitTime())
	require.Equal(t, defaultClientWaitTime, s.ClientWaitTime())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "DOMAIN_NAME: TestDomain\nSDRCACHE: /tmp/sdr\nDEVICE_FORCE_QUIT_TIME: 1.5\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "TestDomain", s.DomainName)
	require.Equal(t, "/tmp/sdr", s.SDRCache)
	require.Equal(t, 1500*time.Millisecond, s.DeviceForceQuitTime())
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
}

func TestSetOverridesForRun(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	s.SetDeviceForceQuitTime(250 * time.Millisecond)
	require.Equal(t, 250*time.Millisecond, s.DeviceForceQuitTime())

	s.SetClientWaitTime(5 * time.Second)
	require.Equal(t, 5*time.Second, s.ClientWaitTime())
}

func TestValidateRequiresDomainNameAndSDRCache(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	require.Error(t, s.Validate())

	s.DomainName = "d"
	require.Error(t, s.Validate())

	s.SDRCache = "/sdr"
	require.NoError(t, s.Validate())
}

func TestGet(t *testing.T) {
	t.Setenv(KeyDomainName, "d")
	s, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "d", s.DomainName)

	v, ok := s.Get(KeyDomainName)
	require.True(t, ok)
	require.Equal(t, "d", v)

	_, ok = s.Get("NOT_A_REAL_KEY")
	require.False(t, ok)
}
