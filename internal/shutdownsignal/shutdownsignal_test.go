package shutdownsignal

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitForSignalDeliversFirstSignal(t *testing.T) {
	ch := WaitForSignal(syscall.SIGUSR1)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case sig := <-ch:
		require.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestDefaultSignalsCoversSIGTERMAndSIGINT(t *testing.T) {
	got := defaultSignals()
	require.Contains(t, got, syscall.SIGTERM)
	require.Contains(t, got, syscall.SIGINT)
}
