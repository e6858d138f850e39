package deletion

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func makeVictim(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "17")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.jar"), []byte("artifact"), 0o644))
	return dir
}

func TestDeleteRemovesSubtree(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewService(Config{Workers: 2})
	defer s.Close()

	dir := makeVictim(t)
	s.Delete("alice", dir)

	require.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return s.Pending() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDeleteEmptyPathIsNoop(t *testing.T) {
	s := NewService(Config{Workers: 1})
	defer s.Close()

	s.Delete("alice", "")
	require.Equal(t, int64(0), s.Pending())
}

func TestDelayedDeletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	s := newService(Config{Workers: 1, DelaySec: 60}, clk)
	defer s.Close()

	dir := makeVictim(t)
	s.Delete("alice", dir)

	// The worker parks on the mock timer; the subtree must survive
	// until the clock advances past the delay.
	time.Sleep(50 * time.Millisecond)
	_, err := os.Stat(dir)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		clk.Add(time.Minute)
		_, err := os.Stat(dir)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDeleteAfterClose(t *testing.T) {
	s := NewService(Config{Workers: 1})
	s.Close()

	dir := makeVictim(t)
	s.Delete("alice", dir)

	_, err := os.Stat(dir)
	require.NoError(t, err)
}

func TestRateLimitedDeletionStillCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewService(Config{Workers: 2, RatePerSecond: 1000})
	defer s.Close()

	dirs := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		dirs = append(dirs, makeVictim(t))
	}
	for _, dir := range dirs {
		s.Delete("alice", dir)
	}

	require.Eventually(t, func() bool {
		for _, dir := range dirs {
			if _, err := os.Stat(dir); !os.IsNotExist(err) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConfigAdjust(t *testing.T) {
	cfg := Config{}
	cfg.Adjust()
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 0, cfg.DelaySec)
}
