package procexec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/errs"
)

func TestRunCapturesStdoutLines(t *testing.T) {
	var mu sync.Mutex
	var lines []string

	res, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "echo one; echo two"},
		OnStdout: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestRunPropagatesNonZeroExitCode(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "exit 7"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
}

func TestRunKillsOnTimeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 100 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	var ie *errs.InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "M412", ie.Code)
	assert.True(t, ie.Retryable)
	assert.Less(t, elapsed, 5*time.Second, "process group should have been killed rather than left to sleep out")
}

func TestRunStopsOnParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_, err := Run(ctx, Options{Command: "sh", Args: []string{"-c", "sleep 30"}})
		assert.Error(t, err)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunServesSideChannelUntilChildExits(t *testing.T) {
	var serveStarted, serveStopped bool
	var mu sync.Mutex

	res, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "sleep 0.1"},
		Serve: func(ctx context.Context) error {
			mu.Lock()
			serveStarted = true
			mu.Unlock()
			<-ctx.Done()
			mu.Lock()
			serveStopped = true
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, serveStarted)
	assert.True(t, serveStopped, "Serve's context should be cancelled once the child exits")
}

func TestRunReturnsInstallErrorForMissingCommand(t *testing.T) {
	_, err := Run(context.Background(), Options{Command: "/no/such/binary-omni-test"})
	require.Error(t, err)
	var ie *errs.InstallError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "M411", ie.Code)
}

func TestStripANSIRemovesEscapeSequences(t *testing.T) {
	got := StripANSI("\x1b[32mok\x1b[0m plain")
	assert.Equal(t, "ok plain", got)
}

func TestStripANSILeavesPlainTextUntouched(t *testing.T) {
	got := StripANSI("no escapes here")
	assert.Equal(t, "no escapes here", got)
}

func TestRunCapturesStderrSeparately(t *testing.T) {
	var out, errLines []string
	var mu sync.Mutex

	res, err := Run(context.Background(), Options{
		Command:  "sh",
		Args:     []string{"-c", "echo out-line; echo err-line 1>&2"},
		OnStdout: func(l string) { mu.Lock(); out = append(out, l); mu.Unlock() },
		OnStderr: func(l string) { mu.Lock(); errLines = append(errLines, l); mu.Unlock() },
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"out-line"}, out)
	assert.Equal(t, []string{"err-line"}, errLines)
}

func TestRunWithNilLineFuncsDrainsWithoutBlocking(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "for i in $(seq 1 500); do echo line $i; done"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

