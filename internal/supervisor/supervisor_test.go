package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SpawnFailureReturnsErrSpawnFailed(t *testing.T) {
	p := New(context.Background(), "/no/such/binary/reconcore-missing")
	result, err := p.Run(nil)
	require.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	p := New(context.Background(), "/bin/sh", "-c", "exit 3")
	result, err := p.Run(nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Stopped)
}

func TestRun_ZeroExitIsNotAnError(t *testing.T) {
	p := New(context.Background(), "/bin/sh", "-c", "exit 0")
	result, err := p.Run(nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.ExitCode)
}

func TestRun_TimeoutEscalatesToSigkillAndReturnsErrTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := New(ctx, "/bin/sh", "-c", "sleep 5")
	result, err := p.Run(nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, -1, result.ExitCode)
	assert.False(t, result.Stopped)
}

func TestRun_StopReturnsErrStoppedAndMarksResult(t *testing.T) {
	p := New(context.Background(), "/bin/sh", "-c", "sleep 5")

	var wg sync.WaitGroup
	wg.Add(1)
	var result *Result
	var err error
	go func() {
		defer wg.Done()
		result, err = p.Run(nil)
	}()

	// Give the process a moment to actually start before stopping it.
	time.Sleep(50 * time.Millisecond)
	p.Stop(2 * time.Second)
	wg.Wait()

	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, errors.Is(err, ErrStopped))
	assert.True(t, result.Stopped)
}

func TestRun_StreamsOutputLinesToCallback(t *testing.T) {
	p := New(context.Background(), "/bin/sh", "-c", "echo one; echo two >&2")

	var mu sync.Mutex
	var stdoutLines, stderrLines []string
	_, err := p.Run(func(stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		switch stream {
		case "stdout":
			stdoutLines = append(stdoutLines, line)
		case "stderr":
			stderrLines = append(stderrLines, line)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, stdoutLines)
	assert.Equal(t, []string{"two"}, stderrLines)
}

func TestCommand_TokenizesPosixShellSyntax(t *testing.T) {
	p, err := Command(context.Background(), `/bin/sh -c "exit 0"`)
	require.NoError(t, err)
	result, err := p.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestCommand_EmptyCommandLineErrors(t *testing.T) {
	p, err := Command(context.Background(), "   ")
	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestPauseResume_DoesNotDeadlockDrain(t *testing.T) {
	p := New(context.Background(), "/bin/sh", "-c", "echo before; sleep 0.05; echo after")

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Pause()
		time.Sleep(20 * time.Millisecond)
		p.Resume()
	}()

	_, err := p.Run(nil)
	require.NoError(t, err)
	<-done
}
