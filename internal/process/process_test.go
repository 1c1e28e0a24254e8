package process

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("os/exec.(*Cmd).watchCtx"),
	)
}

func shSpec(script string) Spec {
	if runtime.GOOS == "windows" {
		return Spec{Binary: "cmd", Argv: []string{"/C", script}}
	}
	return Spec{Binary: "/bin/sh", Argv: []string{"-c", script}}
}

func TestSpawnRunsAndReportsExit(t *testing.T) {
	ctx := context.Background()
	sup, stdin, stdout, err := Spawn(ctx, shSpec("cat"), nil)
	require.NoError(t, err)
	require.Equal(t, Running, sup.State())

	_, err = stdin.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = stdout.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	require.NoError(t, sup.StopGraceful(2*time.Second))

	select {
	case info := <-sup.Exited():
		require.Equal(t, 0, info.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit event")
	}
	require.Equal(t, Exited, sup.State())
}

func TestStopGracefulIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sup, _, _, err := Spawn(ctx, shSpec("cat"), nil)
	require.NoError(t, err)

	require.NoError(t, sup.StopGraceful(time.Second))
	require.NoError(t, sup.StopGraceful(time.Second))
	require.NoError(t, sup.StopImmediate(time.Second))
}

func TestStopGracefulEscalatesWhenUnresponsive(t *testing.T) {
	ctx := context.Background()
	// Ignores stdin EOF and SIGINT; only dies on SIGKILL.
	sup, _, _, err := Spawn(ctx, shSpec(`trap '' INT TERM; while true; do sleep 0.05; done`), nil)
	require.NoError(t, err)

	start := time.Now()
	err = sup.StopGraceful(150 * time.Millisecond)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, Exited, sup.State())
}

func TestStderrSubscriberReceivesLines(t *testing.T) {
	ctx := context.Background()
	lines := make(chan string, 8)
	sup, _, _, err := Spawn(ctx, shSpec(`echo one 1>&2; echo two 1>&2`), func(line string) {
		lines <- line
	})
	require.NoError(t, err)

	require.Equal(t, "one", <-lines)
	require.Equal(t, "two", <-lines)

	select {
	case info := <-sup.Exited():
		require.Equal(t, 0, info.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit event")
	}
}

func TestNonZeroExitReportedAsFailed(t *testing.T) {
	ctx := context.Background()
	sup, _, _, err := Spawn(ctx, shSpec("exit 7"), nil)
	require.NoError(t, err)

	select {
	case info := <-sup.Exited():
		require.Equal(t, 7, info.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit event")
	}
	require.Equal(t, Failed, sup.State())
}
