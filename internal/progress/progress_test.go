package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func beginMsg(total int) json.RawMessage {
	return []byte(`{"token":"backgroundIndexProgress","value":{"kind":"begin","total":` + itoa(total) + `}}`)
}

func reportMsg(current, total int) json.RawMessage {
	return []byte(`{"token":"backgroundIndexProgress","value":{"kind":"report","current":` + itoa(current) + `,"total":` + itoa(total) + `}}`)
}

func endMsg() json.RawMessage {
	return []byte(`{"token":"backgroundIndexProgress","value":{"kind":"end"}}`)
}

func endErrMsg(msg string) json.RawMessage {
	return []byte(`{"token":"backgroundIndexProgress","value":{"kind":"end","error":"` + msg + `"}}`)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func TestUnknownTokenIsIgnored(t *testing.T) {
	m := New()
	m.HandleProgress([]byte(`{"token":"other","value":{"kind":"begin"}}`))
	require.Equal(t, Idle, m.Snapshot().State)
}

func TestS3IndexingInFlightSequence(t *testing.T) {
	m := New()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	doneCh := make(chan error, 1)
	go func() { doneCh <- m.WaitForIdle(ctx) }()

	m.HandleProgress(reportMsg(0, 3))
	require.Equal(t, Indexing, m.Snapshot().State)

	m.HandleProgress(reportMsg(1, 3))
	time.Sleep(5 * time.Millisecond) // ensure elapsed > 0 for ETA
	status := m.Status(time.Now())
	require.NotNil(t, status.EstimatedTimeRemaining)
	require.Greater(t, *status.EstimatedTimeRemaining, time.Duration(0))

	m.HandleProgress(reportMsg(3, 3))
	m.HandleProgress(endMsg())

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ensure_indexed-equivalent never observed completion")
	}
	require.Equal(t, Completed, m.Snapshot().State)
}

func TestWaitForIdleReturnsImmediatelyWhenAlreadyCompleted(t *testing.T) {
	m := New()
	m.HandleProgress(beginMsg(1))
	m.HandleProgress(reportMsg(1, 1))
	m.HandleProgress(endMsg())

	err := m.WaitForIdle(context.Background())
	require.NoError(t, err)
}

func TestWaitForIdleSurfacesFailure(t *testing.T) {
	m := New()
	m.HandleProgress(beginMsg(1))
	m.HandleProgress(endErrMsg("boom"))

	err := m.WaitForIdle(context.Background())
	require.Error(t, err)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
}

func TestCancelledWaiterDoesNotAffectOthers(t *testing.T) {
	m := New()
	m.HandleProgress(beginMsg(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := m.WaitForIdle(ctx)
	require.Error(t, err) // this waiter times out

	doneCh := make(chan error, 1)
	go func() { doneCh <- m.WaitForIdle(context.Background()) }()
	m.HandleProgress(endMsg())

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second waiter never observed completion")
	}
}

func TestCoverageMonotonicityAcrossReports(t *testing.T) {
	m := New()
	m.HandleProgress(beginMsg(5))
	prev := 0
	for _, current := range []int{1, 2, 2, 4, 5} {
		m.HandleProgress(reportMsg(current, 5))
		require.GreaterOrEqual(t, m.Snapshot().Indexed, prev)
		prev = m.Snapshot().Indexed
	}
}
