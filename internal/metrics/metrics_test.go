package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/thrudrop/internal/observe"
)

func TestEmitCountsTransfers(t *testing.T) {
	m := New()

	m.Emit(observe.Event{Kind: observe.ConnectionAccepted})
	m.Emit(observe.Event{Kind: observe.ConnectionStarted})
	require.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections))

	m.Emit(observe.Event{Kind: observe.ResumeOffered, Offset: 0})
	m.Emit(observe.Event{Kind: observe.TransferReceived, Bytes: 5})
	m.Emit(observe.Event{Kind: observe.ChecksumVerified, DeclaredSize: 5})

	m.Emit(observe.Event{Kind: observe.ResumeOffered, Offset: 3})
	m.Emit(observe.Event{Kind: observe.TransferReceived, Bytes: 2})
	m.Emit(observe.Event{Kind: observe.ChecksumMismatch, DeclaredSize: 5})

	m.Emit(observe.Event{Kind: observe.TransferSkipped})
	m.Emit(observe.Event{Kind: observe.ConnectionClosed, Cause: "recv_data", Bytes: 10})

	require.Equal(t, 1.0, testutil.ToFloat64(m.connectionsAccepted))
	require.Equal(t, 0.0, testutil.ToFloat64(m.activeConnections))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("verified")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("mismatch")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.resumedTransfers))
	require.Equal(t, 17.0, testutil.ToFloat64(m.bytesReceived))
	require.Equal(t, 1.0, testutil.ToFloat64(m.connectionsClosed.WithLabelValues("recv_data")))
}

func TestRegisterGaugeFuncs(t *testing.T) {
	m := New()
	queued, busy := 3, 2
	m.RegisterQueue(func() int { return queued })
	m.RegisterWorkers(5, func() int { return busy })

	expected := `
# HELP thrudrop_dispatch_queue_length Accepted connections waiting for a worker
# TYPE thrudrop_dispatch_queue_length gauge
thrudrop_dispatch_queue_length 3
# HELP thrudrop_workers Fixed size of the worker pool
# TYPE thrudrop_workers gauge
thrudrop_workers 5
# HELP thrudrop_workers_busy Workers currently serving a connection
# TYPE thrudrop_workers_busy gauge
thrudrop_workers_busy 2
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"thrudrop_dispatch_queue_length", "thrudrop_workers", "thrudrop_workers_busy")
	require.NoError(t, err)
}
