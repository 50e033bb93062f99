package metric

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/smoothsail/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())

	registry.CoreMetrics().RecordQueueDepth(3)
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "smoothsail_bus_queue_depth" {
			found = true
		}
	}
	assert.True(t, found, "core metrics should be registered")
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_total",
		Help: "Heartbeats sent",
	})

	require.NoError(t, registry.Register("heartbeat", "beats", counter))

	err := registry.Register("heartbeat", "beats", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_total",
		Help: "Heartbeats sent",
	})
	err = registry.Register("other", "beats", other)
	require.Error(t, err, "prometheus rejects the same fully qualified name")
	assert.True(t, errors.IsInvalid(err))

	assert.True(t, registry.Unregister("heartbeat", "beats"))
	assert.False(t, registry.Unregister("heartbeat", "beats"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordResolution("db", "created")
		m.RecordComponentStatus("db", 2)
		m.RecordStartAttempt("db", true)
		m.RecordStartupDuration("db", time.Second)
		m.RecordRestart("db", false)
		m.RecordRecoveryAttempt("db", "monitor")
		m.RecordPublished("high", true)
		m.RecordDelivery("db", "success", time.Millisecond)
		m.RecordQueueDepth(1)
		m.RecordEviction()
		m.RecordExpired(2)
		m.RecordDeadLetter()
		m.RecordHealth("db", 90, 0, time.Millisecond)
		m.RecordAlert("db", "critical")
		m.RecordSystemHealth(1)
		m.RecordResourceUsage("cpu", 12.5)
		m.ForgetComponent("db")
	})
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordStartAttempt("db", false)
	m.RecordStartAttempt("db", false)
	m.RecordStartAttempt("db", true)
	m.RecordPublished("critical", true)
	m.RecordDeadLetter()
	m.RecordExpired(3)
	m.RecordHealth("db", 75, 1, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StartAttempts.WithLabelValues("db", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StartAttempts.WithLabelValues("db", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesPublished.WithLabelValues("critical", "sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLetters))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesExpired))
	assert.Equal(t, 75.0, testutil.ToFloat64(m.HealthScore.WithLabelValues("db")))

	m.ForgetComponent("db")
	assert.Equal(t, 0, testutil.CollectAndCount(m.HealthScore))
}

func TestServer_ServesMetricsAndHandlers(t *testing.T) {
	registry := NewMetricsRegistry()
	server := NewServer(0, "", registry, nil)
	server.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	assert.Equal(t, "", server.Address())
	require.NoError(t, server.Start())
	defer func() {
		_ = server.Stop(context.Background())
	}()

	err := server.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	base := server.Address()
	require.NotEmpty(t, base)

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "smoothsail_bus_queue_depth")

	require.NoError(t, server.Stop(context.Background()))
	assert.NoError(t, server.Stop(context.Background()), "double stop is safe")
}
