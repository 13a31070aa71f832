package server

import (
	"io"

	"github.com/ValentinKolb/rKV/resp/replication"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics bundles the counters exported by one server instance. Every
// instance owns its own metrics.Set, so multiple servers in one process
// (common in tests) never collide on metric registration.
type serverMetrics struct {
	set *metrics.Set

	connectionsTotal  *metrics.Counter
	connectionsActive *metrics.Counter
	commandsTotal     *metrics.Counter
	errorsTotal       *metrics.Counter
	keyspaceHits      *metrics.Counter
	keyspaceMisses    *metrics.Counter
}

// newServerMetrics creates the metric set for one server instance. The
// follower gauge reads live from the replication log.
func newServerMetrics(log *replication.Log) *serverMetrics {
	set := metrics.NewSet()

	m := &serverMetrics{
		set:               set,
		connectionsTotal:  set.NewCounter("rkv_connections_total"),
		connectionsActive: set.NewCounter("rkv_connections_active"),
		commandsTotal:     set.NewCounter("rkv_commands_total"),
		errorsTotal:       set.NewCounter("rkv_errors_total"),
		keyspaceHits:      set.NewCounter("rkv_keyspace_hits_total"),
		keyspaceMisses:    set.NewCounter("rkv_keyspace_misses_total"),
	}

	set.NewGauge("rkv_replication_followers", func() float64 {
		return float64(log.Followers())
	})

	return m
}

// WritePrometheus writes all metrics of this instance in Prometheus text format.
func (m *serverMetrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
