package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/ValentinKolb/binrpc/lib/util"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics holds the metrics of one server. Every server owns its own
// set, so several servers can live in one process.
type serverMetrics struct {
	set *metrics.Set

	calls          *metrics.Counter
	faults         *metrics.Counter
	protocolErrors *metrics.Counter
	accepted       *metrics.Counter
	rejected       *metrics.Counter
	idle           *metrics.Counter
	dispatch       *metrics.Histogram

	requestSizes *util.SizeHistogram
	replySizes   *util.SizeHistogram
}

func newServerMetrics(s *RPCServer) *serverMetrics {
	set := metrics.NewSet()
	m := &serverMetrics{
		set:            set,
		calls:          set.NewCounter("binrpc_server_calls_total"),
		faults:         set.NewCounter("binrpc_server_faults_total"),
		protocolErrors: set.NewCounter("binrpc_server_protocol_errors_total"),
		accepted:       set.NewCounter("binrpc_server_connections_accepted_total"),
		rejected:       set.NewCounter("binrpc_server_connections_rejected_total"),
		idle:           set.NewCounter("binrpc_server_connections_parked_total"),
		dispatch:       set.NewHistogram("binrpc_server_dispatch_duration_seconds"),
		requestSizes:   util.NewSizeHistogram(),
		replySizes:     util.NewSizeHistogram(),
	}

	set.NewGauge("binrpc_server_workers_busy", func() float64 { return float64(s.pool.Busy()) })
	set.NewGauge("binrpc_server_workers_total", func() float64 { return float64(s.pool.Total()) })
	set.NewGauge("binrpc_server_jobs_queued", func() float64 { return float64(s.pool.Queued()) })
	set.NewGauge("binrpc_server_connections_open", func() float64 { return float64(s.conns.Size()) })
	set.NewGauge("binrpc_server_connections_idle", func() float64 { return float64(s.reactor.Len()) })
	set.NewGauge("binrpc_server_request_size_p50_bytes", func() float64 { return float64(m.requestSizes.MedianEstimate()) })
	set.NewGauge("binrpc_server_reply_size_p50_bytes", func() float64 { return float64(m.replySizes.MedianEstimate()) })
	return m
}

func (m *serverMetrics) observeDispatch(start time.Time) {
	m.dispatch.Update(time.Since(start).Seconds())
}

// WritePrometheus writes the server metrics in Prometheus text format
func (s *RPCServer) WritePrometheus(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}

// serveMetrics exposes /metrics and the pprof handlers on endpoint and
// returns the function that stops the http server
func (s *RPCServer) serveMetrics(endpoint string) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: endpoint, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		Logger.Infof("Starting metrics server on %s", endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics server: %v", err)
		}
	}()
	return func() { _ = srv.Close() }
}

// --------------------------------------------------------------------------
// Stats
// --------------------------------------------------------------------------

// Stats is a snapshot of the server state
type Stats struct {
	Runmode          Runmode
	Connections      int
	IdleConnections  int
	BusyWorkers      int64
	TotalWorkers     int64
	QueuedJobs       int64
	Calls            uint64
	Faults           uint64
	ProtocolErrors   uint64
	MedianRequestLen int
	MedianReplyLen   int
	P99ReplyLen      int
}

// Stats returns a snapshot of the server state
func (s *RPCServer) Stats() Stats {
	m := s.metrics
	return Stats{
		Runmode:          s.Runmode(),
		Connections:      s.conns.Size(),
		IdleConnections:  s.reactor.Len(),
		BusyWorkers:      s.pool.Busy(),
		TotalWorkers:     s.pool.Total(),
		QueuedJobs:       s.pool.Queued(),
		Calls:            m.calls.Get(),
		Faults:           m.faults.Get(),
		ProtocolErrors:   m.protocolErrors.Get(),
		MedianRequestLen: m.requestSizes.MedianEstimate(),
		MedianReplyLen:   m.replySizes.MedianEstimate(),
		P99ReplyLen:      m.replySizes.GetPercentileEstimate(99),
	}
}
