package client

import (
	"github.com/rcrowley/go-metrics"
)

// clientMetrics are kept in a registry per client
type clientMetrics struct {
	registry metrics.Registry
	calls    metrics.Timer
	failures metrics.Meter
	timeouts metrics.Counter
	connects metrics.Counter
}

func newClientMetrics() *clientMetrics {
	r := metrics.NewRegistry()
	return &clientMetrics{
		registry: r,
		calls:    metrics.GetOrRegisterTimer("binrpc.client.calls", r),
		failures: metrics.GetOrRegisterMeter("binrpc.client.failures", r),
		timeouts: metrics.GetOrRegisterCounter("binrpc.client.timeouts", r),
		connects: metrics.GetOrRegisterCounter("binrpc.client.connects", r),
	}
}

// Metrics returns the registry with the call timer, the failure meter and
// the timeout and connect counters of this client
func (c *RPCClient) Metrics() metrics.Registry {
	return c.metrics.registry
}

// CallCount returns the number of completed calls
func (c *RPCClient) CallCount() int64 {
	return c.metrics.calls.Count()
}

// FailureCount returns the number of failed calls
func (c *RPCClient) FailureCount() int64 {
	return c.metrics.failures.Count()
}
