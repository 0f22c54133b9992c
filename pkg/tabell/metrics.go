package tabell

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tabell-io/tabell-go/pkg/errs"
)

// requestMetrics counts finished requests per operation and outcome.
// The vector belongs to the client instance; register it via
// Client.Collector when a registry exists.
type requestMetrics struct {
	vec *prometheus.CounterVec
}

func newRequestMetrics() *requestMetrics {
	return &requestMetrics{
		vec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tabell",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Finished backend requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
}

func (m *requestMetrics) count(op errs.Op, err error) {
	m.vec.WithLabelValues(string(op), outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}

	switch errs.KindOf(err) {
	case errs.Validation:
		return "validation"
	case errs.Unauthenticated:
		return "unauthenticated"
	case errs.Unauthorized:
		return "unauthorized"
	case errs.NotExist:
		return "not_exist"
	case errs.Exist:
		return "exist"
	case errs.RateLimited:
		return "rate_limited"
	case errs.Timeout:
		return "timeout"
	case errs.Unavailable:
		return "unavailable"
	case errs.Internal:
		return "internal"
	case errs.InvalidRequest:
		return "invalid_request"
	case errs.IO:
		return "io"
	default:
		return "other"
	}
}

// Collector exposes the client's request counters for registration
// in a prometheus registry.
func (c *Client) Collector() prometheus.Collector {
	return c.requests.vec
}
