package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Delivery outcome counters. Labels stay low-cardinality: kind is token or
// topic, outcome is success or failure.
var (
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_relay_deliveries_total",
		Help: "FCM delivery attempts by destination kind and outcome.",
	}, []string{"kind", "outcome"})

	TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_relay_token_exchanges_total",
		Help: "OAuth2 JWT-bearer exchanges by outcome.",
	}, []string{"outcome"})

	TokenDeactivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_relay_token_deactivations_total",
		Help: "Device tokens marked inactive after FCM reported them dead.",
	})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_relay_requests_total",
		Help: "Inbound send requests by mode.",
	}, []string{"mode"})
)

// Handler exposes the default prometheus registry for the /metrics route.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
