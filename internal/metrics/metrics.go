package metrics

import (
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microgrid_sim_ticks_total",
		Help: "Simulated days completed",
	}, []string{"policy"})

	stepReward = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "microgrid_sim_step_reward",
		Help: "Operator reward of the most recent tick",
	}, []string{"policy"})

	nanRewards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microgrid_sim_reward_nan_total",
		Help: "Ticks whose reward was not a number",
	}, []string{"policy"})

	dispatchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microgrid_dispatch_nonconverged_total",
		Help: "Daily dispatches that fell back to a clipped plan",
	})

	dispatchIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "microgrid_dispatch_iterations",
		Help:    "Linear programs solved per daily dispatch",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 100},
	})

	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "microgrid_dispatch_duration_seconds",
		Help:    "Wall time of one daily dispatch",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)

// ObserveTick records a completed tick.
func ObserveTick(policy string, reward float64) {
	ticks.WithLabelValues(policy).Inc()
	if math.IsNaN(reward) {
		nanRewards.WithLabelValues(policy).Inc()
		return
	}
	stepReward.WithLabelValues(policy).Set(reward)
}

// ObserveDispatch records one prosumer's daily solve.
func ObserveDispatch(converged bool, iterations int, took time.Duration) {
	if !converged {
		dispatchFallbacks.Inc()
	}
	dispatchIterations.Observe(float64(iterations))
	dispatchDuration.Observe(took.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
