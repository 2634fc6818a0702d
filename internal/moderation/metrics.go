package moderation

import "github.com/prometheus/client_golang/prometheus"

var (
	// decisions counts pipeline outcomes by deciding method and result.
	decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatboard_moderation_decisions_total",
		Help: "Moderation decisions by method and outcome",
	}, []string{"method", "allowed"})

	// classifierUnavailable counts remote calls that failed open.
	classifierUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatboard_moderation_classifier_unavailable_total",
		Help: "Remote classifier calls that failed and defaulted to allow",
	})

	// verdictCacheHits counts classifier verdicts served from the cache.
	verdictCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatboard_moderation_cache_hits_total",
		Help: "Classifier verdicts served from the verdict cache",
	})
)

func init() {
	prometheus.MustRegister(decisions, classifierUnavailable, verdictCacheHits)
}
