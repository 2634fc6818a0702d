package services

import "github.com/prometheus/client_golang/prometheus"

var (
	chatSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatboard_chat_submissions_total",
			Help: "Chat submissions by outcome.",
		},
		[]string{"outcome"},
	)
	pageVisits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatboard_page_visits_total",
			Help: "Tracked page visits by page key and first-visit flag.",
		},
		[]string{"page", "unique"},
	)
)

func init() {
	prometheus.MustRegister(chatSubmissions, pageVisits)
}
