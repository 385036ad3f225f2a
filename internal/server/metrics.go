package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "as4_receive",
			Name:      "messages_received_total",
			Help:      "Total AS4 requests received, by response status.",
		},
		[]string{"status"},
	)

	processingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "as4_receive",
			Name:      "processing_duration_seconds",
			Help:      "Duration of inbound AS4 message processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	requestBytesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "as4_receive",
			Name:      "request_bytes_total",
			Help:      "Total bytes of inbound AS4 request bodies.",
		},
	)
)
