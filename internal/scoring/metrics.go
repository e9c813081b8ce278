package scoring

import "github.com/prometheus/client_golang/prometheus"

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "predictions_total",
			Help:      "Completed predictions by confidence tier and verdict.",
		},
		[]string{"confidence", "verdict"},
	)

	predictionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "prediction_errors_total",
			Help:      "Failed predictions by error kind.",
		},
		[]string{"kind"},
	)

	inferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudgate",
		Name:      "inference_duration_seconds",
		Help:      "Classifier predict + predict_proba latency in seconds.",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	lastSequence = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate",
		Name:      "sequence_last",
		Help:      "Last request sequence number handed to the encoder.",
	})
)

func init() {
	prometheus.MustRegister(
		predictionsTotal,
		predictionErrorsTotal,
		inferenceDuration,
		lastSequence,
	)
}
