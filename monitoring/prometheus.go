package monitoring

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tpucast/logx"
)

// FetchKind labels the upstream query that failed during a refresh pass.
type FetchKind string

var (
	FetchEpochInfo    FetchKind = "epoch_info"
	FetchSlot         FetchKind = "slot"
	FetchSlotLeaders  FetchKind = "slot_leaders"
	FetchClusterNodes FetchKind = "cluster_nodes"
	FetchVoteAccounts FetchKind = "vote_accounts"
)

type senderPromMetrics struct {
	clientUpUnixSeconds prometheus.Gauge
	sentTxCount         prometheus.Counter
	fanoutDatagramCount *prometheus.CounterVec
	fetchFailureCount   *prometheus.CounterVec
	estimatedSlot       prometheus.Gauge
	cachedLeaderCount   prometheus.Gauge
	slotUpdateCount     prometheus.Counter
	droppedUpdateCount  prometheus.Counter
	panicCount          prometheus.Counter
}

func newSenderPromMetrics() *senderPromMetrics {
	return &senderPromMetrics{
		clientUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tpucast_client_up_timestamp_unix_seconds",
				Help: "Unix timestamp of when the sending client came up",
			},
		),
		sentTxCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tpucast_sent_tx_count",
				Help: "The total number of transactions accepted for leader fanout",
			},
		),
		fanoutDatagramCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tpucast_fanout_datagram_count",
				Help: "Per-destination datagram sends, labelled by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
		fetchFailureCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tpucast_fetch_failure_count",
				Help: "Failed upstream cluster queries, labelled by query kind",
			},
			[]string{"kind"},
		),
		estimatedSlot: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tpucast_estimated_slot",
				Help: "The most recent current-slot estimate",
			},
		),
		cachedLeaderCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tpucast_cached_leader_count",
				Help: "Number of slot leaders held by the schedule cache",
			},
		),
		slotUpdateCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tpucast_slot_update_count",
				Help: "The total number of slot updates received over the push stream",
			},
		),
		droppedUpdateCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tpucast_dropped_slot_update_count",
				Help: "Slot updates dropped because the consumer fell behind",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tpucast_panic_count",
				Help: "The total number of recovered panics in background tasks",
			},
		),
	}
}

var (
	senderMetricsOnce sync.Once
	senderMetrics     *senderPromMetrics
)

func metrics() *senderPromMetrics {
	senderMetricsOnce.Do(func() {
		senderMetrics = newSenderPromMetrics()
		senderMetrics.clientUpUnixSeconds.SetToCurrentTime()
	})
	return senderMetrics
}

// InitMetrics registers the metric set eagerly. Helpers below initialize
// lazily, so calling this is optional but keeps startup timestamps honest.
func InitMetrics() {
	metrics()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("METRICS", "registering prometheus handler")
	InitMetrics()
	mux.Handle("/metrics", promhttp.Handler())
}

func IncreaseSentTxCount() {
	metrics().sentTxCount.Inc()
}

func RecordFanoutDatagram(transport string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	metrics().fanoutDatagramCount.With(prometheus.Labels{
		"transport": transport,
		"outcome":   outcome,
	}).Inc()
}

func RecordFetchFailure(kind FetchKind) {
	metrics().fetchFailureCount.With(prometheus.Labels{
		"kind": string(kind),
	}).Inc()
}

func SetEstimatedSlot(slot uint64) {
	metrics().estimatedSlot.Set(float64(slot))
}

func SetCachedLeaderCount(count int) {
	metrics().cachedLeaderCount.Set(float64(count))
}

func IncreaseSlotUpdateCount() {
	metrics().slotUpdateCount.Inc()
}

func IncreaseDroppedSlotUpdateCount() {
	metrics().droppedUpdateCount.Inc()
}

func IncreasePanicCount() {
	metrics().panicCount.Inc()
}
