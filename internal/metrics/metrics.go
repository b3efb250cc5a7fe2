// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSchedulesCreated(count int)
	RecordScheduleRejected(reason string)
	RecordBookingCreated()
	RecordBookingRejected(reason string)
	RecordBookingCancelled()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	schedulesCreated  prometheus.Counter
	scheduleRejected  *prometheus.CounterVec
	bookingsCreated   prometheus.Counter
	bookingRejected   *prometheus.CounterVec
	bookingsCancelled prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		schedulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitclass_schedules_created_total",
			Help: "作成されたクラス枠の合計数",
		}),
		scheduleRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitclass_schedule_rejections_total",
			Help: "クラス枠作成が拒否された回数（理由別）",
		}, []string{"reason"}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitclass_bookings_created_total",
			Help: "作成された予約の合計数",
		}),
		bookingRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitclass_booking_rejections_total",
			Help: "予約が拒否された回数（理由別）",
		}, []string{"reason"}),
		bookingsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitclass_bookings_cancelled_total",
			Help: "キャンセルされた予約の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitclass_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fitclass_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.schedulesCreated,
		c.scheduleRejected,
		c.bookingsCreated,
		c.bookingRejected,
		c.bookingsCancelled,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSchedulesCreated は作成されたクラス枠数を記録する。
func (c *Collector) RecordSchedulesCreated(count int) {
	c.schedulesCreated.Add(float64(count))
}

// RecordScheduleRejected はクラス枠作成の拒否を記録する。reasonにはエラーコードを渡す。
func (c *Collector) RecordScheduleRejected(reason string) {
	c.scheduleRejected.WithLabelValues(reason).Inc()
}

// RecordBookingCreated は予約作成を記録する。
func (c *Collector) RecordBookingCreated() {
	c.bookingsCreated.Inc()
}

// RecordBookingRejected は予約の拒否を記録する。reasonにはエラーコードを渡す。
func (c *Collector) RecordBookingRejected(reason string) {
	c.bookingRejected.WithLabelValues(reason).Inc()
}

// RecordBookingCancelled は予約キャンセルを記録する。
func (c *Collector) RecordBookingCancelled() {
	c.bookingsCancelled.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordSchedulesCreated(int)         {}
func (Nop) RecordScheduleRejected(string)      {}
func (Nop) RecordBookingCreated()              {}
func (Nop) RecordBookingRejected(string)       {}
func (Nop) RecordBookingCancelled()            {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware はレスポンスのステータスコードと処理時間を記録するHTTPミドルウェアを返す。
func Middleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.statusCode)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
