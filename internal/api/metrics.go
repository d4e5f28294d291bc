package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/candleworks/papertrader/pkg/types"
)

// Metrics exposes the paper trader's counters to Prometheus.
type Metrics struct {
	registry        *prometheus.Registry
	candlesTotal    prometheus.Counter
	tradesTotal     *prometheus.CounterVec
	droppedSignals  prometheus.Counter
	equity          prometheus.Gauge
	drawdown        prometheus.Gauge
	connectedClient prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		candlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrader",
			Name:      "candles_processed_total",
			Help:      "Number of candles processed by the paper loop.",
		}),
		tradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrader",
			Name:      "trades_closed_total",
			Help:      "Number of closed trades by exit reason.",
		}, []string{"exit_reason"}),
		droppedSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrader",
			Name:      "dropped_signals_total",
			Help:      "Number of malformed strategy signals dropped.",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "papertrader",
			Name:      "equity",
			Help:      "Current marked equity.",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "papertrader",
			Name:      "drawdown",
			Help:      "Current drawdown from peak equity.",
		}),
		connectedClient: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "papertrader",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}

	m.registry.MustRegister(m.candlesTotal, m.tradesTotal, m.droppedSignals,
		m.equity, m.drawdown, m.connectedClient)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTrade records a closed trade.
func (m *Metrics) ObserveTrade(trade types.Trade) {
	m.tradesTotal.WithLabelValues(string(trade.ExitReason)).Inc()
}

// ObserveEquity records a processed candle's equity point.
func (m *Metrics) ObserveEquity(point types.EquityPoint) {
	m.candlesTotal.Inc()
	m.equity.Set(point.Equity.InexactFloat64())
	m.drawdown.Set(point.Drawdown.InexactFloat64())
}

// ObserveDroppedSignal counts one dropped signal.
func (m *Metrics) ObserveDroppedSignal() {
	m.droppedSignals.Inc()
}

func (m *Metrics) setClients(n int) {
	m.connectedClient.Set(float64(n))
}
