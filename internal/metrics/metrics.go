package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensDetected counts new pools whose token entered the registry, by venue
	TokensDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_tokens_detected_total",
			Help: "Total number of newly detected tokens",
		},
		[]string{"venue"},
	)

	// DecodeErrors counts creation logs that could not be decoded
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_decode_errors_total",
			Help: "Total number of undecodable pool creation logs",
		},
		[]string{"reason"},
	)

	// StateTransitions counts lifecycle transitions
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_state_transitions_total",
			Help: "Total number of token state transitions",
		},
		[]string{"from", "to"},
	)

	// TrackedTokens tracks registry size by state
	TrackedTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sniper_tracked_tokens",
			Help: "Number of tokens in the registry by state",
		},
		[]string{"state"},
	)

	// ValidationVerdicts counts dry-run verdicts
	ValidationVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_validation_verdicts_total",
			Help: "Total number of dry-run verdicts",
		},
		[]string{"verdict"},
	)

	// ExternalCalls counts calls to third-party services
	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_external_calls_total",
			Help: "Total number of external API calls",
		},
		[]string{"service", "status"},
	)

	// TradesTotal counts buys and sells by outcome
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_trades_total",
			Help: "Total number of trades",
		},
		[]string{"side", "status"},
	)

	// TradeGasCost tracks gas spent per trade in ETH
	TradeGasCost = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sniper_trade_gas_cost_eth",
			Help:    "Gas cost per trade in ETH",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"side"},
	)

	// BlocksProcessed counts block headers that triggered a sweep
	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sniper_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
	)

	// LastProcessedBlock tracks the last block that triggered a sweep
	LastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sniper_last_processed_block",
			Help: "Last processed block number",
		},
	)

	// SweepDuration tracks how long a full sweep takes
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sniper_sweep_duration_seconds",
			Help:    "Lifecycle sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SweepOutcomes counts per-token task outcomes
	SweepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_sweep_outcomes_total",
			Help: "Total number of sweep task outcomes",
		},
		[]string{"action", "status"},
	)

	// SweepFailureRate tracks the failure ratio of the last sweep
	SweepFailureRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sniper_sweep_failure_rate",
			Help: "Failed task ratio of the most recent sweep",
		},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
