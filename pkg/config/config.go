// Package config holds the typed configuration for every component of the
// control plane, with built-in defaults and environment overrides.
package config

import "time"

// Config is the umbrella configuration object returned by Load() and
// threaded through the application during wiring.
type Config struct {
	HTTPPort   string
	PolicyFile string

	Tower        TowerConfig
	Bridge       BridgeConfig
	Delta        DeltaConfig
	Bus          BusConfig
	Supervisor   SupervisorConfig
	Correlation  CorrelationConfig
	Troubleshoot TroubleshootConfig
	RCA          RCAConfig
	Mailer       MailerConfig
}

// TowerConfig configures the simulator HTTP client.
type TowerConfig struct {
	// BaseURL is the simulator's request/response endpoint root.
	BaseURL string
	// StreamURL is the simulator's line-delimited event stream.
	StreamURL string
	// RequestTimeout bounds every individual HTTP request.
	RequestTimeout time.Duration
	// MaxRetries is the retry budget after the first attempt.
	MaxRetries int
	// RetrySpacing is the fixed wait between retries.
	RetrySpacing time.Duration
}

// BridgeConfig configures the tower bridge's ingest loops.
type BridgeConfig struct {
	// PollInterval is the snapshot fallback cadence, stream health aside.
	PollInterval time.Duration
	// ReconnectBase and ReconnectCap bound the exponential backoff between
	// stream reconnect attempts. Jitter is ±20% of the current interval.
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	// QuietAfter is how long a connected stream may stay silent before an
	// operator warning is logged.
	QuietAfter time.Duration
}

// DeltaConfig configures the snapshot delta emitter.
type DeltaConfig struct {
	// BootstrapEmit controls whether the very first ingest emits one
	// alarm.raised per already-present alarm. Operator-visible: it affects
	// what the cold-start sweep sees on the first connect.
	BootstrapEmit bool
}

// BusConfig configures the incident bus.
type BusConfig struct {
	// RingCapacity is the bounded replay ring size (drop-oldest).
	RingCapacity int
	// HydrateCount is how many buffered events a new subscriber receives.
	HydrateCount int
	// SubscriberBuffer is the per-subscriber channel capacity. A full
	// buffer drops the event for that subscriber only.
	SubscriberBuffer int
}

// SupervisorConfig configures the orchestrator.
type SupervisorConfig struct {
	// LogRingCapacity bounds the operator log ring.
	LogRingCapacity int
	// LedgerMaxEntries triggers TTL eviction when exceeded.
	LedgerMaxEntries int
	// LedgerTTL is how long a processed event id suppresses duplicates.
	LedgerTTL time.Duration
}

// CorrelationConfig configures the correlation agent.
type CorrelationConfig struct {
	// Window is the incident clustering window. Events spaced exactly one
	// window apart still join the same incident (inclusive boundary).
	Window time.Duration
}

// TroubleshootConfig configures the troubleshooting agent's plan execution
// timing. Every wait is cancellable.
type TroubleshootConfig struct {
	// BootSettle is the wait after power.on before any further step.
	BootSettle time.Duration
	// InterStep is the pause between consecutive plan steps.
	InterStep time.Duration
	// HealAttempts bounds the radio-heal loop per antenna.
	HealAttempts int
	// HealOnWait is the settle time after sending rru on.
	HealOnWait time.Duration
	// HealOffPause is the pause between rru off and rru on in a power cycle.
	HealOffPause time.Duration
	// BootPolls and BootPollWait bound the extra wait for a site that has
	// mains but has not finished booting.
	BootPolls    int
	BootPollWait time.Duration
	// SweepPasses bounds the post-plan alarm sweeps.
	SweepPasses int
	// SweepPolls and SweepPollWait bound the re-read at the top of a sweep.
	SweepPolls    int
	SweepPollWait time.Duration
	// SweepBootPolls and SweepBootPollWait bound the in-sweep boot wait.
	SweepBootPolls    int
	SweepBootPollWait time.Duration
}

// RCAConfig configures the RCA agent.
type RCAConfig struct {
	// CasebookCapacity bounds the in-memory casebook (drop-oldest).
	CasebookCapacity int
	// DedupWindow suppresses a repeat case with identical (cause,
	// resolution) for the same site within this window.
	DedupWindow time.Duration
}

// MailerConfig configures the dispatch email transport. An empty SMTPHost
// switches the mailer to logging-only dry-run mode.
type MailerConfig struct {
	SMTPHost string
	SMTPPort string
	Username string
	Password string
	From     string
	To       string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:   "8080",
		PolicyFile: "policy.yaml",
		Tower: TowerConfig{
			BaseURL:        "http://localhost:4600",
			StreamURL:      "http://localhost:4600/stream",
			RequestTimeout: 3 * time.Second,
			MaxRetries:     2,
			RetrySpacing:   time.Second,
		},
		Bridge: BridgeConfig{
			PollInterval:  5 * time.Second,
			ReconnectBase: time.Second,
			ReconnectCap:  10 * time.Second,
			QuietAfter:    15 * time.Second,
		},
		Delta: DeltaConfig{BootstrapEmit: true},
		Bus: BusConfig{
			RingCapacity:     100,
			HydrateCount:     5,
			SubscriberBuffer: 64,
		},
		Supervisor: SupervisorConfig{
			LogRingCapacity:  2000,
			LedgerMaxEntries: 5000,
			LedgerTTL:        60 * time.Second,
		},
		Correlation: CorrelationConfig{Window: 5 * time.Minute},
		Troubleshoot: TroubleshootConfig{
			BootSettle:        2500 * time.Millisecond,
			InterStep:         500 * time.Millisecond,
			HealAttempts:      3,
			HealOnWait:        1200 * time.Millisecond,
			HealOffPause:      400 * time.Millisecond,
			BootPolls:         3,
			BootPollWait:      1200 * time.Millisecond,
			SweepPasses:       3,
			SweepPolls:        2,
			SweepPollWait:     1200 * time.Millisecond,
			SweepBootPolls:    3,
			SweepBootPollWait: 1500 * time.Millisecond,
		},
		RCA: RCAConfig{
			CasebookCapacity: 500,
			DedupWindow:      10 * time.Second,
		},
	}
}
