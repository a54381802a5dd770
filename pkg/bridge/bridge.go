// Package bridge maintains the ingest path from the simulator: a
// long-lived streaming connection with backoff reconnects, a periodic
// snapshot poll that keeps correlation alive across stream outages, and
// quiet-stream detection.
package bridge

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/drak0niii/Launch-CTRL/pkg/bus"
	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/delta"
	"github.com/drak0niii/Launch-CTRL/pkg/metrics"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
	"github.com/drak0niii/Launch-CTRL/pkg/tower"
)

// Source is the subset of the tower client the bridge drives.
type Source interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
	Stream(ctx context.Context) (io.ReadCloser, error)
}

// Bridge feeds the delta emitter and the bus from the simulator.
type Bridge struct {
	cfg     config.BridgeConfig
	source  Source
	emitter *delta.Emitter
	bus     *bus.Bus

	connected atomic.Bool
	lastMsg   atomic.Int64 // unix nanos of the last stream message

	snapMu   sync.RWMutex
	snapshot models.Snapshot

	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a bridge.
func New(cfg config.BridgeConfig, source Source, emitter *delta.Emitter, b *bus.Bus) *Bridge {
	return &Bridge{
		cfg:     cfg,
		source:  source,
		emitter: emitter,
		bus:     b,
		logger:  slog.With("component", "bridge"),
	}
}

// Start launches the stream, poll, and quiet-watch loops. They run until
// ctx is cancelled; Wait blocks for their exit.
func (b *Bridge) Start(ctx context.Context) {
	b.wg.Add(3)
	go func() {
		defer b.wg.Done()
		b.streamLoop(ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.pollLoop(ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.quietLoop(ctx)
	}()
	b.logger.Info("Bridge started",
		"poll_interval", b.cfg.PollInterval, "quiet_after", b.cfg.QuietAfter)
}

// Wait blocks until all bridge loops have exited.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Connected reports stream health.
func (b *Bridge) Connected() bool {
	return b.connected.Load()
}

// LastSnapshot returns the most recent cached snapshot.
func (b *Bridge) LastSnapshot() models.Snapshot {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()
	return b.snapshot.Clone()
}

// streamLoop keeps the streaming connection alive with exponential
// backoff (base 1 s, cap 10 s, ±20% jitter).
func (b *Bridge) streamLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.ReconnectBase
	bo.MaxInterval = b.cfg.ReconnectCap
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0

	hadConnection := false
	for {
		if ctx.Err() != nil {
			return
		}

		body, err := b.source.Stream(ctx)
		if err != nil {
			wait := bo.NextBackOff()
			b.logger.Warn("Stream connect failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		// New connection: forget the old views so no events are emitted
		// for state that predates it.
		b.emitter.Reset()
		b.connected.Store(true)
		b.lastMsg.Store(time.Now().UnixNano())
		metrics.BridgeConnected.Set(1)
		if hadConnection {
			b.publishHealth(models.EventBusReconnected)
		}
		hadConnection = true
		b.logger.Info("Stream connected")

		b.readStream(ctx, body)
		body.Close()

		b.connected.Store(false)
		metrics.BridgeConnected.Set(0)
		b.publishHealth(models.EventBusDisconnected)
		b.logger.Warn("Stream disconnected")
	}
}

// readStream consumes line-delimited messages until the connection drops.
// Comment lines (keep-alives) only refresh the quiet timer.
func (b *Bridge) readStream(ctx context.Context, body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		b.lastMsg.Store(time.Now().UnixNano())

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" || line[0] != '{' {
			continue
		}

		snap, err := tower.ParseSnapshot([]byte(line))
		if err != nil || snap == nil {
			continue
		}
		b.ingest(snap, "stream")
	}
}

// pollLoop fetches a snapshot on a fixed cadence regardless of stream
// health.
func (b *Bridge) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := b.source.Snapshot(ctx)
			if err != nil {
				b.logger.Warn("Snapshot poll failed", "error", err)
				continue
			}
			b.ingest(snap, "poll")
		}
	}
}

// quietLoop warns when a connected stream has gone silent.
func (b *Bridge) quietLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.QuietAfter / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.connected.Load() {
				continue
			}
			last := time.Unix(0, b.lastMsg.Load())
			if silence := time.Since(last); silence > b.cfg.QuietAfter {
				b.logger.Warn("Stream is connected but quiet",
					"silence", silence.Round(time.Second))
			}
		}
	}
}

// ingest updates the cached snapshot, runs the delta, and publishes the
// resulting events followed by a fleet-wide state.update.
func (b *Bridge) ingest(snap models.Snapshot, source string) {
	b.snapMu.Lock()
	b.snapshot = snap
	b.snapMu.Unlock()

	for _, evt := range b.emitter.Ingest(snap, source) {
		metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
		b.bus.Publish(evt)
	}

	update := models.BusEvent{
		Type:    models.EventStateUpdate,
		SiteID:  models.SiteAll,
		TS:      models.FormatTimestamp(time.Now()),
		Source:  source,
		Payload: snap.Clone(),
	}
	metrics.EventsPublished.WithLabelValues(string(update.Type)).Inc()
	b.bus.Publish(update)
}

func (b *Bridge) publishHealth(t models.EventType) {
	b.bus.Publish(models.BusEvent{
		Type:   t,
		SiteID: models.SiteAll,
		TS:     models.FormatTimestamp(time.Now()),
		Source: "bridge",
	})
}
