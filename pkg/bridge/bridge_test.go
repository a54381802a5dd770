package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drak0niii/Launch-CTRL/pkg/bus"
	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/delta"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

func newTestBridge() (*Bridge, *bus.Bus) {
	b := bus.New(config.BusConfig{RingCapacity: 100, HydrateCount: 0, SubscriberBuffer: 64})
	br := New(config.BridgeConfig{
		PollInterval:  time.Hour, // poll loop not under test
		ReconnectBase: time.Millisecond,
		ReconnectCap:  10 * time.Millisecond,
		QuietAfter:    time.Hour,
	}, nil, delta.NewEmitter(false), b)
	return br, b
}

func TestReadStream_IngestsDataLines(t *testing.T) {
	br, b := newTestBridge()

	// Prime the emitter with a healthy fleet, then stream a faulty one.
	br.ingest(models.Snapshot{
		"S1": {Mains: models.MainsOn, SiteAlive: true,
			Antenna1: models.AntennaState{Service: models.ServiceAvailable},
			Antenna2: models.AntennaState{Service: models.ServiceAvailable}},
	}, "poll")

	stream := strings.Join([]string{
		": keep-alive",
		"",
		`data: {"state":{"S1":{"mains":"off","siteAlive":false,` +
			`"antenna1":{"service":"Available"},"antenna2":{"service":"Available"},` +
			`"alarms":["MainsFailure"]}}}`,
	}, "\n") + "\n"

	br.readStream(context.Background(), strings.NewReader(stream))

	events := b.RecentEvents()
	// Priming publishes one state.update; the stream line publishes the
	// alarm delta plus another state.update.
	require.Len(t, events, 3)
	assert.Equal(t, models.EventStateUpdate, events[0].Type)

	assert.Equal(t, models.EventAlarmRaised, events[1].Type)
	assert.Equal(t, "S1", events[1].SiteID)
	assert.Equal(t, "MainsFailure", events[1].Alarm)
	assert.Equal(t, "stream", events[1].Source)

	assert.Equal(t, models.EventStateUpdate, events[2].Type)
	assert.Equal(t, models.SiteAll, events[2].SiteID)
	require.NotNil(t, events[2].Payload)
	site, ok := events[2].Payload.Site("S1")
	require.True(t, ok)
	assert.Equal(t, models.MainsOff, site.Mains)
}

func TestReadStream_SkipsGarbageLines(t *testing.T) {
	br, b := newTestBridge()

	stream := strings.Join([]string{
		"not json at all",
		"data: also not json",
		"data: [1,2,3]",
	}, "\n") + "\n"

	br.readStream(context.Background(), strings.NewReader(stream))
	assert.Empty(t, b.RecentEvents())
}

func TestIngest_CachesSnapshot(t *testing.T) {
	br, _ := newTestBridge()
	assert.Nil(t, br.LastSnapshot())

	br.ingest(models.Snapshot{
		"S1": {Mains: models.MainsOn, SiteAlive: true},
	}, "poll")

	snap := br.LastSnapshot()
	require.NotNil(t, snap)
	_, ok := snap.Site("S1")
	assert.True(t, ok)
}

func TestPublishHealth_EmitsBusLifecycleEvents(t *testing.T) {
	br, b := newTestBridge()
	sub := b.Subscribe()
	defer sub.Close()

	br.publishHealth(models.EventBusDisconnected)
	br.publishHealth(models.EventBusReconnected)

	assert.Equal(t, models.EventBusDisconnected, (<-sub.C).Type)
	assert.Equal(t, models.EventBusReconnected, (<-sub.C).Type)
}
