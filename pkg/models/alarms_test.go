package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectAlarms(t *testing.T) {
	tests := []struct {
		name           string
		site           SiteState
		includeBattery bool
		want           []string
	}{
		{
			name: "healthy site",
			site: SiteState{Mains: MainsOn, SiteAlive: true, BatteryPercent: 90,
				Antenna1: AntennaState{Service: ServiceAvailable},
				Antenna2: AntennaState{Service: ServiceAvailable}},
			includeBattery: true,
			want:           nil,
		},
		{
			name: "full outage with low battery",
			site: SiteState{Mains: MainsOff, SiteAlive: false, BatteryPercent: 10,
				Antenna1: AntennaState{Service: ServiceUnavailable},
				Antenna2: AntennaState{Service: ServiceUnavailable}},
			includeBattery: true,
			want:           []string{AlarmMainsOff, AlarmSiteDown, AlarmAntennaA1, AlarmAntennaA2, AlarmBatteryGridLow},
		},
		{
			name: "battery excluded when not requested",
			site: SiteState{Mains: MainsOff, SiteAlive: true, BatteryPercent: 10,
				Antenna1: AntennaState{Service: ServiceAvailable},
				Antenna2: AntennaState{Service: ServiceAvailable}},
			includeBattery: false,
			want:           []string{AlarmMainsOff},
		},
		{
			name: "battery alarm needs grid down",
			site: SiteState{Mains: MainsOn, SiteAlive: true, BatteryPercent: 10,
				Antenna1: AntennaState{Service: ServiceAvailable},
				Antenna2: AntennaState{Service: ServiceAvailable}},
			includeBattery: true,
			want:           nil,
		},
		{
			name: "battery threshold is exclusive",
			site: SiteState{Mains: MainsOff, SiteAlive: true, BatteryPercent: BatteryLowThreshold,
				Antenna1: AntennaState{Service: ServiceAvailable},
				Antenna2: AntennaState{Service: ServiceAvailable}},
			includeBattery: true,
			want:           []string{AlarmMainsOff},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectAlarms(tc.site, tc.includeBattery))
		})
	}
}

func TestHasBlockingAlarm(t *testing.T) {
	assert.True(t, HasBlockingAlarm([]string{AlarmMainsOff}))
	assert.True(t, HasBlockingAlarm([]string{AlarmSiteDown}))
	assert.True(t, HasBlockingAlarm([]string{AlarmAntennaA2}))
	assert.False(t, HasBlockingAlarm([]string{AlarmBatteryGridLow}))
	assert.False(t, HasBlockingAlarm(nil))
}

func TestAntennaForAlarm(t *testing.T) {
	antenna, ok := AntennaForAlarm(AlarmAntennaA1)
	assert.True(t, ok)
	assert.Equal(t, AntennaOne, antenna)

	antenna, ok = AntennaForAlarm(AlarmAntennaA2)
	assert.True(t, ok)
	assert.Equal(t, AntennaTwo, antenna)

	_, ok = AntennaForAlarm(AlarmMainsOff)
	assert.False(t, ok)
}

func TestDiff(t *testing.T) {
	before := []string{AlarmMainsOff, AlarmSiteDown, AlarmAntennaA1}
	after := []string{AlarmAntennaA1}
	assert.Equal(t, []string{AlarmMainsOff, AlarmSiteDown}, Diff(before, after))
	assert.Nil(t, Diff(nil, after))
	assert.Equal(t, before, Diff(before, nil))
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := ParseTimestamp("2025-06-01T12:00:00Z")
	assert.True(t, ok)
	assert.Equal(t, 2025, ts.Year())

	ts, ok = ParseTimestamp("1748779200000")
	assert.True(t, ok)
	assert.Equal(t, 2025, ts.Year())

	_, ok = ParseTimestamp("")
	assert.False(t, ok)
	_, ok = ParseTimestamp("yesterday")
	assert.False(t, ok)
}

func TestLedgerKey_PreservesRawTimestamp(t *testing.T) {
	a := BusEvent{Type: EventAlarmRaised, SiteID: "S1", Alarm: "X", TS: "2025-06-01T12:00:00Z"}
	b := BusEvent{Type: EventAlarmRaised, SiteID: "S1", Alarm: "X", TS: "2025-06-01T12:00:00.000Z"}

	// Equivalent instants, different strings: distinct ledger identities.
	assert.NotEqual(t, a.LedgerKey(), b.LedgerKey())
	assert.Equal(t, "alarm.raised|S1|X|2025-06-01T12:00:00Z", a.LedgerKey())
}

func TestSnapshotClone_Deep(t *testing.T) {
	snap := Snapshot{"S1": {Alarms: []string{"A"}}}
	clone := snap.Clone()
	clone["S1"].Alarms[0] = "B"
	assert.Equal(t, "A", snap["S1"].Alarms[0])
}
