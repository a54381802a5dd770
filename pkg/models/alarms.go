package models

import "strings"

// Derived alarm codes produced by the snapshot alarm detector. These are
// the codes the troubleshooting plan and the RCA summaries speak in.
const (
	AlarmMainsOff       = "Mains.Off"
	AlarmSiteDown       = "Site.Down"
	AlarmAntennaA1      = "Antenna.A1.Unavailable"
	AlarmAntennaA2      = "Antenna.A2.Unavailable"
	AlarmBatteryGridLow = "Battery.Low.GridDown"
)

// BatteryLowThreshold is the battery percentage below which a grid-down
// site is considered at risk.
const BatteryLowThreshold = 40

// DetectAlarms derives alarm codes from a site's current state. The
// battery alarm is optional because RCA summaries exclude it.
func DetectAlarms(site SiteState, includeBattery bool) []string {
	var alarms []string
	if site.Mains == MainsOff {
		alarms = append(alarms, AlarmMainsOff)
	}
	if !site.SiteAlive {
		alarms = append(alarms, AlarmSiteDown)
	}
	if site.Antenna1.Service == ServiceUnavailable {
		alarms = append(alarms, AlarmAntennaA1)
	}
	if site.Antenna2.Service == ServiceUnavailable {
		alarms = append(alarms, AlarmAntennaA2)
	}
	if includeBattery && site.Mains == MainsOff && site.BatteryPercent < BatteryLowThreshold {
		alarms = append(alarms, AlarmBatteryGridLow)
	}
	return alarms
}

// HasBlockingAlarm reports whether any mains, site-down, or antenna alarm
// is present. The battery alarm alone does not block an all-clear.
func HasBlockingAlarm(alarms []string) bool {
	for _, a := range alarms {
		if strings.HasPrefix(a, "Mains.") || a == AlarmSiteDown || strings.HasPrefix(a, "Antenna.") {
			return true
		}
	}
	return false
}

// AntennaForAlarm maps an antenna alarm code to its antenna identifier.
func AntennaForAlarm(alarm string) (string, bool) {
	switch alarm {
	case AlarmAntennaA1:
		return AntennaOne, true
	case AlarmAntennaA2:
		return AntennaTwo, true
	}
	return "", false
}

// Diff returns the codes present in before but absent from after.
func Diff(before, after []string) []string {
	var out []string
	for _, b := range before {
		found := false
		for _, a := range after {
			if a == b {
				found = true
				break
			}
		}
		if !found {
			out = append(out, b)
		}
	}
	return out
}
