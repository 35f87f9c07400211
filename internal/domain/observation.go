package domain

import "time"

// Source identifies a discovery source. The set is closed; adapters for
// new sources get a new constant rather than free-form strings.
type Source string

const (
	// SourceMonitor is the primary vendor's real-time detected-device API.
	SourceMonitor Source = "monitor"
	// SourceSwitchConfig is the primary vendor's managed-switch inventory API.
	SourceSwitchConfig Source = "switch_config"
	// SourceSNMP is the ARP/MAC-table walk fallback over a static inventory.
	SourceSNMP Source = "snmp"
	// SourceSecondaryVendor is the secondary cloud vendor's device API.
	SourceSecondaryVendor Source = "secondary_vendor"
	// SourceScraped is the web-console scraper; position and link hints
	// only, never identity fields.
	SourceScraped Source = "scraped"
)

// Sources lists all known sources in default priority order, highest first.
func Sources() []Source {
	return []Source{SourceMonitor, SourceSwitchConfig, SourceSecondaryVendor, SourceSNMP, SourceScraped}
}

// DefaultPriority returns the default field-resolution priority per
// source (higher wins). Vendor deployments that document a stricter
// ordering override these through configuration.
func DefaultPriority() map[Source]int {
	return map[Source]int{
		SourceMonitor:         50,
		SourceSwitchConfig:    40,
		SourceSecondaryVendor: 30,
		SourceSNMP:            20,
		SourceScraped:         10,
	}
}

// ConfidenceHint returns the default raw confidence contributed by a
// single observation from this source.
func (s Source) ConfidenceHint() float64 {
	switch s {
	case SourceMonitor:
		return 0.9
	case SourceSecondaryVendor:
		return 0.7
	case SourceSwitchConfig:
		return 0.6
	case SourceSNMP:
		return 0.4
	case SourceScraped:
		return 0.2
	default:
		return 0
	}
}

// DeviceObservation is a single device sighting from one source during
// one fetch cycle. Absent fields stay zero-valued; adapters never guess.
type DeviceObservation struct {
	Source    Source    `json:"source"`
	MAC       MAC       `json:"mac"`
	IP        string    `json:"ip,omitempty"`
	Hostname  string    `json:"hostname,omitempty"`
	SwitchID  string    `json:"switch_id,omitempty"`
	Port      string    `json:"port,omitempty"`
	VLAN      int       `json:"vlan,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	// Confidence is the raw per-observation hint in [0,1], normally the
	// source default.
	Confidence float64 `json:"confidence"`
}

// Valid reports whether the observation is well-formed enough to merge.
func (o DeviceObservation) Valid() bool {
	if o.MAC == "" || o.Source == "" {
		return false
	}
	return o.Confidence >= 0 && o.Confidence <= 1
}
