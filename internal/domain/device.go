package domain

import "time"

// CanonicalDevice is the merged view of one physical device, folded from
// every observation sharing its MAC in a fetch cycle.
//
// Field values are resolved by source priority, never insertion order.
// Confidence is monotonically non-decreasing in the number of
// contributing sources.
type CanonicalDevice struct {
	MAC      MAC    `json:"mac"`
	IP       string `json:"ip,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	SwitchID string `json:"switch_id,omitempty"`
	Port     string `json:"port,omitempty"`
	VLAN     int    `json:"vlan,omitempty"`

	// Confidence combines independent sources multiplicatively:
	// 1 - product(1 - hint) over distinct contributing sources.
	Confidence float64 `json:"confidence"`

	// Sources lists distinct contributing sources, sorted for stable output.
	Sources  []Source  `json:"contributing_sources"`
	LastSeen time.Time `json:"last_seen"`

	// Stale marks a device carried over from the prior topology after a
	// cycle in which no source reported it. MissedCycles counts how many
	// consecutive cycles it has been unseen.
	Stale        bool `json:"stale,omitempty"`
	MissedCycles int  `json:"missed_cycles,omitempty"`
}

// HasSource reports whether src contributed to this device.
func (d *CanonicalDevice) HasSource(src Source) bool {
	for _, s := range d.Sources {
		if s == src {
			return true
		}
	}
	return false
}
