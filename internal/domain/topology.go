package domain

import "time"

// LinkType classifies a topology edge.
type LinkType string

const (
	// LinkAccess connects a device to the switch port it was seen on.
	LinkAccess LinkType = "access"
	// LinkScraped is a link hint recovered from the vendor web console.
	// Visualization metadata only; never used for identity merge.
	LinkScraped LinkType = "scraped"
)

// Edge is a connection between two topology nodes. A is the switch (or
// hint source) end, B the device end.
type Edge struct {
	A        string   `json:"a"`
	B        string   `json:"b"`
	LinkType LinkType `json:"link_type"`
}

// Position is a 2D layout hint for a device, recovered by the scraper.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Topology is one correlation snapshot: every canonical device known for
// a scope, the edges between them, and the availability of each source
// during the cycle that produced it.
//
// A Topology is built once per fetch cycle and replaced wholesale on the
// next successful refresh. Consumers must treat it as read-only.
type Topology struct {
	ID          string                   `json:"id"`
	Scope       string                   `json:"scope"`
	Devices     map[MAC]*CanonicalDevice `json:"devices"`
	Edges       []Edge                   `json:"edges"`
	Positions   map[string]Position      `json:"positions,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`

	// SourceAvailability records which sources answered during the cycle,
	// so consumers can render degraded-mode indicators.
	SourceAvailability map[Source]bool `json:"source_availability"`

	// Stale marks a snapshot served from cache because no source could be
	// reached for a fresh build.
	Stale bool `json:"stale,omitempty"`

	// DroppedObservations counts malformed records discarded during the
	// cycle (bad MACs, out-of-range hints).
	DroppedObservations int `json:"dropped_observations,omitempty"`
}

// AsStale returns a copy of t flagged stale with every source marked
// unavailable. The receiver is not modified; cached snapshots are
// immutable.
func (t *Topology) AsStale() *Topology {
	cp := *t
	cp.Stale = true
	cp.SourceAvailability = make(map[Source]bool, len(Sources()))
	for _, s := range Sources() {
		cp.SourceAvailability[s] = false
	}
	return &cp
}
