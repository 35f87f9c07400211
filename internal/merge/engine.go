// Package merge folds per-source device observations into canonical
// devices and assembles topology snapshots. The fold is deterministic:
// identical observation sets produce identical topologies regardless of
// input ordering.
package merge

import (
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"topolens/internal/adapter"
	"topolens/internal/domain"
)

// Engine correlates observations by MAC and resolves conflicts by
// source priority.
type Engine struct {
	priority map[domain.Source]int
	grace    int
	now      func() time.Time
}

// NewEngine creates a merge engine. priority maps each source to its
// field-resolution rank (higher wins); nil uses the default monitor-first
// ordering. graceCycles is how many cycles an unseen device survives
// before being dropped.
func NewEngine(priority map[domain.Source]int, graceCycles int) *Engine {
	if priority == nil {
		priority = domain.DefaultPriority()
	}
	if graceCycles < 0 {
		graceCycles = 0
	}
	return &Engine{
		priority: priority,
		grace:    graceCycles,
		now:      time.Now,
	}
}

// Input is everything one fetch cycle hands to the engine.
type Input struct {
	Scope        string
	Observations []domain.DeviceObservation
	Hints        []adapter.Hint
	Availability map[domain.Source]bool
	// Prior is the previous snapshot for this scope, used to age out
	// transiently missing devices instead of dropping them immediately.
	Prior *domain.Topology
}

// Merge builds a topology snapshot. Malformed observations are dropped
// and counted; they never abort the merge.
func (e *Engine) Merge(in Input) *domain.Topology {
	dropped := 0
	groups := make(map[domain.MAC][]domain.DeviceObservation)
	for _, o := range in.Observations {
		if !o.Valid() {
			dropped++
			log.Printf("merge: dropping malformed observation from %s (mac=%q)", o.Source, o.MAC)
			continue
		}
		groups[o.MAC] = append(groups[o.MAC], o)
	}

	topo := &domain.Topology{
		ID:                  uuid.NewString(),
		Scope:               in.Scope,
		Devices:             make(map[domain.MAC]*domain.CanonicalDevice, len(groups)),
		GeneratedAt:         e.now(),
		SourceAvailability:  copyAvailability(in.Availability),
		DroppedObservations: dropped,
	}

	for mac, group := range groups {
		topo.Devices[mac] = e.fold(mac, group)
	}

	e.carryStale(topo, in.Prior)
	e.buildEdges(topo, in.Hints)

	return topo
}

// fold resolves one MAC group into a canonical device. Each field is
// resolved independently: the highest-priority source providing a value
// wins, falling through to lower-priority sources for fields it lacks.
func (e *Engine) fold(mac domain.MAC, group []domain.DeviceObservation) *domain.CanonicalDevice {
	d := &domain.CanonicalDevice{MAC: mac}

	d.IP = e.resolveString(group, func(o domain.DeviceObservation) string { return o.IP })
	d.Hostname = e.resolveString(group, func(o domain.DeviceObservation) string { return o.Hostname })
	d.SwitchID = e.resolveString(group, func(o domain.DeviceObservation) string { return o.SwitchID })
	d.Port = e.resolveString(group, func(o domain.DeviceObservation) string { return o.Port })
	d.VLAN = e.resolveVLAN(group)

	// Independent corroboration compounds multiplicatively: each distinct
	// source shrinks the remaining doubt by its own hint factor.
	hintBySource := make(map[domain.Source]float64)
	for _, o := range group {
		if o.Confidence > hintBySource[o.Source] {
			hintBySource[o.Source] = o.Confidence
		}
		if o.LastSeen.After(d.LastSeen) {
			d.LastSeen = o.LastSeen
		}
	}
	for src := range hintBySource {
		d.Sources = append(d.Sources, src)
	}
	sort.Slice(d.Sources, func(i, j int) bool { return d.Sources[i] < d.Sources[j] })
	// Multiply in sorted source order: float multiplication is not
	// associative, and the result must not depend on map iteration.
	doubt := 1.0
	for _, src := range d.Sources {
		doubt *= 1 - hintBySource[src]
	}
	d.Confidence = 1 - doubt

	return d
}

// fieldCandidate carries the ordering key for one observation's value.
type fieldCandidate struct {
	value    string
	priority int
	lastSeen time.Time
}

// better ranks candidates: higher priority first, then most recently
// seen, then the lexicographically smaller value. The final value rule
// is an explicit, testable tie-break; it must never be left to map or
// input order.
func (c fieldCandidate) better(o fieldCandidate) bool {
	if c.priority != o.priority {
		return c.priority > o.priority
	}
	if !c.lastSeen.Equal(o.lastSeen) {
		return c.lastSeen.After(o.lastSeen)
	}
	return c.value < o.value
}

func (e *Engine) resolveString(group []domain.DeviceObservation, field func(domain.DeviceObservation) string) string {
	var best *fieldCandidate
	for _, o := range group {
		v := field(o)
		if v == "" {
			continue
		}
		c := fieldCandidate{value: v, priority: e.priority[o.Source], lastSeen: o.LastSeen}
		if best == nil || c.better(*best) {
			best = &c
		}
	}
	if best == nil {
		return ""
	}
	return best.value
}

func (e *Engine) resolveVLAN(group []domain.DeviceObservation) int {
	var best *fieldCandidate
	var bestVLAN int
	for _, o := range group {
		if o.VLAN == 0 {
			continue
		}
		c := fieldCandidate{priority: e.priority[o.Source], lastSeen: o.LastSeen}
		if best == nil || c.better(*best) {
			best = &c
			bestVLAN = o.VLAN
		}
	}
	return bestVLAN
}

// carryStale retains devices from the prior snapshot that no source saw
// this cycle, for up to the grace-cycle budget. This keeps a single
// missed detection from flickering the topology.
func (e *Engine) carryStale(topo *domain.Topology, prior *domain.Topology) {
	if prior == nil {
		return
	}
	for mac, prev := range prior.Devices {
		if _, seen := topo.Devices[mac]; seen {
			continue
		}
		missed := prev.MissedCycles + 1
		if missed > e.grace {
			continue
		}
		cp := *prev
		cp.Stale = true
		cp.MissedCycles = missed
		cp.Sources = append([]domain.Source(nil), prev.Sources...)
		topo.Devices[mac] = &cp
	}
}

// buildEdges derives access edges from switch/port placement and layers
// scraped link and position hints on top as visualization metadata.
func (e *Engine) buildEdges(topo *domain.Topology, hints []adapter.Hint) {
	seen := make(map[domain.Edge]struct{})
	add := func(edge domain.Edge) {
		if edge.A == "" || edge.B == "" || edge.A == edge.B {
			return
		}
		if _, dup := seen[edge]; dup {
			return
		}
		seen[edge] = struct{}{}
		topo.Edges = append(topo.Edges, edge)
	}

	for mac, d := range topo.Devices {
		if d.SwitchID != "" && d.Port != "" {
			add(domain.Edge{A: d.SwitchID, B: string(mac), LinkType: domain.LinkAccess})
		}
	}

	for _, h := range hints {
		if h.DeviceID == "" {
			continue
		}
		if topo.Positions == nil {
			topo.Positions = make(map[string]domain.Position)
		}
		topo.Positions[h.DeviceID] = domain.Position{X: h.X, Y: h.Y}
		if h.LinkPeer != "" {
			add(domain.Edge{A: h.DeviceID, B: h.LinkPeer, LinkType: domain.LinkScraped})
		}
	}

	sort.Slice(topo.Edges, func(i, j int) bool {
		a, b := topo.Edges[i], topo.Edges[j]
		if a.A != b.A {
			return a.A < b.A
		}
		if a.B != b.B {
			return a.B < b.B
		}
		return a.LinkType < b.LinkType
	})
}

func copyAvailability(in map[domain.Source]bool) map[domain.Source]bool {
	out := make(map[domain.Source]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
