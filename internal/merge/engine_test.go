package merge

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"topolens/internal/adapter"
	"topolens/internal/domain"
)

func obs(src domain.Source, mac domain.MAC, mut func(*domain.DeviceObservation)) domain.DeviceObservation {
	o := domain.DeviceObservation{
		Source:     src,
		MAC:        mac,
		LastSeen:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Confidence: src.ConfidenceHint(),
	}
	if mut != nil {
		mut(&o)
	}
	return o
}

func allAvailable() map[domain.Source]bool {
	m := make(map[domain.Source]bool)
	for _, s := range domain.Sources() {
		m[s] = true
	}
	return m
}

func TestMerge_SingleSourceKeepsOwnConfidence(t *testing.T) {
	e := NewEngine(nil, 1)
	topo := e.Merge(Input{
		Scope:        "site1",
		Observations: []domain.DeviceObservation{obs(domain.SourceMonitor, "00:11:22:33:44:55", nil)},
		Availability: allAvailable(),
	})

	d := topo.Devices["00:11:22:33:44:55"]
	if d == nil {
		t.Fatal("device missing")
	}
	if math.Abs(d.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want 0.9", d.Confidence)
	}
}

func TestMerge_TwoSourcesCorroborate(t *testing.T) {
	e := NewEngine(nil, 1)
	topo := e.Merge(Input{
		Scope: "site1",
		Observations: []domain.DeviceObservation{
			obs(domain.SourceMonitor, "00:11:22:33:44:55", func(o *domain.DeviceObservation) { o.Port = "port1" }),
			obs(domain.SourceSwitchConfig, "00:11:22:33:44:55", func(o *domain.DeviceObservation) {
				o.SwitchID = "SW1"
				o.Port = "port1"
			}),
		},
		Availability: allAvailable(),
	})

	if len(topo.Devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(topo.Devices))
	}
	d := topo.Devices["00:11:22:33:44:55"]
	// 1 - (1-0.9)(1-0.6) = 0.96
	if math.Abs(d.Confidence-0.96) > 1e-9 {
		t.Errorf("confidence = %v, want 0.96", d.Confidence)
	}
	if d.SwitchID != "SW1" || d.Port != "port1" {
		t.Errorf("switch/port = %q/%q", d.SwitchID, d.Port)
	}
	if len(d.Sources) != 2 {
		t.Errorf("sources = %v", d.Sources)
	}
}

// A high-priority source that lacks a field must fall through to the
// next source providing it; priority is per-field, not per-record.
func TestMerge_PerFieldFallthrough(t *testing.T) {
	e := NewEngine(nil, 1)
	topo := e.Merge(Input{
		Scope: "site1",
		Observations: []domain.DeviceObservation{
			obs(domain.SourceSNMP, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) { o.Hostname = "A" }),
			obs(domain.SourceMonitor, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) { o.Port = "port3" }),
		},
		Availability: allAvailable(),
	})

	d := topo.Devices["aa:bb:cc:dd:ee:ff"]
	if d.Hostname != "A" {
		t.Errorf("hostname = %q, want A (fallthrough to SNMP)", d.Hostname)
	}
	if d.Port != "port3" {
		t.Errorf("port = %q, want port3 (from monitor)", d.Port)
	}
}

func TestMerge_PriorityBeatsRecency(t *testing.T) {
	e := NewEngine(nil, 1)
	topo := e.Merge(Input{
		Scope: "site1",
		Observations: []domain.DeviceObservation{
			obs(domain.SourceMonitor, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) {
				o.IP = "10.0.0.1"
			}),
			obs(domain.SourceSNMP, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) {
				o.IP = "10.0.0.2"
				o.LastSeen = o.LastSeen.Add(time.Hour)
			}),
		},
		Availability: allAvailable(),
	})

	if got := topo.Devices["aa:bb:cc:dd:ee:ff"].IP; got != "10.0.0.1" {
		t.Errorf("ip = %q, want monitor's 10.0.0.1 despite older timestamp", got)
	}
}

func TestMerge_EqualPriorityTieBreaks(t *testing.T) {
	e := NewEngine(nil, 1)

	t.Run("newer last_seen wins", func(t *testing.T) {
		topo := e.Merge(Input{
			Scope: "site1",
			Observations: []domain.DeviceObservation{
				obs(domain.SourceSNMP, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) { o.Hostname = "old" }),
				obs(domain.SourceSNMP, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) {
					o.Hostname = "new"
					o.LastSeen = o.LastSeen.Add(time.Minute)
				}),
			},
			Availability: allAvailable(),
		})
		if got := topo.Devices["aa:bb:cc:dd:ee:ff"].Hostname; got != "new" {
			t.Errorf("hostname = %q, want new", got)
		}
	})

	t.Run("equal timestamps prefer lexicographically smaller", func(t *testing.T) {
		topo := e.Merge(Input{
			Scope: "site1",
			Observations: []domain.DeviceObservation{
				obs(domain.SourceSNMP, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) { o.Hostname = "beta" }),
				obs(domain.SourceSNMP, "aa:bb:cc:dd:ee:ff", func(o *domain.DeviceObservation) { o.Hostname = "alpha" }),
			},
			Availability: allAvailable(),
		})
		if got := topo.Devices["aa:bb:cc:dd:ee:ff"].Hostname; got != "alpha" {
			t.Errorf("hostname = %q, want alpha", got)
		}
	})
}

// Merging any permutation of the same observations must yield identical
// devices, confidences, and edges.
func TestMerge_DeterministicUnderPermutation(t *testing.T) {
	base := []domain.DeviceObservation{
		obs(domain.SourceMonitor, "00:11:22:33:44:55", func(o *domain.DeviceObservation) { o.Port = "port1" }),
		obs(domain.SourceSwitchConfig, "00:11:22:33:44:55", func(o *domain.DeviceObservation) {
			o.SwitchID = "SW1"
			o.Port = "port1"
		}),
		obs(domain.SourceSNMP, "00:11:22:33:44:55", func(o *domain.DeviceObservation) { o.Hostname = "h1" }),
		obs(domain.SourceSecondaryVendor, "66:77:88:99:aa:bb", func(o *domain.DeviceObservation) {
			o.SwitchID = "MS-1"
			o.Port = "3"
			o.Hostname = "nas"
		}),
		obs(domain.SourceSNMP, "66:77:88:99:aa:bb", func(o *domain.DeviceObservation) { o.IP = "10.0.0.9" }),
	}

	e := NewEngine(nil, 1)
	ref := e.Merge(Input{Scope: "s", Observations: base, Availability: allAvailable()})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.DeviceObservation(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := e.Merge(Input{Scope: "s", Observations: shuffled, Availability: allAvailable()})

		for mac, want := range ref.Devices {
			d := got.Devices[mac]
			if d == nil {
				t.Fatalf("permutation %d: device %s missing", i, mac)
			}
			if d.IP != want.IP || d.Hostname != want.Hostname || d.SwitchID != want.SwitchID ||
				d.Port != want.Port || d.VLAN != want.VLAN || d.Confidence != want.Confidence {
				t.Fatalf("permutation %d: device %s differs: %+v vs %+v", i, mac, d, want)
			}
			if !reflect.DeepEqual(d.Sources, want.Sources) {
				t.Fatalf("permutation %d: sources differ: %v vs %v", i, d.Sources, want.Sources)
			}
		}
		if !reflect.DeepEqual(got.Edges, ref.Edges) {
			t.Fatalf("permutation %d: edges differ: %v vs %v", i, got.Edges, ref.Edges)
		}
	}
}

func TestMerge_MalformedObservationsDroppedNotFatal(t *testing.T) {
	e := NewEngine(nil, 1)
	topo := e.Merge(Input{
		Scope: "site1",
		Observations: []domain.DeviceObservation{
			{Source: domain.SourceMonitor, Confidence: 0.9}, // no MAC
			{Source: domain.SourceSNMP, MAC: "aa:bb:cc:dd:ee:ff", Confidence: 1.5}, // bad hint
			obs(domain.SourceMonitor, "00:11:22:33:44:55", nil),
		},
		Availability: allAvailable(),
	})

	if len(topo.Devices) != 1 {
		t.Errorf("got %d devices, want 1", len(topo.Devices))
	}
	if topo.DroppedObservations != 2 {
		t.Errorf("dropped = %d, want 2", topo.DroppedObservations)
	}
}

func TestMerge_StaleCarryAndDrop(t *testing.T) {
	e := NewEngine(nil, 1)

	cycle1 := e.Merge(Input{
		Scope:        "site1",
		Observations: []domain.DeviceObservation{obs(domain.SourceMonitor, "00:11:22:33:44:55", nil)},
		Availability: allAvailable(),
	})

	// Device vanishes: retained once, marked stale.
	cycle2 := e.Merge(Input{Scope: "site1", Availability: allAvailable(), Prior: cycle1})
	d := cycle2.Devices["00:11:22:33:44:55"]
	if d == nil {
		t.Fatal("device should survive one missed cycle")
	}
	if !d.Stale || d.MissedCycles != 1 {
		t.Errorf("stale/missed = %v/%d, want true/1", d.Stale, d.MissedCycles)
	}

	// Still missing: grace exhausted, dropped.
	cycle3 := e.Merge(Input{Scope: "site1", Availability: allAvailable(), Prior: cycle2})
	if _, ok := cycle3.Devices["00:11:22:33:44:55"]; ok {
		t.Error("device should be dropped after grace cycles")
	}

	// Reappearing clears staleness.
	cycle2b := e.Merge(Input{
		Scope:        "site1",
		Observations: []domain.DeviceObservation{obs(domain.SourceMonitor, "00:11:22:33:44:55", nil)},
		Availability: allAvailable(),
		Prior:        cycle2,
	})
	if d := cycle2b.Devices["00:11:22:33:44:55"]; d.Stale || d.MissedCycles != 0 {
		t.Errorf("reappeared device still stale: %+v", d)
	}
}

func TestMerge_EdgesFromPlacementAndHints(t *testing.T) {
	e := NewEngine(nil, 1)
	topo := e.Merge(Input{
		Scope: "site1",
		Observations: []domain.DeviceObservation{
			obs(domain.SourceMonitor, "00:11:22:33:44:55", func(o *domain.DeviceObservation) {
				o.SwitchID = "SW1"
				o.Port = "port1"
			}),
			obs(domain.SourceMonitor, "66:77:88:99:aa:bb", nil), // no placement, no edge
		},
		Hints: []adapter.Hint{
			{DeviceID: "SW1", X: 100, Y: 50, LinkPeer: "SW2"},
		},
		Availability: allAvailable(),
	})

	want := []domain.Edge{
		{A: "SW1", B: "00:11:22:33:44:55", LinkType: domain.LinkAccess},
		{A: "SW1", B: "SW2", LinkType: domain.LinkScraped},
	}
	if !reflect.DeepEqual(topo.Edges, want) {
		t.Errorf("edges = %v, want %v", topo.Edges, want)
	}
	if p, ok := topo.Positions["SW1"]; !ok || p.X != 100 || p.Y != 50 {
		t.Errorf("positions = %v", topo.Positions)
	}
}

// End-to-end scenario from the acceptance checklist.
func TestMerge_EndToEndTwoObservationScenario(t *testing.T) {
	e := NewEngine(nil, 1)
	topo := e.Merge(Input{
		Scope: "site1",
		Observations: []domain.DeviceObservation{
			obs(domain.SourceMonitor, "00:11:22:33:44:55", func(o *domain.DeviceObservation) { o.Port = "port1" }),
			obs(domain.SourceSwitchConfig, "00:11:22:33:44:55", func(o *domain.DeviceObservation) {
				o.SwitchID = "SW1"
				o.Port = "port1"
			}),
		},
		Availability: allAvailable(),
	})

	if len(topo.Devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(topo.Devices))
	}
	d := topo.Devices["00:11:22:33:44:55"]
	if d.SwitchID != "SW1" || d.Port != "port1" {
		t.Errorf("switch/port = %q/%q", d.SwitchID, d.Port)
	}
	if math.Abs(d.Confidence-0.96) > 1e-9 {
		t.Errorf("confidence = %v, want 0.96", d.Confidence)
	}
}
