// Package service wires the cache, orchestrator, and session manager
// into the surface the HTTP layer consumes.
package service

import (
	"context"

	"topolens/internal/cache"
	"topolens/internal/domain"
	"topolens/internal/metrics"
	"topolens/internal/session"
)

// TopologyService is the caller-facing facade over the correlation
// engine.
type TopologyService struct {
	cache    *cache.Cache
	sessions *session.Manager
	eventBus *EventBus
	metrics  *metrics.Registry
}

// NewTopologyService creates the facade and hooks build notifications
// into the event bus and metrics.
func NewTopologyService(c *cache.Cache, sessions *session.Manager, eventBus *EventBus, m *metrics.Registry) *TopologyService {
	s := &TopologyService{
		cache:    c,
		sessions: sessions,
		eventBus: eventBus,
		metrics:  m,
	}
	c.SetOnBuild(s.onBuild)
	return s
}

// GetTopology returns the topology for a scope, building it on a cache
// miss or forced refresh. A stale snapshot (total source failure with a
// previous build available) is reported through the topology's Stale
// flag, not an error.
func (s *TopologyService) GetTopology(ctx context.Context, scope string, forceRefresh bool) (*domain.Topology, error) {
	topo, err := s.cache.GetOrBuild(ctx, scope, forceRefresh)
	if err != nil {
		return nil, err
	}
	if topo.Stale && s.eventBus != nil {
		s.eventBus.Publish(Event{
			Type:    EventStaleServed,
			Payload: map[string]string{"scope": topo.Scope},
		})
	}
	return topo, nil
}

// SessionHealth reports the control-plane session state.
func (s *TopologyService) SessionHealth() session.Health {
	return s.sessions.Health()
}

// onBuild runs after every successful fresh build.
func (s *TopologyService) onBuild(topo *domain.Topology) {
	degraded := make([]domain.Source, 0)
	for src, up := range topo.SourceAvailability {
		if !up {
			degraded = append(degraded, src)
		}
	}

	if s.metrics != nil {
		s.metrics.TopologyDevices.Set(float64(len(topo.Devices)))
		s.metrics.TopologyEdges.Set(float64(len(topo.Edges)))
		stale := 0
		for _, d := range topo.Devices {
			if d.Stale {
				stale++
			}
		}
		s.metrics.StaleDevices.Set(float64(stale))
		s.metrics.DroppedRecordsTotal.Add(float64(topo.DroppedObservations))
		if len(degraded) == 0 {
			s.metrics.FetchCyclesTotal.WithLabelValues("full").Inc()
		} else {
			s.metrics.FetchCyclesTotal.WithLabelValues("degraded").Inc()
		}
	}

	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(Event{
		Type: EventTopologyRefreshed,
		Payload: map[string]any{
			"scope":   topo.Scope,
			"devices": len(topo.Devices),
			"edges":   len(topo.Edges),
		},
	})
	if len(degraded) > 0 {
		s.eventBus.Publish(Event{
			Type: EventSourcesDegraded,
			Payload: map[string]any{
				"scope":   topo.Scope,
				"sources": degraded,
			},
		})
	}
}
