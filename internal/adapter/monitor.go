package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"topolens/internal/domain"
)

// MonitorAdapter queries the primary vendor's real-time detected-device
// monitor endpoint. It is the highest-trust source for MAC-to-port
// association.
type MonitorAdapter struct {
	base   string
	client *restClient
	now    func() time.Time
}

// NewMonitorAdapter creates a monitor adapter using the authenticated
// control-plane doer (normally the session manager).
func NewMonitorAdapter(baseURL string, doer Doer, opts Options) *MonitorAdapter {
	return &MonitorAdapter{
		base:   baseURL,
		client: newRESTClient(doer, opts),
		now:    time.Now,
	}
}

func (a *MonitorAdapter) Name() string          { return "monitor" }
func (a *MonitorAdapter) Source() domain.Source { return domain.SourceMonitor }

// monitorDevice is the vendor's detected-device record shape.
type monitorDevice struct {
	MAC      string `json:"mac"`
	IP       string `json:"ipv4_address"`
	Hostname string `json:"hostname"`
	SwitchID string `json:"switch_id"`
	Port     string `json:"port_name"`
	VLAN     int    `json:"vlan_id"`
	// LastSeen is seconds since the device was last detected.
	LastSeen int `json:"last_seen"`
}

type monitorResponse struct {
	Results []monitorDevice `json:"results"`
}

// Fetch returns one observation per detected device.
func (a *MonitorAdapter) Fetch(ctx context.Context, scope string) ([]domain.DeviceObservation, error) {
	u := fmt.Sprintf("%s/api/v2/monitor/switch-controller/detected-device?scope=%s", a.base, url.QueryEscape(scope))

	var resp monitorResponse
	if err := a.client.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("monitor fetch: %w", err)
	}

	now := a.now()
	obs := make([]domain.DeviceObservation, 0, len(resp.Results))
	for _, d := range resp.Results {
		mac, ok := normalizeMAC(domain.SourceMonitor, d.MAC)
		if !ok {
			continue
		}
		obs = append(obs, domain.DeviceObservation{
			Source:     domain.SourceMonitor,
			MAC:        mac,
			IP:         d.IP,
			Hostname:   d.Hostname,
			SwitchID:   d.SwitchID,
			Port:       d.Port,
			VLAN:       d.VLAN,
			LastSeen:   now.Add(-time.Duration(d.LastSeen) * time.Second),
			Confidence: domain.SourceMonitor.ConfidenceHint(),
		})
	}
	return obs, nil
}
