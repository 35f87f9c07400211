package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"topolens/internal/domain"
)

// SwitchConfigAdapter queries the primary vendor's managed-switch
// configuration API. It is authoritative for switch identity and port
// existence, but a MAC-table entry there does not prove the device is
// live right now, so its confidence hint sits below the monitor's.
type SwitchConfigAdapter struct {
	base   string
	client *restClient
	now    func() time.Time
}

// NewSwitchConfigAdapter creates a switch-config adapter over the
// authenticated control-plane doer.
func NewSwitchConfigAdapter(baseURL string, doer Doer, opts Options) *SwitchConfigAdapter {
	return &SwitchConfigAdapter{
		base:   baseURL,
		client: newRESTClient(doer, opts),
		now:    time.Now,
	}
}

func (a *SwitchConfigAdapter) Name() string          { return "switch-config" }
func (a *SwitchConfigAdapter) Source() domain.Source { return domain.SourceSwitchConfig }

type switchMACEntry struct {
	MAC       string `json:"mac"`
	Interface string `json:"interface"`
	VLAN      int    `json:"vlan"`
}

type managedSwitch struct {
	SwitchID string           `json:"switch_id"`
	Name     string           `json:"name"`
	MACTable []switchMACEntry `json:"mac_table"`
}

type switchConfigResponse struct {
	Results []managedSwitch `json:"results"`
}

// Fetch returns one observation per learned MAC-table entry across all
// managed switches in scope.
func (a *SwitchConfigAdapter) Fetch(ctx context.Context, scope string) ([]domain.DeviceObservation, error) {
	u := fmt.Sprintf("%s/api/v2/cmdb/switch-controller/managed-switch?scope=%s", a.base, url.QueryEscape(scope))

	var resp switchConfigResponse
	if err := a.client.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("switch-config fetch: %w", err)
	}

	now := a.now()
	var obs []domain.DeviceObservation
	for _, sw := range resp.Results {
		for _, entry := range sw.MACTable {
			mac, ok := normalizeMAC(domain.SourceSwitchConfig, entry.MAC)
			if !ok {
				continue
			}
			obs = append(obs, domain.DeviceObservation{
				Source:     domain.SourceSwitchConfig,
				MAC:        mac,
				SwitchID:   sw.SwitchID,
				Port:       entry.Interface,
				VLAN:       entry.VLAN,
				LastSeen:   now,
				Confidence: domain.SourceSwitchConfig.ConfidenceHint(),
			})
		}
	}
	return obs, nil
}
