package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"topolens/internal/domain"
)

// SecondaryVendorAdapter queries the secondary cloud-managed-switch
// vendor's API for mixed-infrastructure sites. Same observation schema,
// different wire shape and authentication (API key, no session).
type SecondaryVendorAdapter struct {
	base   string
	client *restClient
	now    func() time.Time
}

// apiKeyDoer satisfies Doer with a plain HTTP client plus the vendor's
// API-key header.
type apiKeyDoer struct {
	client *http.Client
	apiKey string
}

func (d *apiKeyDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	r := req.Clone(ctx)
	r.Header.Set("X-Cisco-Meraki-API-Key", d.apiKey)
	return d.client.Do(r)
}

// NewSecondaryVendorAdapter creates an adapter for the secondary
// vendor's REST API.
func NewSecondaryVendorAdapter(baseURL, apiKey string, timeout time.Duration, opts Options) *SecondaryVendorAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	doer := &apiKeyDoer{client: &http.Client{Timeout: timeout}, apiKey: apiKey}
	return &SecondaryVendorAdapter{
		base:   baseURL,
		client: newRESTClient(doer, opts),
		now:    time.Now,
	}
}

func (a *SecondaryVendorAdapter) Name() string          { return "secondary-vendor" }
func (a *SecondaryVendorAdapter) Source() domain.Source { return domain.SourceSecondaryVendor }

type secondaryDevice struct {
	MAC            string `json:"mac"`
	LanIP          string `json:"lanIp"`
	Name           string `json:"name"`
	SwitchName     string `json:"switchName"`
	SwitchPort     string `json:"switchport"`
	VLAN           int    `json:"vlan"`
	LastReportedAt string `json:"lastReportedAt"`
}

// Fetch lists the site's clients and adapts them to observations.
func (a *SecondaryVendorAdapter) Fetch(ctx context.Context, scope string) ([]domain.DeviceObservation, error) {
	u := fmt.Sprintf("%s/api/v1/networks/%s/clients", a.base, url.PathEscape(scope))

	var devices []secondaryDevice
	if err := a.client.getJSON(ctx, u, &devices); err != nil {
		return nil, fmt.Errorf("secondary-vendor fetch: %w", err)
	}

	now := a.now()
	obs := make([]domain.DeviceObservation, 0, len(devices))
	for _, d := range devices {
		mac, ok := normalizeMAC(domain.SourceSecondaryVendor, d.MAC)
		if !ok {
			continue
		}
		lastSeen := now
		if t, err := time.Parse(time.RFC3339, d.LastReportedAt); err == nil {
			lastSeen = t
		}
		obs = append(obs, domain.DeviceObservation{
			Source:     domain.SourceSecondaryVendor,
			MAC:        mac,
			IP:         d.LanIP,
			Hostname:   d.Name,
			SwitchID:   d.SwitchName,
			Port:       d.SwitchPort,
			VLAN:       d.VLAN,
			LastSeen:   lastSeen,
			Confidence: domain.SourceSecondaryVendor.ConfidenceHint(),
		})
	}
	return obs, nil
}
