package adapter

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"golang.org/x/time/rate"

	"topolens/internal/domain"
)

const (
	oidIPNetToMediaPhysAddress = ".1.3.6.1.2.1.4.22.1.2"
	oidDot1dTpFdbPort          = ".1.3.6.1.2.1.17.4.3.1.2"
)

// SNMPTarget is one statically configured device to walk.
type SNMPTarget struct {
	// Name identifies the device in observations (used as switch_id).
	Name      string
	Host      string
	Port      uint16
	Community string
}

// SNMPAdapter walks ARP and bridge forwarding tables on a static device
// inventory. It is the last-resort source when the vendor APIs are
// unreachable, so its observations carry the lowest identity confidence.
type SNMPAdapter struct {
	targets []SNMPTarget
	timeout time.Duration
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSNMPAdapter creates an SNMP adapter over the given inventory.
func NewSNMPAdapter(targets []SNMPTarget, timeout time.Duration, opts Options) *SNMPAdapter {
	opts.applyDefaults()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SNMPAdapter{
		targets: targets,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(opts.RateLimit), 1),
		now:     time.Now,
	}
}

func (a *SNMPAdapter) Name() string          { return "snmp" }
func (a *SNMPAdapter) Source() domain.Source { return domain.SourceSNMP }

// Fetch walks every configured target. Individual target failures are
// logged and skipped; the adapter fails only when no target answered.
func (a *SNMPAdapter) Fetch(ctx context.Context, scope string) ([]domain.DeviceObservation, error) {
	if len(a.targets) == 0 {
		return nil, fmt.Errorf("snmp: no targets configured")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var obs []domain.DeviceObservation
	answered := 0
	var lastErr error
	for _, t := range a.targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		walked, err := a.walkTarget(ctx, t)
		if err != nil {
			log.Printf("snmp: target %s (%s) failed: %v", t.Name, t.Host, err)
			lastErr = err
			continue
		}
		answered++
		obs = append(obs, walked...)
	}

	if answered == 0 {
		return nil, fmt.Errorf("snmp: all %d targets failed: %w", len(a.targets), lastErr)
	}
	return obs, nil
}

func (a *SNMPAdapter) walkTarget(ctx context.Context, t SNMPTarget) ([]domain.DeviceObservation, error) {
	port := t.Port
	if port == 0 {
		port = 161
	}
	client := &gosnmp.GoSNMP{
		Target:    t.Host,
		Port:      port,
		Community: t.Community,
		Version:   gosnmp.Version2c,
		Timeout:   a.timeout,
		Retries:   1,
		Context:   ctx,
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer client.Conn.Close()

	now := a.now()

	// ARP table: index is ifIndex.a.b.c.d, value the MAC bytes.
	byMAC := make(map[domain.MAC]*domain.DeviceObservation)
	err := client.BulkWalk(oidIPNetToMediaPhysAddress, func(pdu gosnmp.SnmpPDU) error {
		raw, ok := pdu.Value.([]byte)
		if !ok {
			return nil
		}
		mac, err := domain.MACFromBytes(raw)
		if err != nil {
			log.Printf("snmp: dropping ARP entry on %s with bad MAC bytes: %v", t.Name, err)
			return nil
		}
		o := &domain.DeviceObservation{
			Source:     domain.SourceSNMP,
			MAC:        mac,
			IP:         arpIndexIP(pdu.Name),
			SwitchID:   t.Name,
			LastSeen:   now,
			Confidence: domain.SourceSNMP.ConfidenceHint(),
		}
		byMAC[mac] = o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk arp: %w", err)
	}

	// Bridge FDB: index encodes the MAC in decimal octets, value the
	// bridge port number. Best-effort port attribution on top of ARP.
	_ = client.BulkWalk(oidDot1dTpFdbPort, func(pdu gosnmp.SnmpPDU) error {
		mac, ok := fdbIndexMAC(pdu.Name)
		if !ok {
			return nil
		}
		var portNum int
		switch v := pdu.Value.(type) {
		case int:
			portNum = v
		case uint:
			portNum = int(v)
		default:
			return nil
		}
		if o, seen := byMAC[mac]; seen {
			o.Port = fmt.Sprintf("port%d", portNum)
		} else {
			byMAC[mac] = &domain.DeviceObservation{
				Source:     domain.SourceSNMP,
				MAC:        mac,
				SwitchID:   t.Name,
				Port:       fmt.Sprintf("port%d", portNum),
				LastSeen:   now,
				Confidence: domain.SourceSNMP.ConfidenceHint(),
			}
		}
		return nil
	})

	obs := make([]domain.DeviceObservation, 0, len(byMAC))
	for _, o := range byMAC {
		obs = append(obs, *o)
	}
	return obs, nil
}

// arpIndexIP extracts the IP from an ipNetToMediaPhysAddress index
// (ifIndex.a.b.c.d).
func arpIndexIP(oid string) string {
	suffix := strings.TrimPrefix(oid, oidIPNetToMediaPhysAddress+".")
	parts := strings.Split(suffix, ".")
	if len(parts) != 5 {
		return ""
	}
	return strings.Join(parts[1:], ".")
}

// fdbIndexMAC decodes a dot1dTpFdbPort index (six decimal octets) into
// a normalized MAC.
func fdbIndexMAC(oid string) (domain.MAC, bool) {
	suffix := strings.TrimPrefix(oid, oidDot1dTpFdbPort+".")
	parts := strings.Split(suffix, ".")
	if len(parts) != 6 {
		return "", false
	}
	b := make([]byte, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		b[i] = byte(n)
	}
	mac, err := domain.MACFromBytes(b)
	if err != nil {
		return "", false
	}
	return mac, true
}
