package domain

import (
	"fmt"
	"strings"
)

// MAC is a normalized hardware address: six lowercase hex octets joined
// by colons ("aa:bb:cc:dd:ee:ff"). It is the correlation key for merging
// observations from different sources.
type MAC string

// NormalizeMAC parses a raw MAC string into canonical form.
//
// Accepted inputs: colon, dash, or dot separated groups, or 12 bare hex
// digits, in any case. Colon/dash forms may omit leading zeros per octet
// ("0:1:2:a:b:c"). Dotted form is the 3-group style ("aabb.ccdd.eeff"),
// where each group may also omit leading zeros.
//
// Anything that does not resolve to exactly 6 valid hex octets is an
// error; callers drop the observation rather than defaulting the key.
func NormalizeMAC(raw string) (MAC, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("empty MAC")
	}

	var groups []string
	switch {
	case strings.ContainsAny(s, ":-"):
		groups = strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
		if len(groups) != 6 {
			return "", fmt.Errorf("invalid MAC %q: expected 6 octets, got %d", raw, len(groups))
		}
	case strings.Contains(s, "."):
		parts := strings.Split(s, ".")
		if len(parts) != 3 {
			return "", fmt.Errorf("invalid MAC %q: dotted form needs 3 groups", raw)
		}
		for _, p := range parts {
			if p == "" || len(p) > 4 || !isHex(p) {
				return "", fmt.Errorf("invalid MAC %q: bad group %q", raw, p)
			}
			p = strings.Repeat("0", 4-len(p)) + p
			groups = append(groups, p[:2], p[2:])
		}
	default:
		if len(s) != 12 || !isHex(s) {
			return "", fmt.Errorf("invalid MAC %q: expected 12 hex digits", raw)
		}
		for i := 0; i < 12; i += 2 {
			groups = append(groups, s[i:i+2])
		}
	}

	octets := make([]string, 6)
	for i, g := range groups {
		if g == "" || len(g) > 2 || !isHex(g) {
			return "", fmt.Errorf("invalid MAC %q: bad octet %q", raw, g)
		}
		if len(g) == 1 {
			g = "0" + g
		}
		octets[i] = g
	}

	return MAC(strings.Join(octets, ":")), nil
}

// MACFromBytes formats a 6-byte hardware address (e.g. from an SNMP
// OctetString) as a normalized MAC.
func MACFromBytes(b []byte) (MAC, error) {
	if len(b) != 6 {
		return "", fmt.Errorf("invalid MAC bytes: expected 6, got %d", len(b))
	}
	return MAC(fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5])), nil
}

func (m MAC) String() string { return string(m) }

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
