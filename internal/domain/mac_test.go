package domain

import "testing"

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    MAC
		wantErr bool
	}{
		{name: "canonical", in: "aa:bb:cc:dd:ee:ff", want: "aa:bb:cc:dd:ee:ff"},
		{name: "uppercase colons", in: "AA:BB:CC:DD:EE:FF", want: "aa:bb:cc:dd:ee:ff"},
		{name: "dashes", in: "aa-bb-cc-dd-ee-ff", want: "aa:bb:cc:dd:ee:ff"},
		{name: "bare hex", in: "aabbccddeeff", want: "aa:bb:cc:dd:ee:ff"},
		{name: "cisco dotted", in: "aabb.ccdd.eeff", want: "aa:bb:cc:dd:ee:ff"},
		{name: "dotted short groups", in: "1.2.3", want: "00:01:00:02:00:03"},
		{name: "omitted leading zeros", in: "0:1:2:a:b:c", want: "00:01:02:0a:0b:0c"},
		{name: "mixed case dashes", in: "A-b-C-d-E-f", want: "0a:0b:0c:0d:0e:0f"},
		{name: "surrounding space", in: "  aa:bb:cc:dd:ee:ff\n", want: "aa:bb:cc:dd:ee:ff"},
		{name: "empty", in: "", wantErr: true},
		{name: "five octets", in: "aa:bb:cc:dd:ee", wantErr: true},
		{name: "seven octets", in: "aa:bb:cc:dd:ee:ff:00", wantErr: true},
		{name: "non-hex", in: "aa:bb:cc:dd:ee:fg", wantErr: true},
		{name: "too long bare", in: "aabbccddeeff00", wantErr: true},
		{name: "too short bare", in: "aabbccddee", wantErr: true},
		{name: "dotted two groups", in: "aabb.ccdd", wantErr: true},
		{name: "dotted oversized group", in: "aabbc.cdd.eeff", wantErr: true},
		{name: "octet too wide", in: "aaa:bb:cc:dd:ee:ff", wantErr: true},
		{name: "all zero still valid", in: "00:00:00:00:00:00", want: "00:00:00:00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMAC(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Normalization must be idempotent: canonical output re-normalizes to itself.
func TestNormalizeMAC_Idempotent(t *testing.T) {
	inputs := []string{
		"AA:BB:CC:DD:EE:FF",
		"a-b-c-d-e-f",
		"aabb.ccdd.eeff",
		"001122334455",
		"0:1:2:3:4:5",
	}
	for _, in := range inputs {
		once, err := NormalizeMAC(in)
		if err != nil {
			t.Fatalf("normalize %q: %v", in, err)
		}
		twice, err := NormalizeMAC(string(once))
		if err != nil {
			t.Fatalf("re-normalize %q: %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestMACFromBytes(t *testing.T) {
	mac, err := MACFromBytes([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mac != "00:11:22:33:44:55" {
		t.Errorf("got %q", mac)
	}

	if _, err := MACFromBytes([]byte{0x00, 0x11}); err == nil {
		t.Error("expected error for short byte slice")
	}
}
