package main

import (
	"testing"
)

func TestFormatHashRate(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected string
	}{
		{"zero", 0, "0 H/s"},
		{"hashes", 512, "512 H/s"},
		{"kilohashes", 1500, "1.50 KH/s"},
		{"megahashes", 2_500_000, "2.50 MH/s"},
		{"gigahashes", 3_000_000_000, "3.00 GH/s"},
		{"boundary kilo", 1000, "1.00 KH/s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatHashRate(tt.rate); got != tt.expected {
				t.Errorf("formatHashRate(%v) = %q, want %q", tt.rate, got, tt.expected)
			}
		})
	}
}

func TestGeneratePrefix(t *testing.T) {
	for i := 0; i < 100; i++ {
		prefix := generatePrefix()
		if len(prefix) != 2 {
			t.Fatalf("generatePrefix() = %q, want 2 chars", prefix)
		}
		for _, c := range prefix {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
				t.Fatalf("generatePrefix() = %q, contains non-hex digit", prefix)
			}
		}
	}
}

func TestMultiFlag(t *testing.T) {
	var m multiFlag

	if err := m.Set("PCIE:01:00.0"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := m.Set("PCIE:02:00.0"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	if len(m) != 2 || m[0] != "PCIE:01:00.0" || m[1] != "PCIE:02:00.0" {
		t.Errorf("multiFlag = %v", m)
	}
}

func TestIntListFlag(t *testing.T) {
	var m intListFlag

	if err := m.Set("0"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := m.Set("3"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := m.Set("nope"); err == nil {
		t.Error("Expected error for non-integer value")
	}

	if len(m) != 2 || m[0] != 0 || m[1] != 3 {
		t.Errorf("intListFlag = %v", m)
	}
}

func TestCountFlag(t *testing.T) {
	var c countFlag

	if !c.IsBoolFlag() {
		t.Error("countFlag must behave as a boolean flag")
	}

	for i := 0; i < 3; i++ {
		if err := c.Set("true"); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}

	if int(c) != 3 {
		t.Errorf("countFlag = %d, want 3", c)
	}
}
