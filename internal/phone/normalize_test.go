// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package phone

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		region string
		want   string
		wantOK bool
	}{
		{"US national with punctuation", "(555) 123-4567", "US", "+15551234567", true},
		{"US national digits", "5551234567", "US", "+15551234567", true},
		{"international form ignores region", "+1 555 123 4567", "GB", "+15551234567", true},
		{"already normalized", "+15551234567", "US", "+15551234567", true},
		{"UK national", "020 7946 0958", "GB", "+442079460958", true},
		{"lowercase region", "5551234567", "us", "+15551234567", true},
		{"surrounding whitespace", "  +442079460958 ", "US", "+442079460958", true},
		{"empty", "", "US", "", false},
		{"whitespace only", "   ", "US", "", false},
		{"letters only", "not a number", "US", "", false},
		{"national form with unknown region", "5551234567", "ZZ", "", false},
		{"national form with empty region", "5551234567", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Normalize(tt.raw, tt.region)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Normalize(%q, %q) = (%q, %v), want (%q, %v)", tt.raw, tt.region, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"+15551234567", "+44 20 7946 0958", "+33 1 23 45 67 89", "+61 2 9876 5432", "+81 3-1234-5678"}
	for _, in := range inputs {
		once, ok := Normalize(in, "US")
		if !ok {
			t.Fatalf("Normalize(%q) failed", in)
		}
		twice, ok := Normalize(once, "US")
		if !ok || twice != once {
			t.Errorf("Normalize(Normalize(%q)) = %q, want %q", in, twice, once)
		}
	}
}

func TestNormalizer(t *testing.T) {
	t.Parallel()

	n := NewNormalizer("us")
	if n.Region() != "US" {
		t.Errorf("Region() = %q, want US", n.Region())
	}
	got, ok := n.Normalize("555-123-4567")
	if !ok || got != "+15551234567" {
		t.Errorf("Normalize() = (%q, %v), want +15551234567", got, ok)
	}
}
