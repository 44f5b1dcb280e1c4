// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package phone canonicalizes phone numbers to E.164 so that numbers typed in
// different national formats compare equal.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalize returns raw in E.164 form, interpreting national-format input in
// region (ISO 3166-1 alpha-2, e.g. "US"). Numbers already written with a
// leading "+" normalize the same for every region.
//
// The second result is false when raw is empty or cannot be parsed. A number
// that parses but is not assigned in its region is still returned.
func Normalize(raw, region string) (normalized string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			normalized, ok = "", false
		}
	}()

	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", false
	}
	if num.GetCountryCode() == 0 || num.GetNationalNumber() == 0 {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// Normalizer binds a default region.
type Normalizer struct {
	region string
}

// NewNormalizer returns a Normalizer for region.
func NewNormalizer(region string) *Normalizer {
	return &Normalizer{region: strings.ToUpper(region)}
}

// Normalize is Normalize(raw, n.Region()).
func (n *Normalizer) Normalize(raw string) (string, bool) {
	return Normalize(raw, n.region)
}

// Region returns the default region.
func (n *Normalizer) Region() string {
	return n.region
}
