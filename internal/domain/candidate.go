package domain

import "time"

// Candidate is a freshly launched token recovered from a create transaction.
// Created once per unique detection signature and never mutated afterwards.
type Candidate struct {
	Mint            string         `json:"mint"`
	Creator         string         `json:"creator"`
	BondingCurve    string         `json:"bonding_curve"`
	AssociatedCurve string         `json:"associated_curve"` // curve-owned token account
	Signature       string         `json:"signature"`        // detection transaction
	Slot            int64          `json:"slot"`
	DetectedAt      time.Time      `json:"detected_at"`
	Metadata        *TokenMetadata `json:"metadata,omitempty"` // nil when unresolved
}

// Symbol returns the metadata symbol or an empty string.
func (c *Candidate) Symbol() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata.Symbol
}

// Name returns the metadata name or an empty string.
func (c *Candidate) Name() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata.Name
}
