// Package domain holds the catalog's record types and its error taxonomy.
package domain

// ServiceRecord is one extracted service description.
//
// PriceDisplay is never empty once a record has been normalized, and
// PriceFrom is nil exactly when PriceDisplay carries the unconfirmed sentinel.
type ServiceRecord struct {
	Code             string         `json:"service_code"`
	Title            string         `json:"title"`
	Slug             string         `json:"slug"`
	ShortTagline     string         `json:"short_tagline"`
	PriceDisplay     string         `json:"price_display"`
	PriceFrom        *int64         `json:"price_from"`
	Currency         string         `json:"currency"`
	Packages         map[string]any `json:"packages"`
	DurationEstimate any            `json:"duration_estimate"`
	Includes         []string       `json:"includes"`
	Excludes         []string       `json:"excludes"`
	Requirements     []string       `json:"requirements"`
	CTA              string         `json:"cta"`
	RedFlags         []string       `json:"red_flags"`
	Tags             []string       `json:"tags"`
	SourceDoc        string         `json:"source_doc"`
	FullText         string         `json:"full_text"`
}

// Price returns the normalized lower-bound price and whether one is known.
func (r ServiceRecord) Price() (int64, bool) {
	if r.PriceFrom == nil {
		return 0, false
	}
	return *r.PriceFrom, true
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
