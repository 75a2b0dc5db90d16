package catalog

import (
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/fn"
)

// UploadEntryFor builds the upload line for a normalized record.
func UploadEntryFor(r domain.ServiceRecord) UploadEntry {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	var id any
	if r.Slug != "" {
		id = r.Slug
	}
	return UploadEntry{
		ID:   id,
		Text: r.FullText,
		Payload: UploadPayload{
			ServiceCode:  r.Code,
			Title:        r.Title,
			Slug:         r.Slug,
			PriceDisplay: r.PriceDisplay,
			PriceFrom:    r.PriceFrom,
			Tags:         tags,
			SourceDoc:    r.SourceDoc,
		},
	}
}

// UploadEntries builds upload lines for records, preserving order.
func UploadEntries(records []domain.ServiceRecord) []UploadEntry {
	return fn.Map(records, UploadEntryFor)
}

// IndexPayload is the compact metadata written with a record's point. The
// full text is never included.
func IndexPayload(r domain.ServiceRecord) map[string]any {
	return map[string]any{
		"service_code":  r.Code,
		"title":         r.Title,
		"slug":          r.Slug,
		"price_display": r.PriceDisplay,
		"price_from":    priceValue(r.PriceFrom),
	}
}

// priceValue unwraps p so a missing price is a bare nil in payload maps.
func priceValue(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
