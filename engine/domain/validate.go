package domain

import (
	"strconv"
	"strings"
)

// PriceUnconfirmed is the display text used when no price could be read.
const PriceUnconfirmed = "Цена: ОТ уточнить"

// FormatPrice renders a lower-bound price for display.
func FormatPrice(v int64) string {
	return "Цена: ОТ " + strconv.FormatInt(v, 10) + " ₽"
}

// ValidateRecord checks the invariants a normalized record must hold before
// it is sent to the index.
func ValidateRecord(r ServiceRecord) error {
	if strings.TrimSpace(r.Slug) == "" && strings.TrimSpace(r.Title) == "" {
		return NewValidationError("slug", r.Slug, ErrEmptySlug)
	}
	if r.PriceDisplay == "" {
		return NewValidationError("price_display", r.PriceDisplay, ErrEmptyPriceDisplay)
	}
	if r.PriceFrom == nil {
		if r.PriceDisplay != PriceUnconfirmed {
			return NewValidationError("price_display", r.PriceDisplay, ErrPriceMismatch)
		}
	} else if r.PriceDisplay != FormatPrice(*r.PriceFrom) {
		return NewValidationError("price_display", r.PriceDisplay, ErrPriceMismatch)
	}
	return nil
}

// ValidateVector checks that v is non-empty and, when want > 0, has want
// dimensions.
func ValidateVector(v []float32, want int) error {
	if len(v) == 0 {
		return NewValidationError("vector", "", ErrEmptyVector)
	}
	if want > 0 && len(v) != want {
		return NewValidationError("vector", strconv.Itoa(len(v)), ErrDimensionMismatch)
	}
	return nil
}
