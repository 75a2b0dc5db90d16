// Package catalog turns source documents into service records and writes the
// record and upload artifacts the ingestors consume.
package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/fn"
)

// hspace is the set of characters allowed between digit groups: plain and
// tab spaces plus the no-break and thin spaces used as thousand separators.
// Newlines are excluded so a match never spans lines.
const hspace = ` \t\x{00A0}\x{202F}\x{2009}`

const dashes = `\-\x{2013}\x{2014}`

var (
	// "5 000 ₽", "5 000–7 000 ₽"
	priceCurrency = regexp.MustCompile(`(\d[\d` + hspace + dashes + `]*)[` + hspace + `]*₽`)
	// "от 5 000"
	priceFrom = regexp.MustCompile(`(?i)от[` + hspace + `]*(\d[\d` + hspace + dashes + `]*)`)

	numeralCleaner = strings.NewReplacer(
		" ", "", "\t", "", "\u00a0", "", "\u202f", "", "\u2009", "",
		"\u2013", "-", "\u2014", "-",
	)
)

// ParsePrice reads the first lower-bound price from s. A range yields its
// first number. When nothing usable is found it returns
// domain.ErrExtractionAmbiguous.
func ParsePrice(s string) (int64, error) {
	for _, re := range []*regexp.Regexp{priceCurrency, priceFrom} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		v, err := leadingNumber(m[1])
		if err != nil {
			return 0, err
		}
		return v, nil
	}
	return 0, domain.ErrExtractionAmbiguous
}

// leadingNumber strips separators from a matched numeral run and parses the
// part before the first dash.
func leadingNumber(run string) (int64, error) {
	cleaned := numeralCleaner.Replace(run)
	first, _, _ := strings.Cut(cleaned, "-")
	v, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrExtractionAmbiguous, run)
	}
	return v, nil
}

// Normalize returns r with PriceFrom and PriceDisplay derived together. The
// explicit price text is tried first, then the full text. It never fails:
// an unreadable price yields the unconfirmed sentinel.
func Normalize(r domain.ServiceRecord) domain.ServiceRecord {
	source := r.PriceDisplay
	if source == "" {
		source = r.FullText
	}
	v, err := ParsePrice(source)
	if err != nil && source != r.FullText && r.FullText != "" {
		v, err = ParsePrice(r.FullText)
	}
	if err != nil {
		r.PriceFrom = nil
		r.PriceDisplay = domain.PriceUnconfirmed
		return r
	}
	r.PriceFrom = domain.Int64(v)
	r.PriceDisplay = domain.FormatPrice(v)
	return r
}

// NormalizeAll normalizes every record, preserving order.
func NormalizeAll(records []domain.ServiceRecord) []domain.ServiceRecord {
	return fn.Map(records, Normalize)
}
