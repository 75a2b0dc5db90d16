package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
)

const (
	defaultCurrency = "RUB"
	defaultCTA      = "Оставить заявку"
)

var (
	extractPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)от\s*([\d` + hspace + dashes + `]+)\s*₽`),
		regexp.MustCompile(`(?i)Цена[:\s]*ОТ\s*([\d` + hspace + dashes + `]+)\s*₽`),
		regexp.MustCompile(`(?i)(\d[\d` + hspace + dashes + `]+)\s*руб`),
	}

	includesHeader     = regexp.MustCompile(`(?i)^4\.\s*Что входит`)
	requirementsHeader = regexp.MustCompile(`(?i)^5\.\s*Необходимые документы`)
	numberedHeader     = regexp.MustCompile(`^\d+\.`)
)

// extractPriceDisplay reads the display price from raw document text using
// the looser extraction heuristics. Normalize refines it later.
func extractPriceDisplay(text string) string {
	for _, re := range extractPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := leadingNumber(m[1])
		if err != nil {
			return domain.PriceUnconfirmed
		}
		return domain.FormatPrice(v)
	}
	return domain.PriceUnconfirmed
}

// section returns the non-empty lines after the first line matching header,
// up to the next numbered header.
func section(lines []string, header *regexp.Regexp) []string {
	start := -1
	for i, l := range lines {
		if header.MatchString(l) {
			start = i + 1
			break
		}
	}
	items := []string{}
	if start < 0 {
		return items
	}
	for _, l := range lines[start:] {
		if numberedHeader.MatchString(l) {
			break
		}
		if l != "" {
			items = append(items, l)
		}
	}
	return items
}

// Extract builds a record from one source document. name is the document's
// file name; its stem yields the code and slug.
func Extract(name, text string) domain.ServiceRecord {
	text = strings.ToValidUTF8(text, "")
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSpace(l)
	}

	title := stem
	for _, l := range lines {
		if l != "" {
			title = l
			break
		}
	}
	tagline := ""
	if len(lines) > 1 {
		tagline = lines[1]
	}

	return domain.ServiceRecord{
		Code:         strings.ToUpper(stem),
		Title:        title,
		Slug:         strings.ToLower(strings.ReplaceAll(stem, " ", "-")),
		ShortTagline: tagline,
		PriceDisplay: extractPriceDisplay(text),
		Currency:     defaultCurrency,
		Packages:     map[string]any{},
		Includes:     section(lines, includesHeader),
		Excludes:     []string{},
		Requirements: section(lines, requirementsHeader),
		CTA:          defaultCTA,
		RedFlags:     []string{},
		Tags:         []string{},
		SourceDoc:    name,
		FullText:     strings.TrimSpace(text),
	}
}

// ExtractOpts configures ExtractDir.
type ExtractOpts struct {
	Workers int // parsing pool size; defaults to 4
	Logger  *slog.Logger
}

// ExtractDir extracts a record from every *.txt file in dir. Files are
// parsed on a worker pool; the result follows sorted file-name order.
func ExtractDir(ctx context.Context, dir string, opts ExtractOpts) ([]domain.ServiceRecord, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("catalog: glob %s: %w", dir, err)
	}
	sort.Strings(paths)

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("catalog: worker pool: %w", err)
	}
	defer pool.Release()

	records := make([]domain.ServiceRecord, len(paths))
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			data, err := os.ReadFile(p)
			if err != nil {
				errs[i] = fmt.Errorf("catalog: read %s: %w", p, err)
				return
			}
			records[i] = Extract(filepath.Base(p), string(data))
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("catalog: submit %s: %w", p, err)
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	logger.Info("catalog.extracted", "dir", dir, "records", len(records))
	return records, nil
}
