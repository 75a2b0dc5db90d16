package ingest

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/catalog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
)

// ItemsFromRecords normalizes records and builds items keyed by slug, then
// title, then 1-based position. Texts are cut to maxRunes (0 keeps them
// whole).
func ItemsFromRecords(records []domain.ServiceRecord, maxRunes int) []Item {
	items := make([]Item, len(records))
	for i, r := range records {
		r = catalog.Normalize(r)
		items[i] = Item{
			Index:   i + 1,
			Key:     firstKey(i+1, r.Slug, r.Title),
			Text:    truncateRunes(r.FullText, maxRunes),
			Payload: catalog.IndexPayload(r),
		}
	}
	return items
}

// ItemsFromUpload builds items from upload lines. The line id is the key
// when present, then the payload slug and title.
func ItemsFromUpload(entries []catalog.UploadEntry, maxRunes int) []Item {
	items := make([]Item, len(entries))
	for i, e := range entries {
		key := uploadKey(e.ID)
		if key == nil {
			key = firstKey(i+1, e.Payload.Slug, e.Payload.Title)
		}
		items[i] = Item{
			Index:   i + 1,
			Key:     key,
			Text:    truncateRunes(e.Text, maxRunes),
			Payload: e.Payload.Map(),
		}
	}
	return items
}

// uploadKey returns id as a usable key, or nil when it is absent or blank.
func uploadKey(id any) any {
	switch v := id.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return v
	case json.Number:
		if v == "" {
			return nil
		}
		return v
	default:
		return v
	}
}

func firstKey(index int, candidates ...string) any {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return index
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
