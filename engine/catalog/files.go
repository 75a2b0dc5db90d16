package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
)

// maxUploadLine bounds one upload-file line; full texts can be long.
const maxUploadLine = 16 << 20

// ReadRecords loads a JSON array of records.
func ReadRecords(path string) ([]domain.ServiceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read records: %w", err)
	}
	var records []domain.ServiceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("catalog: decode records %s: %w", path, err)
	}
	return records, nil
}

// WriteRecords stores records as an indented UTF-8 JSON array, creating the
// parent directory when needed.
func WriteRecords(path string, records []domain.ServiceRecord) error {
	if records == nil {
		records = []domain.ServiceRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("catalog: encode records: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// UploadPayload is the index metadata carried by one upload line.
type UploadPayload struct {
	ServiceCode  string   `json:"service_code"`
	Title        string   `json:"title"`
	Slug         string   `json:"slug"`
	PriceDisplay string   `json:"price_display"`
	PriceFrom    *int64   `json:"price_from"`
	Tags         []string `json:"tags"`
	SourceDoc    string   `json:"source_doc"`
}

// Map returns the payload as index metadata.
func (p UploadPayload) Map() map[string]any {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"service_code":  p.ServiceCode,
		"title":         p.Title,
		"slug":          p.Slug,
		"price_display": p.PriceDisplay,
		"price_from":    priceValue(p.PriceFrom),
		"tags":          tags,
		"source_doc":    p.SourceDoc,
	}
}

// UploadEntry is one line of the upload file. ID is the record key as
// written by the producer, usually the slug.
type UploadEntry struct {
	ID      any           `json:"id"`
	Text    string        `json:"text"`
	Payload UploadPayload `json:"payload"`
}

// WriteUpload stores entries as JSON lines with every non-ASCII character
// escaped, so each line is plain ASCII.
func WriteUpload(path string, entries []UploadEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		line, err := marshalASCII(e)
		if err != nil {
			return fmt.Errorf("catalog: encode upload entry %v: %w", e.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return writeFile(path, buf.Bytes())
}

// ReadUpload loads a JSON-lines upload file, skipping blank lines. Numeric
// ids decode as json.Number.
func ReadUpload(path string) ([]UploadEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open upload: %w", err)
	}
	defer f.Close()
	return decodeUpload(f)
}

func decodeUpload(r io.Reader) ([]UploadEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxUploadLine)
	var entries []UploadEntry
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var e UploadEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("catalog: upload line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("catalog: scan upload: %w", err)
	}
	return entries, nil
}

func marshalASCII(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	raw := bytes.TrimRight(buf.Bytes(), "\n")

	out := make([]byte, 0, len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			out = appendEscape(out, r1)
			out = appendEscape(out, r2)
			continue
		}
		out = appendEscape(out, r)
	}
	return out, nil
}

func appendEscape(b []byte, r rune) []byte {
	b = append(b, '\\', 'u')
	hex := strconv.FormatInt(int64(r), 16)
	for i := len(hex); i < 4; i++ {
		b = append(b, '0')
	}
	return append(b, hex...)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("catalog: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", path, err)
	}
	return nil
}
