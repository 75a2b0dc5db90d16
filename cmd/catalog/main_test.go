package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/catalog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/runlog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/metrics"
)

const orderDoc = `Регистрация ООО
Под ключ за три дня
Цена: от 15 000 ₽

4. Что входит
Подготовка устава
Подача в налоговую

5. Необходимые документы
Паспорт учредителя
`

const liquidationDoc = `Ликвидация ООО
Стоимость обсуждается индивидуально
`

// testEnv clears every variable the ingest command reads and points the
// embedding chain at srv only.
func testEnv(t *testing.T, embedURL string) {
	t.Helper()
	for _, k := range []string{
		"QDRANT_URL", "QDRANT_GRPC_ADDR", "INDEX_TRANSPORT", "QDRANT_COLLECTION",
		"OPENAI_API_KEY", "OPENAI_KEY", "OPENAI_EMBEDDINGS_URL", "OPENAI_EMBEDDING_MODEL",
		"INGEST_LIMIT", "INGEST_LOG", "EMBED_CACHE_DIR", "NATS_URL",
		"INGEST_EVENTS_SUBJECT", "METRICS_PORT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("EMBED_SERVER_URL", embedURL)
	t.Setenv("EMBED_FALLBACK_URLS", embedURL)
}

func embedServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.25,0.125]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"catalog", "--log-level", "error"}, args...))
	return out.String(), err
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "registraciya-ooo.txt"), []byte(orderDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "likvidaciya.txt"), []byte(liquidationDoc), 0o644))
	return dir
}

func TestPipelineEndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := embedServer(t, &calls)
	testEnv(t, srv.URL)

	docs := writeDocs(t)
	work := t.TempDir()
	generated := filepath.Join(work, "services.json")
	normalized := filepath.Join(work, "services.normalized.json")
	upload := filepath.Join(work, "upload.jsonl")
	logPath := filepath.Join(work, "ingest.log")

	out, err := run(t, "extract", "--dir", docs, "--out", generated)
	require.NoError(t, err)
	assert.Contains(t, out, "extracted 2 records")

	out, err = run(t, "normalize", "--in", generated, "--out", normalized)
	require.NoError(t, err)
	assert.Contains(t, out, "normalized 2 records (1 without price)")

	records, err := catalog.ReadRecords(normalized)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Sorted by file name: likvidaciya.txt first.
	assert.Equal(t, "likvidaciya", records[0].Slug)
	assert.Nil(t, records[0].PriceFrom)
	assert.Equal(t, "registraciya-ooo", records[1].Slug)
	require.NotNil(t, records[1].PriceFrom)
	assert.Equal(t, int64(15000), *records[1].PriceFrom)
	assert.Equal(t, []string{"Подготовка устава", "Подача в налоговую"}, records[1].Includes)

	out, err = run(t, "prepare", "--in", normalized, "--out", upload)
	require.NoError(t, err)
	assert.Contains(t, out, "prepared 2 upload lines")

	out, err = run(t, "ingest", "--mode", "per-item", "--input", upload, "--log", logPath,
		"--dry-run", "--ensure-collection", "--pause", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "success=2/2")
	assert.Equal(t, int32(2), calls.Load())

	out, err = run(t, "replay", "--log", logPath)
	require.NoError(t, err)
	assert.Contains(t, out, "WRITTEN\tregistraciya-ooo\tdfb58fa4-1a55-57db-ac40-66dc3ded38dd")
	assert.Contains(t, out, "success=2/2")
}

func TestIngestBatchFromRecords(t *testing.T) {
	var calls atomic.Int32
	srv := embedServer(t, &calls)
	testEnv(t, srv.URL)

	work := t.TempDir()
	normalized := filepath.Join(work, "services.normalized.json")
	_, err := run(t, "extract", "--dir", writeDocs(t), "--out", normalized)
	require.NoError(t, err)

	logPath := filepath.Join(work, "ingest.log")
	out, err := run(t, "ingest", "--mode", "batch", "--input", normalized, "--log", logPath,
		"--dry-run", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "success=1/1")
	assert.Contains(t, out, "mode=batch")

	events, err := runlog.ReadFile(logPath)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, runlog.KindRunStart, events[0].Kind)
	assert.Equal(t, runlog.KindRunEnd, events[len(events)-1].Kind)

	out, err = run(t, "replay", "--log", logPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1\tWRITTEN\tlikvidaciya\t")
	assert.Contains(t, out, "success=1/1")
}

func TestIngestBatchFailsWhenEmbeddingUnavailable(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer down.Close()
	testEnv(t, down.URL)

	work := t.TempDir()
	normalized := filepath.Join(work, "services.normalized.json")
	_, err := run(t, "extract", "--dir", writeDocs(t), "--out", normalized)
	require.NoError(t, err)

	out, err := run(t, "ingest", "--mode", "batch", "--input", normalized,
		"--log", filepath.Join(work, "ingest.log"), "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
	assert.Contains(t, out, "success=0/1")
}

func TestIngestRejectsUnknownMode(t *testing.T) {
	var calls atomic.Int32
	testEnv(t, embedServer(t, &calls).URL)

	_, err := run(t, "ingest", "--mode", "stream", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestSetupLoggerRejectsBadLevel(t *testing.T) {
	_, err := run(t, "--log-level", "loud", "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestMetricsRouter(t *testing.T) {
	reg := metrics.New()
	reg.Counter("catalog_test_total", "test counter").Inc()
	h := newMetricsRouter(reg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "catalog_test_total 1"))
}
