package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/catalog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/embed"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/index"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/pointid"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/runlog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/metrics"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/resilience"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeEmbedder fails for texts in bad, and for the first flaky calls of any
// other text. Call times are recorded per text.
type fakeEmbedder struct {
	mu    sync.Mutex
	bad   map[string]bool
	flaky int
	calls map[string][]time.Time
}

func newFakeEmbedder(bad ...string) *fakeEmbedder {
	f := &fakeEmbedder{bad: map[string]bool{}, calls: map[string][]time.Time{}}
	for _, b := range bad {
		f.bad[b] = true
	}
	return f
}

func (f *fakeEmbedder) Resolve(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text] = append(f.calls[text], time.Now())
	if f.bad[text] {
		return nil, fmt.Errorf("fake: %w", domain.ErrEmbeddingUnavailable)
	}
	if f.flaky > 0 {
		f.flaky--
		return nil, fmt.Errorf("fake: flaky: %w", domain.ErrEmbeddingUnavailable)
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEmbedder) callsFor(text string) []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls[text]...)
}

func testItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			Index:   i + 1,
			Key:     fmt.Sprintf("svc-%d", i+1),
			Text:    fmt.Sprintf("text %d", i+1),
			Payload: map[string]any{"slug": fmt.Sprintf("svc-%d", i+1)},
		}
	}
	return items
}

func fastOpts() PerItemOpts {
	return PerItemOpts{
		EmbedAttempts: 3,
		EmbedBackoff:  time.Millisecond,
		WriteAttempts: 2,
		WriteDelay:    time.Millisecond,
		Pause:         time.Millisecond,
	}
}

func kinds(events []runlog.Event, index int) []runlog.Kind {
	var out []runlog.Kind
	for _, e := range events {
		if e.Index == index {
			out = append(out, e.Kind)
		}
	}
	return out
}

// --- PerItem ---

func TestPerItem_OneFailingRecordIsSkipped(t *testing.T) {
	emb := newFakeEmbedder("text 3")
	mem := index.NewMemory()
	events := &runlog.Memory{}
	reg := metrics.New()

	p := NewPerItem(Deps{Embedder: emb, Index: mem, Events: events, Metrics: reg, Logger: quietLogger()}, fastOpts())
	sum := p.Run(context.Background(), testItems(5))

	assert.Equal(t, "success=4/5", sum.String())
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Dims)
	assert.Equal(t, 4, mem.Len())
	assert.Len(t, emb.callsFor("text 3"), 3)

	failed := sum.FailedOutcomes()
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Index)
	assert.Equal(t, StateEmbedFailed, failed[0].State)
	assert.ErrorIs(t, failed[0].Err, domain.ErrEmbeddingUnavailable)

	all := events.Events()
	require.NotEmpty(t, all)
	assert.Equal(t, runlog.KindRunStart, all[0].Kind)
	assert.Equal(t, "per-item", all[0].Mode)
	last := all[len(all)-1]
	assert.Equal(t, runlog.KindRunEnd, last.Kind)
	assert.Equal(t, 4, last.Succeeded)
	assert.Equal(t, "success=4/5", last.Message)

	assert.Equal(t, []runlog.Kind{
		runlog.KindRecordStart,
		runlog.KindEmbedAttempt, runlog.KindEmbedAttempt, runlog.KindEmbedAttempt,
		runlog.KindEmbedFailed,
	}, kinds(all, 3))
	assert.Equal(t, []runlog.Kind{
		runlog.KindRecordStart,
		runlog.KindEmbedAttempt,
		runlog.KindEmbedded,
		runlog.KindWriteAttempt,
		runlog.KindWritten,
	}, kinds(all, 4))

	for _, e := range all {
		assert.Equal(t, sum.RunID, e.RunID)
	}
	assert.Contains(t, reg.Render(), `catalog_ingest_records_total{mode="per-item",outcome="written"} 4`)
	assert.Contains(t, reg.Render(), `catalog_ingest_records_total{mode="per-item",outcome="embed_failed"} 1`)
	assert.Contains(t, reg.Render(), `catalog_ingest_remaining{mode="per-item"} 0`)
}

func TestPerItem_EmbedBackoffIsLinear(t *testing.T) {
	emb := newFakeEmbedder("text 1")
	opts := fastOpts()
	opts.EmbedBackoff = 20 * time.Millisecond

	p := NewPerItem(Deps{Embedder: emb, Index: index.NewMemory(), Logger: quietLogger()}, opts)
	p.Run(context.Background(), testItems(1))

	calls := emb.callsFor("text 1")
	require.Len(t, calls, 3)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, calls[2].Sub(calls[1]), 40*time.Millisecond)
}

func TestPerItem_EmbedRecoversOnRetry(t *testing.T) {
	emb := newFakeEmbedder()
	emb.flaky = 2
	events := &runlog.Memory{}

	p := NewPerItem(Deps{Embedder: emb, Index: index.NewMemory(), Events: events, Logger: quietLogger()}, fastOpts())
	sum := p.Run(context.Background(), testItems(1))

	assert.Equal(t, "success=1/1", sum.String())
	var oks []bool
	for _, e := range events.Events() {
		if e.Kind == runlog.KindEmbedAttempt {
			require.NotNil(t, e.OK)
			oks = append(oks, *e.OK)
		}
	}
	assert.Equal(t, []bool{false, false, true}, oks)

	replayed := runlog.Outcomes(events.Events(), sum.RunID)
	require.Len(t, replayed, 1)
	assert.Equal(t, string(StateWritten), replayed[0].State)
	assert.Empty(t, replayed[0].Err)
}

func TestPerItem_WriteRetryRecovers(t *testing.T) {
	mem := index.NewMemory()
	mem.FailNext = 1
	events := &runlog.Memory{}

	p := NewPerItem(Deps{Embedder: newFakeEmbedder(), Index: mem, Events: events, Logger: quietLogger()}, fastOpts())
	sum := p.Run(context.Background(), testItems(1))

	assert.Equal(t, "success=1/1", sum.String())
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, []runlog.Kind{
		runlog.KindRecordStart,
		runlog.KindEmbedAttempt,
		runlog.KindEmbedded,
		runlog.KindWriteAttempt,
		runlog.KindWriteAttempt,
		runlog.KindWritten,
	}, kinds(events.Events(), 1))
}

func TestPerItem_WriteFailsTwice(t *testing.T) {
	mem := index.NewMemory()
	mem.FailNext = 2
	events := &runlog.Memory{}

	p := NewPerItem(Deps{Embedder: newFakeEmbedder(), Index: mem, Events: events, Logger: quietLogger()}, fastOpts())
	sum := p.Run(context.Background(), testItems(2))

	assert.Equal(t, "success=1/2", sum.String())
	require.Len(t, sum.Outcomes, 2)
	assert.Equal(t, StateWriteFailed, sum.Outcomes[0].State)
	assert.ErrorIs(t, sum.Outcomes[0].Err, domain.ErrWriteFailed)
	assert.Equal(t, StateWritten, sum.Outcomes[1].State)

	got := kinds(events.Events(), 1)
	assert.Equal(t, runlog.KindWriteFailed, got[len(got)-1])
}

func TestPerItem_Limit(t *testing.T) {
	mem := index.NewMemory()
	opts := fastOpts()
	opts.Limit = 2

	p := NewPerItem(Deps{Embedder: newFakeEmbedder(), Index: mem, Logger: quietLogger()}, opts)
	sum := p.Run(context.Background(), testItems(5))

	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, "success=2/2", sum.String())
	assert.Equal(t, 2, mem.Len())
}

func TestPerItem_CancelStopsBeforeNextRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastOpts()
	opts.Pause = time.Hour
	p := NewPerItem(Deps{
		Embedder: newFakeEmbedder(),
		Index: writerFunc(func(ctx context.Context, points []index.Point) error {
			cancel()
			return nil
		}),
		Logger: quietLogger(),
	}, opts)

	sum := p.Run(ctx, testItems(3))
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Attempted)
	assert.Equal(t, "success=1/1", sum.String())
}

func TestPerItem_EnsureCollectionOnce(t *testing.T) {
	var dims []int
	p := NewPerItem(Deps{
		Embedder: newFakeEmbedder(),
		Index:    index.NewMemory(),
		Logger:   quietLogger(),
		EnsureCollection: func(_ context.Context, d int) error {
			dims = append(dims, d)
			return nil
		},
	}, fastOpts())

	p.Run(context.Background(), testItems(3))
	assert.Equal(t, []int{3}, dims)
}

type writerFunc func(ctx context.Context, points []index.Point) error

func (f writerFunc) Upsert(ctx context.Context, points []index.Point) error { return f(ctx, points) }

// --- Batch ---

func TestBatch_WritesInGroups(t *testing.T) {
	mem := index.NewMemory()
	events := &runlog.Memory{}

	b := NewBatch(Deps{Embedder: newFakeEmbedder(), Index: mem, Events: events, Logger: quietLogger()}, BatchOpts{Size: 2})
	sum, err := b.Run(context.Background(), testItems(5))

	require.NoError(t, err)
	assert.Equal(t, "success=5/5", sum.String())
	assert.Equal(t, 5, mem.Len())
	assert.Equal(t, 3, mem.Upserts())

	groups := map[int]string{}
	for _, e := range events.Events() {
		if e.Kind == runlog.KindWritten {
			groups[e.Index] = e.Message
		}
	}
	assert.Equal(t, map[int]string{
		1: "batch 1/3", 2: "batch 1/3",
		3: "batch 2/3", 4: "batch 2/3",
		5: "batch 3/3",
	}, groups)

	replayed := runlog.Outcomes(events.Events(), sum.RunID)
	require.Len(t, replayed, 5)
	for i, o := range replayed {
		assert.Equal(t, i+1, o.Index)
		assert.Equal(t, string(StateWritten), o.State)
		assert.Equal(t, fmt.Sprintf("svc-%d", i+1), o.Key)
		assert.Equal(t, pointid.Resolve(o.Key).String(), o.PointID)
	}
}

func TestBatch_EmbedFailureAbortsGroup(t *testing.T) {
	mem := index.NewMemory()
	events := &runlog.Memory{}

	b := NewBatch(Deps{Embedder: newFakeEmbedder("text 4"), Index: mem, Events: events, Logger: quietLogger()}, BatchOpts{Size: 2})
	sum, err := b.Run(context.Background(), testItems(6))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "record 4 (svc-4)")

	// The first group stays written; nothing from the failing one is.
	assert.ElementsMatch(t, idsOf("svc-1", "svc-2"), mem.IDs())
	_, ok := mem.Get(pointid.Resolve("svc-3").String())
	assert.False(t, ok)

	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 4, sum.Attempted)
	assert.Equal(t, 2, sum.Failed)

	failed := sum.FailedOutcomes()
	require.Len(t, failed, 2)
	assert.Equal(t, StateEmbedded, failed[0].State)
	assert.Equal(t, StateEmbedFailed, failed[1].State)

	all := events.Events()
	last := all[len(all)-1]
	assert.Equal(t, runlog.KindRunEnd, last.Kind)
	assert.NotEmpty(t, last.Err)

	var states []string
	for _, o := range runlog.Outcomes(all, sum.RunID) {
		states = append(states, o.State)
	}
	assert.Equal(t, []string{"WRITTEN", "WRITTEN", "EMBEDDED", "EMBED_FAILED"}, states)
}

func TestBatch_WriteFailure(t *testing.T) {
	mem := index.NewMemory()
	mem.FailNext = 1
	events := &runlog.Memory{}

	b := NewBatch(Deps{Embedder: newFakeEmbedder(), Index: mem, Events: events, Logger: quietLogger()}, BatchOpts{})
	sum, err := b.Run(context.Background(), testItems(3))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWriteFailed)
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, 0, sum.Succeeded)
	require.Len(t, sum.Outcomes, 3)
	for _, o := range sum.Outcomes {
		assert.Equal(t, StateWriteFailed, o.State)
	}
	replayed := runlog.Outcomes(events.Events(), sum.RunID)
	require.Len(t, replayed, 3)
	for _, o := range replayed {
		assert.Equal(t, string(StateWriteFailed), o.State)
		assert.NotEmpty(t, o.Err)
	}
}

func TestBatch_Limit(t *testing.T) {
	mem := index.NewMemory()
	b := NewBatch(Deps{Embedder: newFakeEmbedder(), Index: mem, Logger: quietLogger()}, BatchOpts{Limit: 3})
	sum, err := b.Run(context.Background(), testItems(10))

	require.NoError(t, err)
	assert.Equal(t, "success=3/3", sum.String())
	assert.Equal(t, 3, mem.Len())
}

func TestBatch_EnsureCollectionError(t *testing.T) {
	b := NewBatch(Deps{
		Embedder: newFakeEmbedder(),
		Index:    index.NewMemory(),
		Logger:   quietLogger(),
		EnsureCollection: func(context.Context, int) error {
			return errors.New("boom")
		},
	}, BatchOpts{})

	_, err := b.Run(context.Background(), testItems(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure collection: boom")
}

func TestStableIDsAcrossRuns(t *testing.T) {
	items := []Item{
		{Index: 1, Key: "registraciya-ooo", Text: "a"},
		{Index: 2, Key: 42, Text: "b"},
		{Index: 3, Key: "not-a-number", Text: "c"},
	}
	run := func() []string {
		mem := index.NewMemory()
		b := NewBatch(Deps{Embedder: newFakeEmbedder(), Index: mem, Logger: quietLogger()}, BatchOpts{})
		_, err := b.Run(context.Background(), items)
		require.NoError(t, err)
		return mem.IDs()
	}

	first, second := run(), run()
	assert.Equal(t, first, second)
	assert.ElementsMatch(t, []string{
		"42",
		"dfb58fa4-1a55-57db-ac40-66dc3ded38dd",
		"9a87b969-865d-5523-b7ce-94ae1d851725",
	}, first)
}

func idsOf(keys ...string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = pointid.Resolve(k).String()
	}
	return out
}

// --- End to end through the provider chain ---

func TestPerItem_FallsBackToHostedProvider(t *testing.T) {
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer local.Close()

	var hostedCalls atomic.Int32
	hosted := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hostedCalls.Add(1)
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" || req.Input == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3,0.4]}]}`))
	}))
	defer hosted.Close()

	chain := embed.NewChain([]embed.Provider{
		embed.NewLocal(local.URL, time.Second),
		embed.NewHosted(embed.HostedOpts{URL: hosted.URL, Model: "test-model", APIKey: "sk-test", Timeout: time.Second}),
	}, embed.WithLogger(quietLogger()))

	mem := index.NewMemory()
	items := ItemsFromRecords([]domain.ServiceRecord{{
		Title:    "Регистрация ООО",
		Slug:     "registraciya-ooo",
		FullText: "Регистрация ООО под ключ. Цена от 15 000 ₽.",
	}}, 0)

	p := NewPerItem(Deps{Embedder: chain, Index: mem, Logger: quietLogger()}, fastOpts())
	sum := p.Run(context.Background(), items)

	assert.Equal(t, "success=1/1", sum.String())
	assert.Equal(t, int32(1), hostedCalls.Load())
	pt, ok := mem.Get("dfb58fa4-1a55-57db-ac40-66dc3ded38dd")
	require.True(t, ok)
	assert.Len(t, pt.Vector, 4)
	assert.Equal(t, int64(15000), pt.Payload["price_from"])
	assert.NotContains(t, pt.Payload, "full_text")
}

func TestPerItem_RejectedInputsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Input == "text 1" || req.Input == "text 2" {
			http.Error(w, "input rejected", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.25,0.125]}`))
	}))
	defer srv.Close()

	chain := embed.NewChain([]embed.Provider{embed.NewLocal(srv.URL, time.Second)},
		embed.WithLogger(quietLogger()),
		embed.WithBreakers(resilience.DefaultBreakerOpts),
	)
	mem := index.NewMemory()
	p := NewPerItem(Deps{Embedder: chain, Index: mem, Logger: quietLogger()}, fastOpts())
	sum := p.Run(context.Background(), testItems(5))

	assert.Equal(t, "success=3/5", sum.String())
	assert.ElementsMatch(t, idsOf("svc-3", "svc-4", "svc-5"), mem.IDs())
}

type embedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedderFunc) Resolve(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

func TestEmbedStageRejectsEmptyVector(t *testing.T) {
	empty := embedderFunc(func(context.Context, string) ([]float32, error) { return nil, nil })
	_, err := NewEmbed(empty)(context.Background(), Keyed{Item: Item{Index: 7}}).Unwrap()
	require.ErrorIs(t, err, domain.ErrEmptyVector)
	assert.Contains(t, err.Error(), "embed record 7")
}

func TestCheckDims(t *testing.T) {
	var sum Summary
	require.NoError(t, checkDims(&sum, []float32{1, 2, 3}))
	assert.Equal(t, 3, sum.Dims)
	require.NoError(t, checkDims(&sum, []float32{4, 5, 6}))
	assert.ErrorIs(t, checkDims(&sum, []float32{1, 2}), domain.ErrDimensionMismatch)
	assert.Equal(t, 3, sum.Dims)
}

func TestBatch_RemainingGauge(t *testing.T) {
	reg := metrics.New()
	b := NewBatch(Deps{Embedder: newFakeEmbedder(), Index: index.NewMemory(), Metrics: reg, Logger: quietLogger()}, BatchOpts{Size: 2})
	_, err := b.Run(context.Background(), testItems(3))
	require.NoError(t, err)
	assert.Contains(t, reg.Render(), `catalog_ingest_remaining{mode="batch"} 0`)
}

// --- Items ---

func TestItemsFromRecords(t *testing.T) {
	items := ItemsFromRecords([]domain.ServiceRecord{
		{Slug: "a", Title: "A", FullText: "без цены"},
		{Title: "Только название", FullText: "от 3 000 ₽"},
		{FullText: strings.Repeat("ж", 10)},
	}, 4)

	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Key)
	assert.Equal(t, domain.PriceUnconfirmed, items[0].Payload["price_display"])
	assert.Nil(t, items[0].Payload["price_from"])
	assert.Equal(t, "без ", items[0].Text)

	assert.Equal(t, "Только название", items[1].Key)
	assert.Equal(t, int64(3000), items[1].Payload["price_from"])
	assert.Equal(t, "Цена: ОТ 3000 ₽", items[1].Payload["price_display"])

	assert.Equal(t, 3, items[2].Key)
	assert.Equal(t, 3, items[2].Index)
	assert.Equal(t, "жжжж", items[2].Text)
	assert.Len(t, items[2].Payload, 5)
}

func TestItemsFromUpload(t *testing.T) {
	entries := []catalog.UploadEntry{
		{ID: "explicit", Text: "one", Payload: catalog.UploadPayload{Slug: "slug-1"}},
		{ID: json.Number("7"), Text: "two"},
		{ID: "  ", Text: "three", Payload: catalog.UploadPayload{Title: "T"}},
		{Text: "four"},
	}
	items := ItemsFromUpload(entries, 0)

	require.Len(t, items, 4)
	assert.Equal(t, "explicit", items[0].Key)
	assert.Equal(t, json.Number("7"), items[1].Key)
	assert.Equal(t, "T", items[2].Key)
	assert.Equal(t, 4, items[3].Key)
	assert.Len(t, items[0].Payload, 7)
	assert.Equal(t, []string{}, items[3].Payload["tags"])

	assert.Equal(t, "7", NewResolveID(pointid.NewResolver(quietLogger()))(context.Background(), items[1]).UnwrapOr(Keyed{}).ID.String())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 0))
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "пр", truncateRunes("привет", 2))
}

// --- Lifecycle ---

func TestLifecycle(t *testing.T) {
	lc := newLifecycle()
	assert.Equal(t, StatePending, lc.state)
	require.NoError(t, lc.to(StateEmbedding))
	require.NoError(t, lc.to(StateEmbedded))
	require.Error(t, lc.to(StateWritten))
	require.NoError(t, lc.to(StateWriting))
	require.NoError(t, lc.to(StateWritten))
	assert.True(t, lc.state.Terminal())
	assert.Error(t, lc.to(StateWriting))

	assert.True(t, StateEmbedding.CanTransition(StateEmbedFailed))
	assert.False(t, StatePending.CanTransition(StateWritten))
	assert.False(t, StateEmbedFailed.CanTransition(StateEmbedding))
	assert.False(t, StateEmbedded.Terminal())
}

func TestCollectionGate(t *testing.T) {
	calls := 0
	g := &collectionGate{ensure: func(context.Context, int) error {
		calls++
		if calls == 1 {
			return errors.New("not yet")
		}
		return nil
	}}

	assert.Error(t, g.pass(context.Background(), 3))
	assert.NoError(t, g.pass(context.Background(), 3))
	assert.NoError(t, g.pass(context.Background(), 3))
	assert.Equal(t, 2, calls)

	assert.NoError(t, (&collectionGate{}).pass(context.Background(), 3))
}
