package services

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/place-matcher/app/models"
	"github.com/place-matcher/internal/matcher"
	"github.com/place-matcher/internal/normalizer"
	"github.com/place-matcher/internal/search"
	"github.com/place-matcher/internal/sink"
)

// fakeProvider returns a canned response and counts calls; errs are consumed
// before responses to exercise the retry path.
type fakeProvider struct {
	resp  *search.Response
	errs  []error
	calls int
}

func (f *fakeProvider) Search(_ context.Context, _ search.Query) (*search.Response, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.resp, nil
}

var testHeaders = []string{"name", "latitude", "longitude", "pincode", "address"}

func testRecord(index int, name, lat, lon, pin, addr string) models.InputRecord {
	return models.InputRecord{
		Index:         index,
		FacilityName:  name,
		RawLat:        lat,
		RawLon:        lon,
		PostalCode:    pin,
		TaggedAddress: addr,
		Extra: map[string]string{
			"name": name, "latitude": lat, "longitude": lon, "pincode": pin, "address": addr,
		},
		ExtraOrder: testHeaders,
	}
}

type resolverHarness struct {
	resolver   *ResolverService
	provider   search.Provider
	store      *MemoryStore
	checkpoint *CheckpointTracker
	primary    *sink.MemorySink
	audit      *sink.MemorySink
	result     *sink.MemorySink
}

func newResolverHarness(t *testing.T, provider search.Provider, store *MemoryStore, checkpointPath string) *resolverHarness {
	t.Helper()
	logger := zap.NewNop()

	tn := normalizer.NewTextNormalizer(nil)
	cc := matcher.NewCategoryClassifier([]string{"Hospital", "Government hospital"}, false)

	scorerCfg := matcher.DefaultScorerConfig()
	scorerCfg.BrandTokens = []string{"apollo", "fortis"}
	scorer := matcher.NewScorer(scorerCfg, tn, cc)

	cache, err := NewVicinityCache(store, 64, 3, logger)
	if err != nil {
		t.Fatal(err)
	}
	checkpoint, err := NewCheckpointTracker(checkpointPath, logger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultResolverConfig()
	cfg.Retry.BaseDelay = 0 // no real sleeping in tests

	h := &resolverHarness{
		provider:   provider,
		store:      store,
		checkpoint: checkpoint,
		primary:    &sink.MemorySink{},
		audit:      &sink.MemorySink{},
		result:     &sink.MemorySink{},
	}
	h.resolver = NewResolverService(
		provider, cache, NewDedupeLedger(store, logger), checkpoint,
		tn, cc, scorer, h.primary, h.audit, h.result, cfg, logger)
	return h
}

func cityGeneralResponse() *search.Response {
	return &search.Response{Places: []search.Place{
		{
			Title:       "City General Hospital",
			Address:     "12 MG Road, Bangalore, Karnataka 560001, India",
			Latitude:    12.9717,
			Longitude:   77.5947,
			Category:    "Hospital",
			CID:         "111",
			Rating:      4.2,
			RatingCount: 1250,
		},
		{
			Title:     "Quick Care Clinic",
			Address:   "14 MG Road, Bangalore, Karnataka 560001, India",
			Latitude:  12.9718,
			Longitude: 77.5948,
			Category:  "Clinic",
			CID:       "222",
		},
	}}
}

func TestResolverMatchesAndRoutesOutputs(t *testing.T) {
	provider := &fakeProvider{resp: cityGeneralResponse()}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore, Karnataka 560001, India"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	if len(h.primary.Rows) != 1 {
		t.Fatalf("primary rows = %d, want 1: %v", len(h.primary.Rows), h.primary.Rows)
	}
	if h.primary.Rows[0][0] != "City General Hospital" {
		t.Errorf("primary row name = %q", h.primary.Rows[0][0])
	}

	if len(h.audit.Rows) != 1 {
		t.Fatalf("audit rows = %d, want 1: %v", len(h.audit.Rows), h.audit.Rows)
	}
	auditRow := h.audit.Rows[0]
	if auditRow[0] != "Quick Care Clinic" || auditRow[len(auditRow)-1] != "category not allowlisted" {
		t.Errorf("audit row = %v", auditRow)
	}

	if len(h.result.Rows) != 1 {
		t.Fatalf("result rows = %d, want 1", len(h.result.Rows))
	}
	row := h.result.Rows[0]
	if row[0] != "City General" {
		t.Errorf("result row lost input columns: %v", row)
	}
	matchedName := row[len(testHeaders)]
	if matchedName != "City General Hospital" {
		t.Errorf("result row match name = %q", matchedName)
	}
	score, err := strconv.ParseFloat(row[len(row)-1], 64)
	if err != nil || score < 75.0 {
		t.Errorf("result score = %q, want >= 75", row[len(row)-1])
	}

	if got := h.checkpoint.NextIndex(); got != 1 {
		t.Errorf("checkpoint NextIndex = %d, want 1", got)
	}
}

func TestResolverEndToEndScenario(t *testing.T) {
	// One strong candidate 30 m out, one unrelated place 2 km out, one
	// eliminated category.
	provider := &fakeProvider{resp: &search.Response{Places: []search.Place{
		{
			Title:       "City General Hospital",
			Address:     "12 MG Road, Bangalore, Karnataka 560001, India",
			Latitude:    12.9718,
			Longitude:   77.5947,
			Category:    "Hospital",
			CID:         "111",
			RatingCount: 900,
		},
		{
			Title:     "Lakeside Multispeciality Hospital",
			Address:   "Outer Ring Road, Bangalore, Karnataka 560037, India",
			Latitude:  12.9890,
			Longitude: 77.6010,
			Category:  "Hospital",
			CID:       "555",
		},
		{
			Title:     "Smile Dental Clinic",
			Address:   "13 MG Road, Bangalore, Karnataka 560001, India",
			Latitude:  12.9717,
			Longitude: 77.5948,
			Category:  "Dental clinic",
			CID:       "666",
		},
	}}}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001",
			"MG Road, Bangalore, Karnataka 560001, India"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	// Both allowed places reach the primary output once each.
	if len(h.primary.Rows) != 2 {
		t.Fatalf("primary rows = %d, want 2: %v", len(h.primary.Rows), h.primary.Rows)
	}
	// The eliminated category lands in audit with its reason.
	if len(h.audit.Rows) != 1 || h.audit.Rows[0][0] != "Smile Dental Clinic" {
		t.Fatalf("audit rows = %v", h.audit.Rows)
	}
	// The nearby match wins the record.
	row := h.result.Rows[0]
	if row[len(testHeaders)] != "City General Hospital" {
		t.Errorf("selected %q, want City General Hospital", row[len(testHeaders)])
	}
	score, err := strconv.ParseFloat(row[len(row)-1], 64)
	if err != nil || score < 75.0 {
		t.Errorf("score = %q, want >= 75", row[len(row)-1])
	}
}

func TestResolverVicinityCacheSuppressesRefetch(t *testing.T) {
	provider := &fakeProvider{resp: cityGeneralResponse()}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	// Two records in the same rounded vicinity with the same postal code.
	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
		testRecord(1, "City General Hospital", "12.97161", "77.59459", "560001", "MG Road, Bangalore 560001"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (second record served from cache)", provider.calls)
	}
	// The ledger admits each place once across both records.
	if len(h.primary.Rows) != 1 {
		t.Errorf("primary rows = %d, want 1", len(h.primary.Rows))
	}
	// But both records still get a result row.
	if len(h.result.Rows) != 2 {
		t.Errorf("result rows = %d, want 2", len(h.result.Rows))
	}
}

func TestResolverRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{
		resp: cityGeneralResponse(),
		errs: []error{errors.New("http 500"), errors.New("timeout")},
	}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3 (two failures then success)", provider.calls)
	}
	if len(h.primary.Rows) != 1 {
		t.Errorf("primary rows = %d after retries, want 1", len(h.primary.Rows))
	}
}

func TestResolverExhaustedRetriesYieldBlankRow(t *testing.T) {
	provider := &fakeProvider{
		resp: cityGeneralResponse(),
		errs: []error{
			errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
		},
	}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 4 {
		t.Errorf("provider calls = %d, want 4 attempts", provider.calls)
	}
	if len(h.primary.Rows) != 0 {
		t.Errorf("primary rows = %d, want 0", len(h.primary.Rows))
	}
	if len(h.result.Rows) != 1 {
		t.Fatalf("result rows = %d, want exactly one blank row", len(h.result.Rows))
	}
	row := h.result.Rows[0]
	if row[len(testHeaders)] != "" || row[len(row)-1] != "" {
		t.Errorf("failed record row not blank: %v", row)
	}
	// The failure is recorded but the run moved on.
	if got := h.checkpoint.NextIndex(); got != 1 {
		t.Errorf("checkpoint NextIndex = %d, want 1", got)
	}
	if state := h.checkpoint.State(); len(state.Errors) != 1 {
		t.Errorf("checkpoint errors = %+v, want 1 entry", state.Errors)
	}
}

func TestResolverInvalidCoordinates(t *testing.T) {
	provider := &fakeProvider{resp: cityGeneralResponse()}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "Broken Row", "not-a-number", "77.5946", "560001", "somewhere"),
		testRecord(1, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (invalid record never searched)", provider.calls)
	}
	if len(h.result.Rows) != 2 {
		t.Fatalf("result rows = %d, want 2", len(h.result.Rows))
	}
	if h.result.Rows[0][len(testHeaders)] != "" {
		t.Errorf("invalid record row not blank: %v", h.result.Rows[0])
	}
	if h.result.Rows[1][len(testHeaders)] == "" {
		t.Errorf("valid record row unexpectedly blank: %v", h.result.Rows[1])
	}
}

func TestResolverBelowThresholdIsNoMatch(t *testing.T) {
	// A lone far-away candidate with a foreign name: allowed through the
	// funnel but too weak to accept.
	provider := &fakeProvider{resp: &search.Response{Places: []search.Place{{
		Title:     "Entirely Different Facility",
		Address:   "Far Side Road, Mysore, Karnataka 570001, India",
		Latitude:  13.05,
		Longitude: 77.75,
		Category:  "Hospital",
		CID:       "999",
	}}}}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	// The allowed candidate still reaches the primary output.
	if len(h.primary.Rows) != 1 {
		t.Errorf("primary rows = %d, want 1", len(h.primary.Rows))
	}
	// But the record itself stays unmatched.
	row := h.result.Rows[0]
	if row[len(testHeaders)] != "" || row[len(row)-1] != "" {
		t.Errorf("weak candidate accepted as match: %v", row)
	}
}

func TestResolverResumeSkipsProcessedRecords(t *testing.T) {
	store := NewMemoryStore()
	dir := t.TempDir()
	cp := dir + "/cp.json"

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
		testRecord(1, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
	}

	first := newResolverHarness(t, &fakeProvider{resp: cityGeneralResponse()}, store, cp)
	if err := first.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	// Restart against the same durable store and checkpoint: everything is
	// already processed, so nothing runs and nothing is emitted twice.
	resumed := &fakeProvider{resp: cityGeneralResponse()}
	second := newResolverHarness(t, resumed, store, cp)
	if err := second.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	if resumed.calls != 0 {
		t.Errorf("resumed run made %d provider calls, want 0", resumed.calls)
	}
	if len(second.primary.Rows) != 0 {
		t.Errorf("resumed run emitted %d primary rows, want 0", len(second.primary.Rows))
	}
	if len(second.result.Rows) != 0 {
		t.Errorf("resumed run emitted %d result rows, want 0", len(second.result.Rows))
	}
}

// cancelingProvider cancels the run from inside the search call, the way an
// operator interrupt lands while a record is mid-flight.
type cancelingProvider struct {
	cancel context.CancelFunc
	calls  int
}

func (p *cancelingProvider) Search(ctx context.Context, _ search.Query) (*search.Response, error) {
	p.calls++
	p.cancel()
	return nil, ctx.Err()
}

func TestResolverInterruptLeavesRecordUnprocessed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newResolverHarness(t, &cancelingProvider{cancel: cancel}, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
	}
	err := h.resolver.Run(ctx, records, testHeaders)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}

	// The interrupted record is neither a blank row nor a logged failure, and
	// the checkpoint never advances past it: a restart picks it up again.
	if len(h.result.Rows) != 0 {
		t.Errorf("interrupted record emitted rows: %v", h.result.Rows)
	}
	if got := h.checkpoint.NextIndex(); got != 0 {
		t.Errorf("checkpoint NextIndex = %d, want 0", got)
	}
	if state := h.checkpoint.State(); len(state.Errors) != 0 {
		t.Errorf("interrupt logged as record error: %+v", state.Errors)
	}
}

func TestResolverIdempotentAcrossFreshRuns(t *testing.T) {
	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001",
			"MG Road, Bangalore, Karnataka 560001, India"),
		testRecord(1, "Apollo Clinic", "12.9784", "77.6408", "560038",
			"100 Feet Road, Indiranagar, Bangalore 560038, India"),
	}
	run := func() *resolverHarness {
		h := newResolverHarness(t, &fakeProvider{resp: cityGeneralResponse()},
			NewMemoryStore(), t.TempDir()+"/cp.json")
		if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
			t.Fatal(err)
		}
		return h
	}

	// Two runs from clean state over the same input produce the same outputs.
	first, second := run(), run()
	if !reflect.DeepEqual(first.primary.Rows, second.primary.Rows) {
		t.Errorf("primary rows diverged:\n%v\n%v", first.primary.Rows, second.primary.Rows)
	}
	if !reflect.DeepEqual(first.audit.Rows, second.audit.Rows) {
		t.Errorf("audit rows diverged:\n%v\n%v", first.audit.Rows, second.audit.Rows)
	}
	if !reflect.DeepEqual(first.result.Rows, second.result.Rows) {
		t.Errorf("result rows diverged:\n%v\n%v", first.result.Rows, second.result.Rows)
	}
}

func TestResolverHardOverrideShortCircuits(t *testing.T) {
	provider := &fakeProvider{resp: &search.Response{Places: []search.Place{
		{
			Title:       "Apollo Hospital Indiranagar",
			Address:     "100 Feet Road, Indiranagar, Bangalore, Karnataka 560038, India",
			Latitude:    12.9790,
			Longitude:   77.6415,
			Category:    "Hospital",
			CID:         "333",
			RatingCount: 80,
		},
	}}}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "Apollo Clinic", "12.9784", "77.6408", "560038",
			"100 Feet Road, Indiranagar, Bangalore 560038, India"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	row := h.result.Rows[0]
	if row[len(testHeaders)] != "Apollo Hospital Indiranagar" {
		t.Fatalf("override candidate not selected: %v", row)
	}
	score, err := strconv.ParseFloat(row[len(row)-1], 64)
	if err != nil || score != matcher.OverrideScore {
		t.Errorf("override score = %q, want %v", row[len(row)-1], matcher.OverrideScore)
	}
}

func TestResolverRegionGuard(t *testing.T) {
	provider := &fakeProvider{resp: &search.Response{Places: []search.Place{
		{
			// Same name but located on another continent with no regional
			// address evidence: dropped before classification.
			Title:     "City General Hospital",
			Address:   "1 Main Street, Springfield",
			Latitude:  40.0,
			Longitude: -75.0,
			Category:  "Hospital",
			CID:       "444",
		},
	}}}
	h := newResolverHarness(t, provider, NewMemoryStore(), t.TempDir()+"/cp.json")

	records := []models.InputRecord{
		testRecord(0, "City General", "12.9716", "77.5946", "560001", "MG Road, Bangalore 560001"),
	}
	if err := h.resolver.Run(context.Background(), records, testHeaders); err != nil {
		t.Fatal(err)
	}

	if len(h.primary.Rows) != 0 || len(h.audit.Rows) != 0 {
		t.Errorf("out-of-region candidate leaked: primary=%d audit=%d",
			len(h.primary.Rows), len(h.audit.Rows))
	}
	if h.result.Rows[0][len(testHeaders)] != "" {
		t.Errorf("out-of-region candidate matched: %v", h.result.Rows[0])
	}
}
