package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/place-matcher/app/models"
	"github.com/place-matcher/internal/matcher"
	"github.com/place-matcher/internal/normalizer"
	"github.com/place-matcher/internal/search"
	"github.com/place-matcher/internal/sink"
)

// RetryConfig bounds the fetch retry loop: BaseDelay * Factor^(attempt-1)
// between attempts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
}

// ResolverConfig tunes the per-record funnel.
type ResolverConfig struct {
	QueryKeyword    string  // domain keyword folded into the query text
	Country         string  // country hint folded into the query text
	ResultLimit     int     // places requested per search
	RadiusMeters    int     // search radius; 0 omits it
	ShortlistSize   int     // nearest-N allowed candidates scored
	AcceptThreshold float64 // minimum blended score for a best match
	MinReviews      int     // eliminate below this review count; 0 disables
	Region          matcher.BoundingBox
	RegionTokens    []string // address evidence that rescues out-of-box candidates
	Retry           RetryConfig
}

// DefaultResolverConfig is the production profile.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		QueryKeyword:    "hospital",
		Country:         "India",
		ResultLimit:     20,
		RadiusMeters:    200,
		ShortlistSize:   5,
		AcceptThreshold: 75.0,
		Region:          matcher.BoundingBox{LatMin: 6.0, LatMax: 37.5, LonMin: 68.0, LonMax: 97.5},
		RegionTokens:    []string{"india"},
		Retry:           RetryConfig{MaxAttempts: 4, BaseDelay: 800 * time.Millisecond, Factor: 1.6},
	}
}

// ResolverService drives the per-record state machine: acquire candidates
// (cache or fetch), filter, classify, shortlist, score, select, emit,
// checkpoint. Strictly one record at a time, in index order - checkpointing
// assumes a monotonic last-completed index.
type ResolverService struct {
	provider   search.Provider
	cache      *VicinityCache
	ledger     *DedupeLedger
	checkpoint *CheckpointTracker
	normalizer *normalizer.TextNormalizer
	classifier *matcher.CategoryClassifier
	scorer     *matcher.Scorer
	primary    sink.Sink
	audit      sink.Sink
	result     sink.Sink
	cfg        ResolverConfig
	logger     *zap.Logger
}

// NewResolverService wires the orchestrator. All stores are injected; the
// resolver owns only transient per-record state.
func NewResolverService(
	provider search.Provider,
	cache *VicinityCache,
	ledger *DedupeLedger,
	checkpoint *CheckpointTracker,
	tn *normalizer.TextNormalizer,
	cc *matcher.CategoryClassifier,
	scorer *matcher.Scorer,
	primary, audit, result sink.Sink,
	cfg ResolverConfig,
	logger *zap.Logger,
) *ResolverService {
	return &ResolverService{
		provider:   provider,
		cache:      cache,
		ledger:     ledger,
		checkpoint: checkpoint,
		normalizer: tn,
		classifier: cc,
		scorer:     scorer,
		primary:    primary,
		audit:      audit,
		result:     result,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run processes records from the checkpoint's next index to the end.
// inputHeaders is the input's own column order, preserved verbatim on every
// result row. Per-record failures advance the checkpoint and continue; only
// context cancellation stops the run.
func (rs *ResolverService) Run(ctx context.Context, records []models.InputRecord, inputHeaders []string) error {
	start := rs.checkpoint.NextIndex()
	rs.logger.Info("resolver starting",
		zap.Int("records", len(records)),
		zap.Int("resume_from", start))

	for i := start; i < len(records); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// An interrupted record stays unprocessed: the checkpoint only
		// advances past records that reached a real outcome, so a resumed
		// run picks the record up again.
		if err := rs.processRecord(ctx, records[i], inputHeaders); err != nil {
			return err
		}
		if err := rs.checkpoint.Advance(records[i].Index); err != nil {
			return fmt.Errorf("advance checkpoint past %d: %w", records[i].Index, err)
		}
	}

	rs.logger.Info("resolver finished", zap.Int("records", len(records)))
	return nil
}

// processRecord runs the full funnel for one record. A panic anywhere inside
// is caught here so a single malformed record cannot take the run down. The
// returned error is non-nil only for cancellation, which must stop the run
// without recording an outcome for the record.
func (rs *ResolverService) processRecord(ctx context.Context, rec models.InputRecord, inputHeaders []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rs.recordFailure(rec, inputHeaders, fmt.Sprintf("panic: %v", r))
			err = nil
		}
	}()

	lat, lon, ok := rec.Coordinates()
	if !ok {
		rs.recordFailure(rec, inputHeaders,
			fmt.Sprintf("invalid coordinates: lat=%q lon=%q", rec.RawLat, rec.RawLon))
		return nil
	}

	resp, err := rs.acquire(ctx, rec, lat, lon)
	if err != nil {
		// Cancellation is not a record outcome: no blank row, no error log,
		// no checkpoint advance.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rs.recordFailure(rec, inputHeaders, fmt.Sprintf("search failed: %v", err))
		return nil
	}

	allowed, eliminated := rs.filter(rec.Index, lat, lon, resp.Places)

	shortlist := rs.shortlist(lat, lon, allowed)
	best, bestScore := rs.selectBest(rec, lat, lon, shortlist)

	matched := best != nil && bestScore >= rs.cfg.AcceptThreshold
	rs.emit(ctx, rec, inputHeaders, allowed, eliminated, best, bestScore, matched)

	rs.logger.Info("record resolved",
		zap.Int("index", rec.Index),
		zap.Int("allowed", len(allowed)),
		zap.Int("eliminated", len(eliminated)),
		zap.Bool("matched", matched),
		zap.Float64("score", bestScore))
	return nil
}

// acquire returns the candidate set for the record's vicinity: cache first,
// then a fresh fetch with bounded exponential backoff. The response is cached
// only on success.
func (rs *ResolverService) acquire(ctx context.Context, rec models.InputRecord, lat, lon float64) (*search.Response, error) {
	params := QueryParams{Limit: rs.cfg.ResultLimit, RadiusMeters: rs.cfg.RadiusMeters}

	resp, found, err := rs.cache.Get(ctx, lat, lon, rec.PostalCode, params)
	if err != nil {
		rs.logger.Warn("vicinity cache get failed, fetching", zap.Error(err), zap.Int("index", rec.Index))
	} else if found {
		rs.logger.Debug("vicinity cache hit", zap.Int("index", rec.Index))
		return resp, nil
	}

	q := search.Query{
		Text:         rs.queryText(rec, lat, lon),
		Lat:          lat,
		Lon:          lon,
		Postal:       rec.PostalCode,
		Limit:        rs.cfg.ResultLimit,
		RadiusMeters: rs.cfg.RadiusMeters,
	}

	var lastErr error
	for attempt := 1; attempt <= rs.cfg.Retry.MaxAttempts; attempt++ {
		resp, lastErr = rs.provider.Search(ctx, q)
		if lastErr == nil {
			if err := rs.cache.Put(ctx, lat, lon, rec.PostalCode, params, resp); err != nil {
				rs.logger.Warn("vicinity cache put failed", zap.Error(err), zap.Int("index", rec.Index))
			}
			return resp, nil
		}
		if attempt == rs.cfg.Retry.MaxAttempts {
			break
		}
		delay := rs.backoff(attempt)
		rs.logger.Warn("search retry",
			zap.Int("index", rec.Index),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", rs.cfg.Retry.MaxAttempts, lastErr)
}

func (rs *ResolverService) queryText(rec models.InputRecord, lat, lon float64) string {
	parts := []string{strings.TrimSpace(rec.FacilityName), rs.cfg.QueryKeyword,
		fmt.Sprintf("near %v,%v", lat, lon), rec.PostalCode, rs.cfg.Country}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func (rs *ResolverService) backoff(attempt int) time.Duration {
	d := float64(rs.cfg.Retry.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= rs.cfg.Retry.Factor
	}
	return time.Duration(d)
}

// eliminatedCandidate pairs an audit row with its reason.
type eliminatedCandidate struct {
	candidate models.Candidate
	reason    string
}

// filter walks the raw places: per-record identity dedupe, region guard,
// review-count policy, then the category classifier.
func (rs *ResolverService) filter(index int, lat, lon float64, places []search.Place) ([]models.Candidate, []eliminatedCandidate) {
	var allowed []models.Candidate
	var eliminated []eliminatedCandidate
	seen := make(map[string]struct{})

	limit := len(places)
	if rs.cfg.ResultLimit > 0 && rs.cfg.ResultLimit < limit {
		limit = rs.cfg.ResultLimit
	}

	for _, p := range places[:limit] {
		cand := models.Candidate{
			Name:       p.Title,
			Address:    p.Address,
			Lat:        p.Latitude,
			Lon:        p.Longitude,
			Website:    p.Website,
			PostalCode: normalizer.ExtractPostal(p.Address),
			Category:   strings.TrimSpace(p.Category),
			ExternalID: strings.TrimSpace(p.CID),
			Rating:     p.Rating,
			Reviews:    p.RatingCount,
			InputIndex: index,
		}

		identity := cand.Identity(rs.normalizer.Normalize)
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}

		if !rs.plausibleRegion(cand) {
			// Not even worth auditing: a different country entirely.
			continue
		}

		if rs.cfg.MinReviews > 0 && cand.Reviews < rs.cfg.MinReviews {
			eliminated = append(eliminated, eliminatedCandidate{cand, fmt.Sprintf("reviews below %d", rs.cfg.MinReviews)})
			continue
		}

		if rs.classifier.Classify(cand.Category) == matcher.Allowed {
			allowed = append(allowed, cand)
		} else {
			eliminated = append(eliminated, eliminatedCandidate{cand, "category not allowlisted"})
		}
	}
	return allowed, eliminated
}

var digitsPostal = regexp.MustCompile(`\b\d{6}\b`)

// plausibleRegion drops candidates outside the configured bounding box unless
// their address carries a region token or a postal code.
func (rs *ResolverService) plausibleRegion(cand models.Candidate) bool {
	if rs.cfg.Region.Contains(cand.Lat, cand.Lon) {
		return true
	}
	addr := strings.ToLower(cand.Address)
	for _, tok := range rs.cfg.RegionTokens {
		if strings.Contains(addr, strings.ToLower(tok)) {
			return true
		}
	}
	return digitsPostal.MatchString(addr)
}

// shortlist keeps the nearest-N allowed candidates to bound scoring cost.
func (rs *ResolverService) shortlist(lat, lon float64, allowed []models.Candidate) []models.Candidate {
	sorted := append([]models.Candidate{}, allowed...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return matcher.HaversineKm(lat, lon, sorted[i].Lat, sorted[i].Lon) <
			matcher.HaversineKm(lat, lon, sorted[j].Lat, sorted[j].Lon)
	})
	if rs.cfg.ShortlistSize > 0 && len(sorted) > rs.cfg.ShortlistSize {
		sorted = sorted[:rs.cfg.ShortlistSize]
	}
	return sorted
}

// selectBest scores the shortlist and picks the winner. A hard override
// short-circuits. Ties break on review count, then category rank, then
// rating.
func (rs *ResolverService) selectBest(rec models.InputRecord, lat, lon float64, shortlist []models.Candidate) (*models.ScoredCandidate, float64) {
	in := matcher.ScoreInput{
		FacilityName:  rec.FacilityName,
		TaggedAddress: rec.TaggedAddress,
		PostalCode:    rec.PostalCode,
		Lat:           lat,
		Lon:           lon,
	}

	var best *models.ScoredCandidate
	for _, cand := range shortlist {
		scored := rs.scorer.Score(in, cand)
		if scored.Breakdown.Override {
			rs.logger.Debug("hard override",
				zap.Int("index", rec.Index),
				zap.String("candidate", cand.Name))
			return &scored, scored.Score
		}
		if best == nil || scored.Score > best.Score ||
			(scored.Score == best.Score && rs.tieBreakWins(scored.Candidate, best.Candidate)) {
			s := scored
			best = &s
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, best.Score
}

func (rs *ResolverService) tieBreakWins(a, b models.Candidate) bool {
	if a.Reviews != b.Reviews {
		return a.Reviews > b.Reviews
	}
	ra, rb := rs.classifier.Rank(a.Category), rs.classifier.Rank(b.Category)
	if ra != rb {
		return ra < rb
	}
	return a.Rating > b.Rating
}

// emit writes the three outputs for one record: ledger-gated allowed rows to
// primary, eliminated rows to audit, and exactly one result row - populated
// when matched, blank otherwise.
func (rs *ResolverService) emit(ctx context.Context, rec models.InputRecord, inputHeaders []string,
	allowed []models.Candidate, eliminated []eliminatedCandidate,
	best *models.ScoredCandidate, bestScore float64, matched bool) {

	for _, cand := range allowed {
		fresh, err := rs.ledger.IsNew(ctx, cand.Identity(rs.normalizer.Normalize))
		if err != nil {
			rs.logger.Warn("ledger check failed, skipping primary row",
				zap.Error(err), zap.Int("index", rec.Index))
			continue
		}
		if !fresh {
			continue
		}
		if err := rs.primary.Append(candidateRow(cand)); err != nil {
			rs.logger.Warn("primary sink append failed", zap.Error(err), zap.Int("index", rec.Index))
		}
	}

	for _, e := range eliminated {
		row := append(candidateRow(e.candidate), e.reason)
		if err := rs.audit.Append(row); err != nil {
			rs.logger.Warn("audit sink append failed", zap.Error(err), zap.Int("index", rec.Index))
		}
	}

	var row []string
	if matched {
		row = resultRow(rec, inputHeaders, &best.Candidate, strconv.FormatFloat(bestScore, 'f', 2, 64))
	} else {
		row = resultRow(rec, inputHeaders, nil, "")
	}
	if err := rs.result.Append(row); err != nil {
		rs.logger.Warn("result sink append failed", zap.Error(err), zap.Int("index", rec.Index))
	}
}

// recordFailure logs the error into the checkpoint's error list and still
// writes the record's blank result row, keeping result rows one-to-one with
// input rows.
func (rs *ResolverService) recordFailure(rec models.InputRecord, inputHeaders []string, message string) {
	rs.logger.Warn("record failed",
		zap.Int("index", rec.Index),
		zap.String("error", message))
	if err := rs.checkpoint.LogError(rec.Index, message); err != nil {
		rs.logger.Error("checkpoint error log failed", zap.Error(err))
	}
	if err := rs.result.Append(resultRow(rec, inputHeaders, nil, "")); err != nil {
		rs.logger.Warn("result sink append failed", zap.Error(err), zap.Int("index", rec.Index))
	}
}

func candidateRow(c models.Candidate) []string {
	return []string{
		c.Name,
		c.Address,
		formatFloat(c.Lat),
		formatFloat(c.Lon),
		c.Website,
		c.PostalCode,
		c.Category,
		c.ExternalID,
		strconv.Itoa(c.InputIndex),
		formatFloat(c.Rating),
		strconv.Itoa(c.Reviews),
	}
}

func resultRow(rec models.InputRecord, inputHeaders []string, match *models.Candidate, score string) []string {
	row := make([]string, 0, len(inputHeaders)+len(sink.PrimaryColumns)+1)
	for _, h := range inputHeaders {
		row = append(row, rec.Extra[h])
	}
	if match != nil {
		row = append(row, candidateRow(*match)...)
	} else {
		for range sink.PrimaryColumns {
			row = append(row, "")
		}
	}
	return append(row, score)
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
