// Package service wires the pipeline stages together: resolved
// provider records flow through a sharded integration pool into the
// merged stores, then features, contribution attribution, and
// validation run over the merged state.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	ingestqueue "github.com/okian/harpastum/internal/adapters/mq/queue"
	workerpool "github.com/okian/harpastum/internal/adapters/mq/worker"
	"github.com/okian/harpastum/internal/adapters/provider"
	"github.com/okian/harpastum/internal/adapters/repository"
	"github.com/okian/harpastum/internal/domain/feature"
	"github.com/okian/harpastum/internal/domain/integrate"
	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/internal/domain/resolve"
	"github.com/okian/harpastum/internal/domain/shapley"
	"github.com/okian/harpastum/internal/domain/validate"
	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

// Points awarded per match outcome.
const (
	pointsWin  = 3.0
	pointsDraw = 1.0
	pointsLoss = 0.0
)

const shutdownTimeout = 30 * time.Second

// Source produces provider records for one run.
type Source interface {
	Records(ctx context.Context) <-chan model.ProviderRecord
}

// Report summarizes one batch run.
type Report struct {
	Processed     int
	Merged        int
	Rejected      int
	Warnings      int
	ScoresEmitted int
	Requests      int64
	Duration      time.Duration
}

// Service runs the statistics pipeline end to end.
type Service struct {
	queueSize         int
	workerCount       int
	expectedProviders int
	exactThreshold    int

	resolver   *resolve.Registry
	integrator *integrate.Integrator
	normalizer *feature.Normalizer
	estimator  *shapley.Estimator
	validator  *validate.Validator

	matches repository.MatchStore
	stats   repository.StatStore
	scores  repository.ScoreStore

	counter *provider.Counter

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize sets the ingest queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of integration workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithExpectedProviders sets how many providers must report before a
// match record is finalized.
func WithExpectedProviders(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.expectedProviders = n
		}
	}
}

// WithExactThreshold sets the roster size up to which contribution
// runs count as exact for validation purposes. Keep it in step with
// the estimator's own threshold.
func WithExactThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.exactThreshold = n
		}
	}
}

// WithResolver sets the entity resolver.
func WithResolver(r *resolve.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithIntegrator sets the record integrator.
func WithIntegrator(g *integrate.Integrator) Option {
	return func(s *Service) {
		if g != nil {
			s.integrator = g
		}
	}
}

// WithNormalizer sets the feature normalizer.
func WithNormalizer(n *feature.Normalizer) Option {
	return func(s *Service) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// WithEstimator sets the contribution estimator.
func WithEstimator(e *shapley.Estimator) Option {
	return func(s *Service) {
		if e != nil {
			s.estimator = e
		}
	}
}

// WithValidator sets the quality validator.
func WithValidator(v *validate.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithStores sets the match, stat, and score stores.
func WithStores(matches repository.MatchStore, stats repository.StatStore, scores repository.ScoreStore) Option {
	return func(s *Service) {
		if matches != nil {
			s.matches = matches
		}
		if stats != nil {
			s.stats = stats
		}
		if scores != nil {
			s.scores = scores
		}
	}
}

// WithRequestCounter reports the fetcher's request spend in the run
// summary.
func WithRequestCounter(c *provider.Counter) Option {
	return func(s *Service) {
		if c != nil {
			s.counter = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default components.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:         100_000,
		workerCount:       runtime.NumCPU(),
		expectedProviders: 2,
		exactThreshold:    12,
		resolver:          resolve.NewRegistry(),
		integrator:        integrate.New(),
		normalizer:        feature.New(),
		estimator:         shapley.New(),
		validator:         validate.New(),
		matches:           repository.NewMatchStore(),
		stats:             repository.NewStatStore(),
		scores:            repository.NewScoreStore(),
		logger:            logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Matches exposes the merged match store.
func (s *Service) Matches() repository.MatchStore { return s.matches }

// Stats exposes the merged stat store.
func (s *Service) Stats() repository.StatStore { return s.stats }

// Scores exposes the contribution score store.
func (s *Service) Scores() repository.ScoreStore { return s.scores }

// Resolver exposes the entity registry.
func (s *Service) Resolver() *resolve.Registry { return s.resolver }

// Run executes a full batch: ingest and integrate every record the
// source yields, then finalize, screen, normalize, attribute, and
// persist contribution scores. Individual record failures are logged
// and counted; they never abort the run.
func (s *Service) Run(ctx context.Context, src Source) (*Report, error) {
	start := time.Now()
	report := &Report{}

	ap := &applier{
		matches:    s.matches,
		stats:      s.stats,
		integrator: s.integrator,
		validator:  s.validator,
	}
	q := ingestqueue.NewInMemoryQueue(ingestqueue.WithCapacity(s.queueSize))
	pool := workerpool.NewPool(q, ap, workerpool.WithWorkers(s.workerCount), workerpool.WithLogger(s.logger))
	pool.Start(ctx)

	for rec := range src.Records(ctx) {
		report.Processed++
		if err := s.resolveRecord(ctx, &rec); err != nil {
			report.Rejected++
			metrics.RecordRecordDropped("unresolved")
			s.logger.Warn(ctx, "record skipped, unresolved entity",
				logger.String("provider", rec.Provider),
				logger.Error(err),
			)
			continue
		}
		if !q.Enqueue(ctx, rec) {
			report.Rejected++
			s.logger.Warn(ctx, "record shed, ingest queue full",
				logger.String("provider", rec.Provider),
			)
		}
	}
	if err := q.Close(); err != nil {
		return report, fmt.Errorf("closing ingest queue: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pool.Shutdown(sctx); err != nil {
		return report, fmt.Errorf("draining integration pool: %w", err)
	}
	report.Rejected += int(ap.rejected.Load())

	s.finalize(ctx)
	s.screen(ctx, report)
	report.Merged = s.matches.Count(ctx) + s.stats.Count(ctx)

	s.normalizeFeatures(ctx, report)
	s.attribute(ctx, report)

	report.Warnings += s.recordWarnings(ctx)
	if s.counter != nil {
		report.Requests = s.counter.Total()
	}
	report.Duration = time.Since(start)

	s.logger.Info(ctx, "run complete",
		logger.Int("processed", report.Processed),
		logger.Int("merged", report.Merged),
		logger.Int("rejected", report.Rejected),
		logger.Int("warnings", report.Warnings),
		logger.Int("scores", report.ScoresEmitted),
		logger.Int64("requests", report.Requests),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

// resolveRecord fills the record's canonical IDs in place so the
// integration pool can shard by match key.
func (s *Service) resolveRecord(ctx context.Context, rec *model.ProviderRecord) error {
	switch rec.Kind {
	case model.KindMatch:
		md := rec.Match
		home, err := s.resolver.Resolve(ctx, rec.Provider, md.HomeID, md.HomeName, model.EntityTeam)
		if err != nil {
			return fmt.Errorf("home team: %w", err)
		}
		away, err := s.resolver.Resolve(ctx, rec.Provider, md.AwayID, md.AwayName, model.EntityTeam)
		if err != nil {
			return fmt.Errorf("away team: %w", err)
		}
		md.Home, md.Away = home, away
		return nil

	case model.KindStat:
		sl := rec.Stat
		home, err := s.resolver.Resolve(ctx, rec.Provider, sl.HomeID, sl.HomeName, model.EntityTeam)
		if err != nil {
			return fmt.Errorf("home team: %w", err)
		}
		away, err := s.resolver.Resolve(ctx, rec.Provider, sl.AwayID, sl.AwayName, model.EntityTeam)
		if err != nil {
			return fmt.Errorf("away team: %w", err)
		}
		team, err := s.resolver.Resolve(ctx, rec.Provider, sl.TeamID, sl.TeamName, model.EntityTeam)
		if err != nil {
			return fmt.Errorf("team: %w", err)
		}
		player, err := s.resolver.Resolve(ctx, rec.Provider, sl.PlayerID, sl.PlayerName, model.EntityPlayer)
		if err != nil {
			return fmt.Errorf("player: %w", err)
		}
		sl.Home, sl.Away, sl.Team, sl.Player = home, away, team, player
		return nil

	default:
		return fmt.Errorf("record kind %q: %w", rec.Kind, integrate.ErrKindMismatch)
	}
}

// finalize seals match records once every expected provider reported.
func (s *Service) finalize(ctx context.Context) {
	for _, m := range s.matches.All(ctx) {
		s.integrator.Finalize(m, s.expectedProviders)
	}
	metrics.UpdateCanonicalEntities(s.resolver.Count())
}

// screen runs the batch outlier screen over every merged stat line.
func (s *Service) screen(ctx context.Context, report *Report) {
	var batch []model.PlayerMatchStat
	for _, m := range s.matches.All(ctx) {
		for _, line := range s.stats.ByMatch(ctx, m.Key) {
			batch = append(batch, *line)
		}
	}
	issues := s.validator.ScreenMetrics(batch)
	report.Warnings += len(issues)
	for _, issue := range issues {
		s.logger.Warn(ctx, "batch screen finding",
			logger.String("rule", issue.Rule),
			logger.String("detail", issue.Detail),
		)
	}
}

// normalizeFeatures builds and checks per-match feature vectors.
func (s *Service) normalizeFeatures(ctx context.Context, report *Report) {
	for _, m := range s.matches.All(ctx) {
		for _, line := range s.stats.ByMatch(ctx, m.Key) {
			fv := s.normalizer.Build(*line, line.Position)
			if res := s.validator.Vector(fv); res.Status != validate.StatusPass {
				report.Warnings += len(res.Issues)
				s.logger.Warn(ctx, "feature vector flagged",
					logger.String("player", fv.Player),
					logger.String("context", fv.ContextID),
					logger.Int("issues", len(res.Issues)),
				)
			}
		}
	}
}

// attribute runs one contribution estimate per team-season coalition
// and persists the validated scores.
func (s *Service) attribute(ctx context.Context, report *Report) {
	for _, tc := range s.teamContexts(ctx) {
		game := shapley.Game{
			ContextID: tc.contextID,
			Players:   tc.players,
			Value:     shapley.ExpectedPoints(tc.history),
		}
		scores, err := s.estimator.Estimate(ctx, game)
		if err != nil {
			report.Rejected++
			s.logger.Error(ctx, "contribution estimate failed",
				logger.String("context", tc.contextID),
				logger.Error(err),
			)
			continue
		}

		grand, _ := game.Value(game.Players)
		exact := len(game.Players) <= s.exactThreshold
		res := s.validator.Scores(scores, grand, exact)
		if res.Err() != nil {
			report.Rejected++
			s.logger.Error(ctx, "contribution run failed validation",
				logger.String("context", tc.contextID),
				logger.Int("issues", len(res.Issues)),
			)
			continue
		}
		report.Warnings += len(res.Issues)

		if err := s.scores.Append(ctx, scores); err != nil {
			report.Rejected++
			s.logger.Error(ctx, "persisting contribution run",
				logger.String("context", tc.contextID),
				logger.Error(err),
			)
			continue
		}
		report.ScoresEmitted += len(scores)
	}
}

// teamContext is one coalition to attribute: a team's season roster
// plus its observed lineup outcomes.
type teamContext struct {
	contextID string
	players   []string
	history   []shapley.LineupOutcome
}

// teamContexts derives one coalition per team from the merged state.
// The lineup of a match is every player who took the pitch; the points
// follow the merged final score.
func (s *Service) teamContexts(ctx context.Context) []teamContext {
	type teamAgg struct {
		season  string
		players map[string]bool
		history []shapley.LineupOutcome
	}
	teams := make(map[string]*teamAgg)

	for _, m := range s.matches.All(ctx) {
		lineups := make(map[string][]string)
		for _, line := range s.stats.ByMatch(ctx, m.Key) {
			if line.Minutes() <= 0 {
				continue
			}
			lineups[line.Team] = append(lineups[line.Team], line.Player)
		}

		for _, teamID := range []string{m.Home, m.Away} {
			lineup := lineups[teamID]
			if len(lineup) == 0 {
				continue
			}
			agg, ok := teams[teamID]
			if !ok {
				agg = &teamAgg{season: m.Season, players: make(map[string]bool)}
				teams[teamID] = agg
			}
			for _, p := range lineup {
				agg.players[p] = true
			}
			agg.history = append(agg.history, shapley.LineupOutcome{
				Players: lineup,
				Points:  teamPoints(m, teamID),
			})
		}
	}

	ids := make([]string, 0, len(teams))
	for id := range teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]teamContext, 0, len(ids))
	for _, id := range ids {
		agg := teams[id]
		players := make([]string, 0, len(agg.players))
		for p := range agg.players {
			players = append(players, p)
		}
		sort.Strings(players)
		out = append(out, teamContext{
			contextID: id + "|" + agg.season,
			players:   players,
			history:   agg.history,
		})
	}
	return out
}

func teamPoints(m *model.MatchRecord, teamID string) float64 {
	home, away := m.HomeScore(), m.AwayScore()
	switch {
	case home == away:
		return pointsDraw
	case (teamID == m.Home) == (home > away):
		return pointsWin
	default:
		return pointsLoss
	}
}

// recordWarnings totals the consistency warnings carried on merged
// records.
func (s *Service) recordWarnings(ctx context.Context) int {
	total := 0
	for _, m := range s.matches.All(ctx) {
		total += len(m.Warnings)
		for _, line := range s.stats.ByMatch(ctx, m.Key) {
			total += len(line.Warnings)
		}
	}
	return total
}

// applier integrates one resolved record into the merged stores. The
// worker pool guarantees a single writer per match key, so the
// get-merge-upsert sequence needs no locking of its own.
type applier struct {
	matches    repository.MatchStore
	stats      repository.StatStore
	integrator *integrate.Integrator
	validator  *validate.Validator

	rejected atomic.Int64
}

func (a *applier) Apply(ctx context.Context, rec model.ProviderRecord) error {
	switch rec.Kind {
	case model.KindMatch:
		key := model.MatchKey(rec.Match.Date, rec.Match.Home, rec.Match.Away)
		existing, err := a.matches.Get(ctx, key)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		merged, err := a.integrator.Match(ctx, existing, rec)
		if err != nil {
			return err
		}
		return a.matches.Upsert(ctx, merged)

	case model.KindStat:
		key := model.MatchKey(rec.Stat.Date, rec.Stat.Home, rec.Stat.Away)
		existing, err := a.stats.Get(ctx, key, rec.Stat.Player)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		merged, err := a.integrator.Stat(ctx, existing, rec)
		if err != nil {
			return err
		}
		res := a.validator.Stat(*merged)
		if res.Err() != nil {
			// A hard failure blocks persistence of the merged line.
			a.rejected.Add(1)
			metrics.RecordRecordDropped("validation")
			return fmt.Errorf("stat %s/%s: %w", key, rec.Stat.Player, res.Err())
		}
		// Soft findings ride along on the stored line for later audit.
		attachIssues(merged, res.Issues)
		return a.stats.Upsert(ctx, merged)

	default:
		return fmt.Errorf("record kind %q: %w", rec.Kind, integrate.ErrKindMismatch)
	}
}

// attachIssues copies soft validation findings onto the merged line.
// Re-merging the same inputs regenerates the same findings, so
// duplicates are skipped to keep integration idempotent.
func attachIssues(merged *model.PlayerMatchStat, issues []validate.Issue) {
	for _, is := range issues {
		w := model.Warning{Kind: is.Rule, Field: is.Field, Detail: is.Detail}
		if hasWarning(merged.Warnings, w) {
			continue
		}
		merged.Warnings = append(merged.Warnings, w)
	}
}

func hasWarning(warnings []model.Warning, w model.Warning) bool {
	for _, have := range warnings {
		if have == w {
			return true
		}
	}
	return false
}
