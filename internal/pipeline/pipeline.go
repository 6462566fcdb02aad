package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/forecast"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
)

// AllUsers is the manual-trigger selector for every active user.
const AllUsers = "all"

// Trigger labels what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Outcome is the settled state of one user task.
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeRejected  Outcome = "rejected"
)

// PreferencesStore reads notification preferences.
type PreferencesStore interface {
	// ListEnabledPreferences returns every preference record with enabled set.
	ListEnabledPreferences(ctx context.Context) ([]domain.NotificationPreferences, error)
	GetPreferences(ctx context.Context, userID string) (domain.NotificationPreferences, bool, error)
}

// RiverResolver maps a river id to its forecast-source reach.
type RiverResolver interface {
	Resolve(ctx context.Context, riverID string) domain.RiverRef
}

// ThresholdSource resolves return-period thresholds for a river.
type ThresholdSource interface {
	Get(ctx context.Context, riverID string) (domain.ThresholdTable, bool)
}

// ForecastSource resolves forecast series for a river.
type ForecastSource interface {
	Get(ctx context.Context, riverID, externalID string) (forecast.Series, bool)
}

// AlertDispatcher delivers and records one alert.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert domain.Alert) bool
}

// Deps are the collaborators a Pipeline composes.
type Deps struct {
	Preferences PreferencesStore
	Resolver    RiverResolver
	Thresholds  ThresholdSource
	Forecasts   ForecastSource
	Dedup       *DedupGuard
	Dispatcher  AlertDispatcher
}

// UserResult is the settled result of one user task.
type UserResult struct {
	UserID        string  `json:"userId"`
	Outcome       Outcome `json:"outcome"`
	AlertsSent    int     `json:"alertsSent"`
	AlertsFailed  int     `json:"alertsFailed"`
	Suppressed    int     `json:"suppressed"`
	RiversSkipped int     `json:"riversSkipped"`
	Error         string  `json:"error,omitempty"`
}

// RunResult is the aggregate tally of a run.
type RunResult struct {
	RunID          string       `json:"runId"`
	Trigger        Trigger      `json:"trigger"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     time.Time    `json:"finishedAt"`
	UsersProcessed int          `json:"usersProcessed"`
	PerUserOutcome []Outcome    `json:"perUserOutcome"`
	Results        []UserResult `json:"results"`
}

// Rejected counts user tasks that failed.
func (r RunResult) Rejected() int {
	n := 0
	for _, o := range r.PerUserOutcome {
		if o == OutcomeRejected {
			n++
		}
	}
	return n
}

// Pipeline evaluates forecasts against thresholds for every eligible user
// and dispatches the resulting alerts. Runs share no state with each other
// beyond the persistent store.
type Pipeline struct {
	deps        Deps
	concurrency int
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	lastRun     atomic.Pointer[RunResult]
}

// New creates a Pipeline. concurrency bounds the number of user tasks in flight.
func New(deps Deps, concurrency int, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{
		deps:        deps,
		concurrency: concurrency,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// LastRun returns the most recent completed run, if any.
func (p *Pipeline) LastRun() (RunResult, bool) {
	r := p.lastRun.Load()
	if r == nil {
		return RunResult{}, false
	}
	return *r, true
}

// Run evaluates every active user. It returns an error only when the active
// users cannot be enumerated; individual user failures are reported in the result.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	return p.run(ctx, TriggerScheduled, p.selectActive)
}

// RunForUser evaluates one user, or every active user when userID is AllUsers.
// A single user goes through the same eligibility checks as a scheduled run;
// an unknown or ineligible user yields a result with no users processed.
func (p *Pipeline) RunForUser(ctx context.Context, userID string) (RunResult, error) {
	if userID == "" {
		return RunResult{}, errors.New("user id is required")
	}
	if userID == AllUsers {
		return p.run(ctx, TriggerManual, p.selectActive)
	}
	return p.run(ctx, TriggerManual, func(ctx context.Context, now time.Time) ([]domain.NotificationPreferences, error) {
		prefs, found, err := p.deps.Preferences.GetPreferences(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get preferences for %s: %w", userID, err)
		}
		if !found || !eligible(prefs, now) {
			return nil, nil
		}
		return []domain.NotificationPreferences{prefs}, nil
	})
}

type selector func(ctx context.Context, now time.Time) ([]domain.NotificationPreferences, error)

func (p *Pipeline) selectActive(ctx context.Context, now time.Time) ([]domain.NotificationPreferences, error) {
	all, err := p.deps.Preferences.ListEnabledPreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled preferences: %w", err)
	}
	selected := make([]domain.NotificationPreferences, 0, len(all))
	for _, prefs := range all {
		if eligible(prefs, now) {
			selected = append(selected, prefs)
		}
	}
	return selected, nil
}

func eligible(prefs domain.NotificationPreferences, now time.Time) bool {
	return prefs.Active() && !domain.IsSuppressed(prefs, now)
}

func (p *Pipeline) run(ctx context.Context, trigger Trigger, selectUsers selector) (RunResult, error) {
	start := p.clock.Now()
	result := RunResult{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: start,
	}
	log := p.logger.With("run_id", result.RunID, "trigger", trigger)

	p.metrics.RunActive.Inc()
	defer p.metrics.RunActive.Dec()

	users, err := selectUsers(ctx, start)
	if err != nil {
		p.metrics.Runs.WithLabelValues(string(trigger), "failed").Inc()
		log.Error("run aborted", "error", err)
		return result, err
	}
	log.Info("run started", "users", len(users))

	memo := newRiverMemo(p.loadRiver)
	results := make([]UserResult, len(users))

	// Tasks never return an error: a failure settles as a rejected result
	// and must not cancel siblings.
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, prefs := range users {
		g.Go(func() error {
			results[i] = p.settle(ctx, prefs, memo, start)
			return nil
		})
	}
	_ = g.Wait()

	result.FinishedAt = p.clock.Now()
	result.UsersProcessed = len(users)
	result.Results = results
	result.PerUserOutcome = make([]Outcome, len(results))
	for i, r := range results {
		result.PerUserOutcome[i] = r.Outcome
		p.metrics.UserTasks.WithLabelValues(string(r.Outcome)).Inc()
	}

	p.metrics.Runs.WithLabelValues(string(trigger), "completed").Inc()
	p.metrics.RunDuration.Observe(result.FinishedAt.Sub(start).Seconds())
	p.lastRun.Store(&result)

	log.Info("run completed",
		"users_processed", result.UsersProcessed,
		"rejected", result.Rejected(),
		"duration", result.FinishedAt.Sub(start),
	)
	return result, nil
}

// settle runs one user task and converts errors and panics into a rejected result.
func (p *Pipeline) settle(ctx context.Context, prefs domain.NotificationPreferences, memo *riverMemo, now time.Time) (res UserResult) {
	res = UserResult{UserID: prefs.UserID}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeRejected
			res.Error = fmt.Sprintf("panic: %v", r)
			p.logger.Error("user task panicked",
				"user_id", prefs.UserID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := p.processUser(ctx, prefs, memo, now, &res); err != nil {
		res.Outcome = OutcomeRejected
		res.Error = err.Error()
		p.logger.Error("user task failed", "user_id", prefs.UserID, "error", err)
		return res
	}
	res.Outcome = OutcomeFulfilled
	return res
}

type dispatchKey struct {
	riverID      string
	returnPeriod int
}

func (p *Pipeline) processUser(ctx context.Context, prefs domain.NotificationPreferences, memo *riverMemo, now time.Time, res *UserResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := p.logger.With("user_id", prefs.UserID)
	ranges := prefs.Ranges()
	dispatched := make(map[dispatchKey]bool)
	seen := make(map[string]bool, len(prefs.MonitoredRiverIDs))

	for _, riverID := range prefs.MonitoredRiverIDs {
		if riverID == "" || seen[riverID] {
			continue
		}
		seen[riverID] = true

		data := memo.get(ctx, riverID)
		if !data.ok {
			res.RiversSkipped++
			continue
		}

		for _, point := range data.series.Points(ranges) {
			m, ok := domain.MatchFlow(point, data.thresholds)
			if !ok {
				continue
			}

			key := dispatchKey{riverID: riverID, returnPeriod: m.ReturnPeriod}
			if dispatched[key] {
				p.metrics.AlertsSuppressed.WithLabelValues("repeat_in_run").Inc()
				res.Suppressed++
				continue
			}

			dup, err := p.deps.Dedup.IsDuplicate(ctx, prefs.UserID, riverID, m.ReturnPeriod)
			if err != nil {
				log.Warn("dedup check failed, skipping river", "river_id", riverID, "error", err)
				res.RiversSkipped++
				break
			}
			if dup {
				dispatched[key] = true
				p.metrics.AlertsSuppressed.WithLabelValues("duplicate").Inc()
				res.Suppressed++
				continue
			}

			alert := domain.NewAlert(prefs, data.ref, point, m, now)
			dispatched[key] = true
			if p.deps.Dispatcher.Dispatch(ctx, alert) {
				res.AlertsSent++
			} else {
				res.AlertsFailed++
			}
		}
	}
	return nil
}

// loadRiver resolves the reach, thresholds and forecasts for one river.
// Forecasts are only fetched when thresholds exist.
func (p *Pipeline) loadRiver(ctx context.Context, riverID string) riverData {
	ref := p.deps.Resolver.Resolve(ctx, riverID)
	data := riverData{ref: ref}

	table, ok := p.deps.Thresholds.Get(ctx, riverID)
	if !ok {
		p.logger.Debug("river skipped, no thresholds", "river_id", riverID)
		return data
	}
	data.thresholds = table

	series, ok := p.deps.Forecasts.Get(ctx, riverID, ref.ExternalID)
	if !ok {
		p.logger.Debug("river skipped, no forecast", "river_id", riverID, "external_id", ref.ExternalID)
		return data
	}
	data.series = series
	data.ok = true
	return data
}
