// Package scheduler runs the background side of the orchestrator: periodic
// loops that scan the session store for wait-states, poll the remote service,
// drive state machine transitions, and push notifications. Each loop has its
// own cadence and failure isolation; a broken iteration backs the loop off
// without affecting the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/repoinsight-dev/repoinsight/internal/notify"
	"github.com/repoinsight-dev/repoinsight/internal/remote"
	"github.com/repoinsight-dev/repoinsight/internal/workflow"
	"github.com/repoinsight-dev/repoinsight/pkg/observability"
	"github.com/repoinsight-dev/repoinsight/pkg/session"
)

// TaskPoller is the slice of the remote client the scheduler needs.
type TaskPoller interface {
	AnalysisStatus(ctx context.Context, sessionID string) (remote.AnalysisReport, error)
	QueryStatus(ctx context.Context, taskID string) (remote.QueryReport, error)
	QueryResult(ctx context.Context, taskID string) (string, error)
}

// Config holds scheduler cadences.
type Config struct {
	// AnalysisInterval is the cadence of the analysis-status loop (default 10s).
	AnalysisInterval time.Duration
	// QueryInterval is the cadence of the query-result loop (default 5s).
	QueryInterval time.Duration
	// EvictionInterval is the cadence of the eviction sweep (default 1h).
	EvictionInterval time.Duration
	// InactivityThreshold evicts sessions idle longer than this (default 24h).
	InactivityThreshold time.Duration
	// FailureBackoff is the longer sleep after a failed scan (default 30s).
	FailureBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = 10 * time.Second
	}
	if c.QueryInterval <= 0 {
		c.QueryInterval = 5 * time.Second
	}
	if c.EvictionInterval <= 0 {
		c.EvictionInterval = time.Hour
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = 24 * time.Hour
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 30 * time.Second
	}
}

// Scheduler owns the three background loops.
type Scheduler struct {
	cfg      Config
	store    session.Store
	locks    *session.KeyedMutex
	tasks    TaskPoller
	notifier notify.Notifier
}

// New creates a scheduler. The keyed mutex must be shared with the router so
// poll-tick transitions cannot race inbound handling for the same user.
func New(cfg Config, store session.Store, locks *session.KeyedMutex, tasks TaskPoller, notifier notify.Notifier) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{cfg: cfg, store: store, locks: locks, tasks: tasks, notifier: notifier}
}

// Run starts all loops and blocks until ctx is cancelled. The caller closes
// the remote client after Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.loop(gctx, "analysis", s.cfg.AnalysisInterval, s.pollAnalysisOnce)
		return nil
	})
	g.Go(func() error {
		s.loop(gctx, "query", s.cfg.QueryInterval, s.pollQueriesOnce)
		return nil
	})

	// The eviction sweep has no backoff requirement; a cron job on a fixed
	// cadence is enough.
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.EvictionInterval), func() {
		if err := s.evictOnce(gctx); err != nil {
			log.Printf("[SCHED] eviction sweep: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule eviction sweep: %w", err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	log.Printf("[SCHED] started (analysis=%s query=%s eviction=%s)",
		s.cfg.AnalysisInterval, s.cfg.QueryInterval, s.cfg.EvictionInterval)
	return g.Wait()
}

// loop runs fn on a fixed cadence, switching to the failure backoff after a
// failed iteration. A panic in one iteration is contained to that iteration.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := interval
		if err := s.iterate(ctx, name, fn); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("[SCHED] %s loop: %v (backing off %s)", name, err, s.cfg.FailureBackoff)
			observability.CountPollTick(name, "error")
			next = s.cfg.FailureBackoff
		} else {
			observability.CountPollTick(name, "ok")
		}
		timer.Reset(next)
	}
}

func (s *Scheduler) iterate(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s loop: %v", name, r)
		}
	}()
	return fn(ctx)
}

// pollAnalysisOnce scans every session waiting on an analysis job and applies
// the resulting transition. A transport failure for one user is logged and the
// scan continues; only a failed scan itself backs the loop off.
func (s *Scheduler) pollAnalysisOnce(ctx context.Context) error {
	sessions, err := s.store.ListByState(ctx, session.StateAnalyzing)
	if err != nil {
		return fmt.Errorf("scan analyzing sessions: %w", err)
	}

	for _, sess := range sessions {
		if sess.AnalysisSessionID == "" {
			continue
		}
		rep, err := s.tasks.AnalysisStatus(ctx, sess.AnalysisSessionID)
		if err != nil {
			// Retryable next tick.
			log.Printf("[SCHED] poll analysis for %s: %v", sess.UserID, err)
			continue
		}

		var ev workflow.Event
		switch rep.Status {
		case remote.AnalysisSuccess:
			ev = workflow.Event{Kind: workflow.EventAnalysisSucceeded}
		case remote.AnalysisFailed:
			ev = workflow.Event{Kind: workflow.EventAnalysisFailed, Err: rep.Error}
		case remote.AnalysisCancelled:
			ev = workflow.Event{Kind: workflow.EventAnalysisCancelled}
		default:
			continue
		}

		s.applyUnderLock(ctx, sess.UserID, ev, func(cur *session.Session) bool {
			return cur.AnalysisSessionID == sess.AnalysisSessionID
		})
	}
	return nil
}

// pollQueriesOnce scans every session waiting on an answer. The result payload
// is fetched in a separate call, and only after the status reports success.
func (s *Scheduler) pollQueriesOnce(ctx context.Context) error {
	sessions, err := s.store.ListByState(ctx, session.StateWaitingForAnswer)
	if err != nil {
		return fmt.Errorf("scan waiting sessions: %w", err)
	}

	for _, sess := range sessions {
		if sess.QueryTaskID == "" {
			continue
		}
		rep, err := s.tasks.QueryStatus(ctx, sess.QueryTaskID)
		if err != nil {
			log.Printf("[SCHED] poll query for %s: %v", sess.UserID, err)
			continue
		}

		var ev workflow.Event
		switch rep.Status {
		case remote.QuerySuccess:
			answer, err := s.tasks.QueryResult(ctx, sess.QueryTaskID)
			if err != nil {
				// The answer is still there next tick; the status call will
				// report success again.
				log.Printf("[SCHED] fetch result for %s: %v", sess.UserID, err)
				continue
			}
			ev = workflow.Event{Kind: workflow.EventAnswerReady, Answer: answer}
		case remote.QueryFailure:
			ev = workflow.Event{Kind: workflow.EventQueryFailed, Err: rep.Error}
		case remote.QueryRevoked:
			ev = workflow.Event{Kind: workflow.EventQueryRevoked}
		default:
			continue
		}

		s.applyUnderLock(ctx, sess.UserID, ev, func(cur *session.Session) bool {
			return cur.QueryTaskID == sess.QueryTaskID
		})
	}
	return nil
}

// applyUnderLock re-reads the session under the user's lock, verifies the poll
// result still belongs to the stored job, applies the transition, persists and
// notifies. Notification failure never rolls the committed transition back.
func (s *Scheduler) applyUnderLock(ctx context.Context, userID string, ev workflow.Event, still func(*session.Session) bool) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	cur, err := s.store.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			log.Printf("[SCHED] reload session for %s: %v", userID, err)
		}
		return
	}
	if !still(cur) {
		// The user moved on (new job, /exit) between scan and lock; this
		// completion is stale.
		return
	}

	out := workflow.Apply(cur, ev)
	if !out.Changed {
		return
	}
	cur.Touch()

	if err := s.store.Put(ctx, cur); err != nil {
		log.Printf("[SCHED] save session for %s: %v", userID, err)
		return
	}
	observability.CountTransition(string(cur.State))

	if out.Notify != "" {
		if err := s.notifier.Push(ctx, userID, out.Notify); err != nil {
			log.Printf("[SCHED] notify %s: %v", userID, err)
			observability.CountNotification("error")
		} else {
			observability.CountNotification("ok")
		}
	}
}

// evictOnce deletes sessions idle past the inactivity threshold, whatever
// state they are in. An in-flight job is abandoned, not cancelled remotely.
func (s *Scheduler) evictOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.InactivityThreshold)
	removed, err := s.store.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("[SCHED] evicted %d inactive sessions", removed)
		observability.CountEvictions(removed)
	}
	return nil
}
