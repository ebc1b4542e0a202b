/*
scheduler.go - Automated term assignment scheduler

PURPOSE:
  Auto-assigns every pupil for the term currently in progress, so records
  exist before the office opens a pupil's page. A sweep runs on demand via
  POST /api/assign/sweep, or on a ticker when assign_interval is set.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Finds, for each academic year, the term containing today
  - Uses one long-lived AssignmentSession, so each (pupil, term) is
    processed at most once per server run
  - A failure for one pupil is logged and the sweep continues

CONFIGURATION:
  - CheckInterval: How often to sweep (config key assign_interval, 0 is off)

USAGE:
  scheduler := NewAssignmentScheduler(handler, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AutoAssign endpoint (manual, per pupil)
  - ledger/assignment.go: AutoAssigner
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/requirement-ledger/ledger"
)

// AssignmentScheduler auto-assigns the current term for all pupils.
type AssignmentScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration

	session *ledger.AssignmentSession
	log     zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// SweepStats summarizes one pass over all pupils.
type SweepStats struct {
	Terms    int `json:"terms"`
	Pupils   int `json:"pupils"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Failures int `json:"failures"`
}

func NewAssignmentScheduler(h *Handler, interval time.Duration) *AssignmentScheduler {
	return &AssignmentScheduler{
		Handler:       h,
		CheckInterval: interval,
		session:       ledger.NewAssignmentSession(),
		log:           h.log.With().Str("component", "assignment_scheduler").Logger(),
	}
}

// Start begins the scheduler. A non-positive interval leaves it off.
func (s *AssignmentScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CheckInterval <= 0 {
		s.log.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.log.Info().Dur("interval", s.CheckInterval).Msg("started")
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *AssignmentScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info().Msg("stopped")
}

func (s *AssignmentScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.Sweep(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.Sweep(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Sweep assigns the current term of every academic year to every pupil.
func (s *AssignmentScheduler) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	h := s.Handler
	today := h.now()

	years, err := h.Store.ListAcademicYears(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing academic years")
		return stats
	}
	pupils, err := h.Store.ListPupils(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing pupils")
		return stats
	}
	stats.Pupils = len(pupils)

	for _, year := range years {
		term, ok := year.TermAt(today)
		if !ok {
			continue
		}
		stats.Terms++

		for _, p := range pupils {
			req := ledger.AssignmentRequest{PupilID: p.ID, YearID: year.ID, TermID: term.ID}
			res, err := h.Assigner.AutoAssign(ctx, s.session, req)
			if err != nil {
				stats.Failures++
				s.log.Error().Err(err).
					Str("pupil_id", string(p.ID)).
					Str("term_id", string(term.ID)).
					Msg("auto-assignment failed")
				continue
			}
			stats.Created += len(res.Created)
			stats.Skipped += len(res.Skipped)
		}
	}

	s.log.Info().
		Time("as_of", today).
		Int("terms", stats.Terms).
		Int("pupils", stats.Pupils).
		Int("created", stats.Created).
		Int("failures", stats.Failures).
		Msg("sweep complete")
	return stats
}

// Reset forgets which pupils were processed, e.g. after a database reset.
func (s *AssignmentScheduler) Reset() {
	s.session.Reset()
}
