// Package sweeper periodically moves stamps and tickets past their expiry
// into the expired state.
//
// Expiry is also detected lazily on redeem and lookup, so a stopped or
// slow sweeper never lets an expired record be consumed. Both paths use
// conditional updates, so they may run concurrently in any order.
package sweeper

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Expirer performs the bulk expiry transitions.
type Expirer interface {
	ExpireStaleStamps(ctx context.Context) (int64, error)
	ExpireStale(ctx context.Context) (int64, error)
}

// Result counts the records one sweep expired.
type Result struct {
	Stamps  int64 `json:"stamps"`
	Tickets int64 `json:"tickets"`
}

// Sweeper runs the expiry pass on a fixed interval.
type Sweeper struct {
	Expirer  Expirer
	Interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// New creates a sweeper. It does nothing until Start is called.
func New(expirer Expirer, interval time.Duration) *Sweeper {
	return &Sweeper{
		Expirer:  expirer,
		Interval: interval,
	}
}

// Start launches the background loop. The first pass runs immediately.
// Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	if s.Interval <= 0 {
		log.Println("[Sweeper] Non-positive interval, not starting")
		return
	}

	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, s.stop)

	log.Printf("[Sweeper] Started with interval: %v", s.Interval)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
	log.Println("[Sweeper] Stopped")
}

func (s *Sweeper) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		log.Printf("[Sweeper] Sweep failed: %v", err)
	}
	if res.Stamps > 0 || res.Tickets > 0 {
		log.Printf("[Sweeper] Expired %d stamps and %d tickets", res.Stamps, res.Tickets)
	}
}

// SweepOnce runs a single expiry pass over stamps and tickets. A failure on
// one entity does not skip the other.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	var errs []error

	n, err := s.Expirer.ExpireStaleStamps(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	res.Stamps = n

	n, err = s.Expirer.ExpireStale(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	res.Tickets = n

	return res, errors.Join(errs...)
}
