package genstore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type localEpoch struct {
	epoch     uint64
	updatedAt time.Time
}

// Local keeps epochs in process memory. With a prune interval, a background
// loop drops namespaces idle for longer than retention.
type Local struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	epochs map[string]localEpoch

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ EpochStore = (*Local)(nil)

// NewLocal returns an in-process EpochStore. A nil clock means the real clock.
// pruneEvery <= 0 or retention <= 0 disables the prune loop.
func NewLocal(clock clockwork.Clock, pruneEvery, retention time.Duration) *Local {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Local{clock: clock, epochs: make(map[string]localEpoch)}
	if pruneEvery > 0 && retention > 0 {
		s.stop = make(chan struct{})
		ticker := clock.NewTicker(pruneEvery)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ticker.Chan():
					s.Prune(retention)
				case <-s.stop:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Current(_ context.Context, ns string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epochs[ns].epoch, nil
}

// CurrentMany takes the read lock once for all namespaces.
func (s *Local) CurrentMany(_ context.Context, nss []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(nss))
	s.mu.RLock()
	for _, ns := range nss {
		out[ns] = s.epochs[ns].epoch
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Advance(_ context.Context, ns string) (uint64, error) {
	now := s.clock.Now()
	s.mu.Lock()
	e := s.epochs[ns]
	e.epoch++
	e.updatedAt = now
	s.epochs[ns] = e
	s.mu.Unlock()
	return e.epoch, nil
}

func (s *Local) Prune(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-retention)
	s.mu.Lock()
	for ns, e := range s.epochs {
		if e.updatedAt.Before(cutoff) {
			delete(s.epochs, ns)
		}
	}
	s.mu.Unlock()
}

// Close stops the prune loop. Safe to call more than once.
func (s *Local) Close(context.Context) error {
	s.once.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.wg.Wait()
		}
	})
	return nil
}
