package viewcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// view is the state shared by EntityView and ListView: identity, generation
// counter, lifecycle and the status/error/deleted streams.
//
// Stream subscribers run on the goroutine that triggered the change (a fetch,
// a poll tick or a cache write). They must not call back into the view
// synchronously; hand the work to another goroutine instead.
type view struct {
	id      string
	kind    string
	tracker *Tracker
	log     Logger
	hooks   Hooks
	clock   clockwork.Clock
	onError func(*ServerError) bool

	gen atomic.Uint64

	ctx    context.Context // canceled by Dispose
	cancel context.CancelFunc

	bgMu     sync.Mutex // orders wg.Add against Dispose
	disposed atomic.Bool
	wg       sync.WaitGroup
	done     chan struct{}
	dispose  sync.Once

	pollOnce sync.Once
	interval time.Duration

	cacheSubs Subscriptions

	status  *Stream[LoadingStatus]
	newData *Stream[LoadingStatus]
	errs    *Stream[*ServerError]
	deleted *Stream[string]
}

type viewConfig struct {
	kind     string
	interval time.Duration
	clock    clockwork.Clock
	onError  func(*ServerError) bool
	tracker  *Tracker
	logger   Logger
	hooks    Hooks
}

func newView(cfg viewConfig) *view {
	ctx, cancel := context.WithCancel(context.Background())
	v := &view{
		id:       uuid.NewString(),
		kind:     cfg.kind,
		tracker:  cfg.tracker,
		log:      coalesce[Logger](cfg.logger, NopLogger{}),
		hooks:    coalesce[Hooks](cfg.hooks, NopHooks{}),
		clock:    coalesce[clockwork.Clock](cfg.clock, clockwork.NewRealClock()),
		onError:  cfg.onError,
		interval: cfg.interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   NewReplayStream[LoadingStatus](),
		newData:  NewReplayStream[LoadingStatus](),
		errs:     NewStream[*ServerError](),
		deleted:  NewStream[string](),
	}
	v.status.Publish(StatusIdle)
	v.newData.Publish(StatusIdle)
	return v
}

// ID identifies the view in its Tracker.
func (v *view) ID() string { return v.id }

// Status emits the load state. It replays the current state on Subscribe.
func (v *view) Status() *Stream[LoadingStatus] { return v.status }

// NewDataStatus is Loading from a params change until the first fetch for the
// new params settles. Refreshes and polls leave it alone.
func (v *view) NewDataStatus() *Stream[LoadingStatus] { return v.newData }

// Error emits each fetch failure. The item and items streams keep their last
// good value.
func (v *view) Error() *Stream[*ServerError] { return v.errs }

// Deleted emits keys the view's cache removed, e.g. after a 404.
func (v *view) Deleted() *Stream[string] { return v.deleted }

// Done is closed once Dispose was called and the view's background work
// (poll loop, refetches) has returned.
func (v *view) Done() <-chan struct{} { return v.done }

func (v *view) ensureLive() {
	if v.disposed.Load() {
		panic(ErrDisposed)
	}
}

// current reports whether a response issued at gen may still be applied.
func (v *view) current(gen uint64) bool {
	cur := v.gen.Load()
	if cur == gen {
		return true
	}
	v.hooks.StaleDropped(v.id, gen, cur)
	v.log.Debug("stale response dropped", Fields{"view": v.id, "issued": gen, "current": cur})
	return false
}

func (v *view) setStatus(s LoadingStatus) {
	v.status.Publish(s)
	if nd, _ := v.newData.Value(); nd == StatusLoading && s != StatusLoading {
		v.newData.Publish(s)
	}
}

func (v *view) markNewData() { v.newData.Publish(StatusLoading) }

// fail routes err to the error stream unless onError swallows it.
func (v *view) fail(err error) {
	se := AsServerError(err)
	if v.onError != nil && !v.onError(se) {
		v.setStatus(StatusReady)
		return
	}
	v.log.Warn("view fetch failed", Fields{"view": v.id, "kind": v.kind, "err": se.Error()})
	v.setStatus(StatusError)
	v.errs.Publish(se)
}

// background runs fn on its own goroutine with the view's context.
// No-op once the view is disposed.
func (v *view) background(fn func(ctx context.Context)) {
	v.bgMu.Lock()
	defer v.bgMu.Unlock()
	if v.disposed.Load() {
		return
	}
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		fn(v.ctx)
	}()
}

// startPoll starts the poll loop once, if an interval was configured.
func (v *view) startPoll(tick func(ctx context.Context)) {
	if v.interval <= 0 {
		return
	}
	v.pollOnce.Do(func() {
		v.background(func(ctx context.Context) {
			poll(ctx, v.clock, v.interval, tick)
		})
	})
}

// close disposes the view once: background work is canceled, cache
// subscriptions released and streams completed. The shared cache is untouched.
func (v *view) close(release func()) {
	v.dispose.Do(func() {
		v.bgMu.Lock()
		v.disposed.Store(true)
		v.bgMu.Unlock()

		v.cancel()
		v.cacheSubs.Close()
		if release != nil {
			release()
		}
		v.status.Close()
		v.newData.Close()
		v.errs.Close()
		v.deleted.Close()
		v.tracker.unregister(v.id)

		go func() {
			v.wg.Wait()
			close(v.done)
		}()
	})
}
