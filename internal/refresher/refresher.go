// Package refresher periodically scrapes every configured source and
// publishes the results into a snapshot store.
package refresher

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
	"github.com/janiskrasemann/vmarket/internal/logging"
	"github.com/janiskrasemann/vmarket/internal/publish"
)

const (
	DefaultSchedule = "@every 5s"
	DefaultTimeout  = 10 * time.Second

	sinkTimeout = 5 * time.Second
)

// Store is the write side of the snapshot.
type Store interface {
	Put(id string, fields fetcher.Fields) error
	RecordFailure(id string, cause error) error
}

// Observer is told about every result after it has been applied.
type Observer interface {
	Observe(ctx context.Context, res fetcher.Result)
}

type Option func(*Refresher)

func WithSchedule(spec string) Option {
	return func(r *Refresher) {
		if spec != "" {
			r.schedule = spec
		}
	}
}

// WithTimeout bounds each individual fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithSinks(sinks ...publish.Sink) Option {
	return func(r *Refresher) { r.sinks = append(r.sinks, sinks...) }
}

func WithObserver(obs Observer) Option {
	return func(r *Refresher) { r.observers = append(r.observers, obs) }
}

type Refresher struct {
	fetcher   fetcher.Fetcher
	store     Store
	sources   []fetcher.Source
	schedule  string
	timeout   time.Duration
	sinks     []publish.Sink
	observers []Observer
}

func New(f fetcher.Fetcher, store Store, sources []fetcher.Source, opts ...Option) *Refresher {
	r := &Refresher{
		fetcher:  f,
		store:    store,
		sources:  sources,
		schedule: DefaultSchedule,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one cycle immediately and then one per schedule tick until ctx
// is cancelled. Cycles never overlap. Run waits for an in-flight cycle before
// returning.
func (r *Refresher) Run(ctx context.Context) error {
	logger := cronLogger()
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	id, err := c.AddFunc(r.schedule, func() { r.RunCycle(ctx) })
	if err != nil {
		return fmt.Errorf("adding cron schedule %q: %w", r.schedule, err)
	}

	// First cycle goes through the same chain so panics are recovered.
	c.Entry(id).WrappedJob.Run()
	c.Start()
	logging.Infof("[refresher] started, %d sources, schedule %s", len(r.sources), r.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	logging.Infof("[refresher] stopped")
	return nil
}

// RunCycle scrapes every source once. Fetches run concurrently; results are
// applied to the store in source order.
func (r *Refresher) RunCycle(ctx context.Context) []fetcher.Result {
	if ctx.Err() != nil {
		return nil
	}
	results := r.fetchAll(ctx)
	for _, res := range results {
		r.apply(ctx, res)
	}
	return results
}

func (r *Refresher) fetchAll(ctx context.Context) []fetcher.Result {
	results := make([]fetcher.Result, len(r.sources))
	var wg sync.WaitGroup

	for i, src := range r.sources {
		wg.Add(1)
		go func(idx int, src fetcher.Source) {
			defer wg.Done()
			results[idx] = r.fetchOne(ctx, src)
		}(i, src)
	}

	wg.Wait()
	return results
}

func (r *Refresher) fetchOne(ctx context.Context, src fetcher.Source) (res fetcher.Result) {
	res.Source = src

	defer func() {
		if p := recover(); p != nil {
			res.Fields = fetcher.Fields{}
			res.Err = fmt.Errorf("panic while fetching %s: %v", src.ID, p)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logging.Debugf("[refresher] fetching %s...", src.ID)
	fields, err := r.fetcher.Fetch(ctx, src)
	if err == nil && !fields.Valid() {
		err = fetcher.ErrEmptyResult
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Fields = fields
	return res
}

func (r *Refresher) apply(ctx context.Context, res fetcher.Result) {
	id := res.Source.ID
	if res.OK() {
		if err := r.store.Put(id, res.Fields); err != nil {
			logging.Errorf("[refresher] storing %s: %v", id, err)
		} else {
			logging.Debugf("[refresher] fetched %s successfully", id)
			r.publish(ctx, id, res.Fields)
		}
	} else {
		logging.Errorf("[refresher] failed to scrape %s: %v", id, res.Err)
		if err := r.store.RecordFailure(id, res.Err); err != nil {
			logging.Errorf("[refresher] recording failure for %s: %v", id, err)
		}
	}

	for _, obs := range r.observers {
		obs.Observe(ctx, res)
	}
}

func (r *Refresher) publish(ctx context.Context, id string, fields fetcher.Fields) {
	for _, sink := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := sink.Publish(sctx, id, fields); err != nil {
			logging.Errorf("[refresher] %s publish %s: %v", sink.Name(), id, err)
		}
		cancel()
	}
}

func cronLogger() cron.Logger {
	l := log.New(os.Stderr, "cron: ", log.LstdFlags)
	if logging.Enabled(logging.LevelDebug) {
		return cron.VerbosePrintfLogger(l)
	}
	return cron.PrintfLogger(l)
}
