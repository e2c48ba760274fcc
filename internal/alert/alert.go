// Package alert emails operators when a source keeps failing and again when
// it recovers.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
	"github.com/janiskrasemann/vmarket/internal/logging"
	"github.com/janiskrasemann/vmarket/internal/renderer"
)

const (
	DefaultThreshold = 3

	sendTimeout = 10 * time.Second
)

type Sender interface {
	Send(ctx context.Context, email *renderer.RenderedEmail) error
}

type state struct {
	failures int
	alerted  bool
	lastGood *fetcher.Fields
}

type Alerter struct {
	threshold int
	renderer  *renderer.Renderer
	sender    Sender
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*state
}

func New(rend *renderer.Renderer, sender Sender, threshold int) *Alerter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Alerter{
		threshold: threshold,
		renderer:  rend,
		sender:    sender,
		now:       time.Now,
		states:    make(map[string]*state),
	}
}

func (a *Alerter) Threshold() int { return a.threshold }

// Observe feeds one scrape result into the alerter. A source that reaches
// the failure threshold triggers one alert; the next success after that
// triggers one recovery notice.
func (a *Alerter) Observe(ctx context.Context, res fetcher.Result) {
	notice, ok := a.transition(res)
	if !ok {
		return
	}

	email, err := a.renderer.Render(notice)
	if err != nil {
		logging.Errorf("[alert] rendering %s notice for %s: %v", notice.Kind, notice.Source, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := a.sender.Send(ctx, email); err != nil {
		logging.Errorf("[alert] sending %s notice for %s: %v", notice.Kind, notice.Source, err)
		return
	}
	logging.Infof("[alert] sent %s notice for %s", notice.Kind, notice.Source)
}

func (a *Alerter) transition(res fetcher.Result) (renderer.Notice, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := res.Source.ID
	st, ok := a.states[id]
	if !ok {
		st = &state{}
		a.states[id] = st
	}

	notice := renderer.Notice{
		Source: id,
		URL:    res.Source.URL,
		At:     a.now(),
	}

	if res.OK() {
		f := res.Fields
		st.lastGood = &f
		failures, alerted := st.failures, st.alerted
		st.failures = 0
		st.alerted = false
		if !alerted {
			return renderer.Notice{}, false
		}
		notice.Kind = renderer.KindRecovered
		notice.Failures = failures
		notice.Fields = st.lastGood
		return notice, true
	}

	st.failures++
	if st.alerted || st.failures < a.threshold {
		return renderer.Notice{}, false
	}
	st.alerted = true
	notice.Kind = renderer.KindFailing
	notice.Failures = st.failures
	notice.LastError = res.Err.Error()
	notice.Fields = st.lastGood
	return notice, true
}
