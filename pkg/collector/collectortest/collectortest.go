// Package collectortest provides an in-memory source and a scripted prompter
// for driving collections in tests.
package collectortest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"igmonitor/pkg/collector"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

type key struct {
	subject string
	kind    models.Kind
}

// Source serves fixed identifier lists per (subject, kind). Injected
// failures fire once, before the item at their position is served.
type Source struct {
	mu          sync.Mutex
	items       map[key][]string
	estimates   map[key]int
	failures    map[key]map[int]error
	estimateErr error
	requests    int

	// AfterYield, if set, is called after each served item with its position
	AfterYield func(subject string, kind models.Kind, pos int)
}

// NewSource creates an empty source
func NewSource() *Source {
	return &Source{
		items:     make(map[key][]string),
		estimates: make(map[key]int),
		failures:  make(map[key]map[int]error),
	}
}

// Set replaces the identifiers served for (subject, kind)
func (s *Source) Set(subject string, kind models.Kind, ids ...string) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key{subject, kind}] = append([]string(nil), ids...)
	return s
}

// SetEstimate overrides the count reported by EstimateCount
func (s *Source) SetEstimate(subject string, kind models.Kind, n int) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimates[key{subject, kind}] = n
	return s
}

// FailAt makes the next fetch of position pos fail once with err
func (s *Source) FailAt(subject string, kind models.Kind, pos int, err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{subject, kind}
	if s.failures[k] == nil {
		s.failures[k] = make(map[int]error)
	}
	s.failures[k][pos] = err
	return s
}

// FailEstimate makes every EstimateCount call fail with err
func (s *Source) FailEstimate(err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimateErr = err
	return s
}

// Requests counts Next calls across all iterators
func (s *Source) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Source) known(subject string) bool {
	for k := range s.items {
		if k.subject == subject {
			return true
		}
	}
	return false
}

// EstimateCount reports the configured estimate or the list length. Unknown
// subjects yield an access error.
func (s *Source) EstimateCount(ctx context.Context, subject string, kind models.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.estimateErr != nil {
		return 0, s.estimateErr
	}
	if !s.known(subject) {
		return 0, errs.Access("estimate", fmt.Sprintf("user %s not found", subject), nil)
	}
	k := key{subject, kind}
	if n, ok := s.estimates[k]; ok {
		return n, nil
	}
	return len(s.items[k]), nil
}

// Iterate starts at the first item
func (s *Source) Iterate(ctx context.Context, subject string, kind models.Kind) collector.Iterator {
	return &Iterator{src: s, key: key{subject, kind}}
}

// Iterator walks one list of a Source
type Iterator struct {
	src *Source
	key key
	pos int
}

// Next serves the next item, an injected failure, or io.EOF
func (it *Iterator) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	it.src.mu.Lock()
	it.src.requests++
	if fails := it.src.failures[it.key]; fails != nil {
		if err, ok := fails[it.pos]; ok {
			delete(fails, it.pos)
			it.src.mu.Unlock()
			return "", err
		}
	}
	items := it.src.items[it.key]
	if it.pos >= len(items) {
		it.src.mu.Unlock()
		return "", io.EOF
	}
	id, pos := items[it.pos], it.pos
	it.pos++
	hook := it.src.AfterYield
	it.src.mu.Unlock()

	if hook != nil {
		hook(it.key.subject, it.key.kind, pos)
	}
	return id, nil
}

var (
	_ collector.Source   = (*Source)(nil)
	_ collector.Prompter = (*Prompter)(nil)
)

// Prompter answers prompts from fixed settings and counts the questions asked
type Prompter struct {
	mu       sync.Mutex
	Resume   bool
	Large    bool
	Continue bool
	Cooldown bool
	// ContinueAnswers are consumed in order before falling back to Continue
	ContinueAnswers []bool
	asked           map[string]int
}

// NewPrompter says yes to everything except the cool-down
func NewPrompter() *Prompter {
	return &Prompter{Resume: true, Large: true, Continue: true}
}

func (p *Prompter) ask(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.asked == nil {
		p.asked = make(map[string]int)
	}
	p.asked[q]++
}

// Asked returns how often the question ("resume", "large", "continue",
// "cooldown") was asked
func (p *Prompter) Asked(q string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asked[q]
}

func (p *Prompter) ConfirmResume(ctx context.Context, cp *models.Checkpoint) bool {
	p.ask("resume")
	return p.Resume
}

func (p *Prompter) ConfirmLarge(ctx context.Context, subject string, kind models.Kind, estimate int) bool {
	p.ask("large")
	return p.Large
}

func (p *Prompter) ConfirmContinue(ctx context.Context, subject string, kind models.Kind, collected int) bool {
	p.ask("continue")
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ContinueAnswers) > 0 {
		answer := p.ContinueAnswers[0]
		p.ContinueAnswers = p.ContinueAnswers[1:]
		return answer
	}
	return p.Continue
}

func (p *Prompter) ConfirmCooldown(ctx context.Context, wait time.Duration, cause error) bool {
	p.ask("cooldown")
	return p.Cooldown
}
