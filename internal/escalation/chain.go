// Package escalation implements the chain of authority above the workflow
// engine: a coordinator that is always asked for a resolution first, and a
// set of human-notification subscribers that receive whatever the
// coordinator cannot or will not handle.
package escalation

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reference identifies the escalated unit of work without sharing any of
// its mutable state.
type Reference struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // "goal" or "incident"
	Summary string `json:"summary,omitempty"`
}

type Escalation struct {
	Ref    Reference `json:"ref"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Decision is the coordinator's answer: guidance that resolves the unit,
// or a determination that human judgement is required.
type Decision struct {
	Guidance   string `json:"guidance,omitempty"`
	NeedsHuman bool   `json:"needs_human,omitempty"`
}

// Coordinator is the higher authority consulted before any human is
// paged. A returned error counts as a coordinator fault and falls through
// to human notification with the fault text as the reason.
type Coordinator interface {
	Decide(ctx context.Context, esc Escalation) (Decision, error)
}

// Notifier receives human-bound notifications. Delivery is fire-and-forget
// from the chain's point of view: a slow or panicking notifier never
// blocks escalation handling.
type Notifier interface {
	Notify(reason string, ref Reference)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(reason string, ref Reference)

func (f NotifierFunc) Notify(reason string, ref Reference) { f(reason, ref) }

// Outcome records how one escalated unit was handled. Resolved means
// resolved-with-decision: a handled failure, never a plain success.
type Outcome struct {
	Ref           Reference `json:"ref"`
	Resolved      bool      `json:"resolved"`
	Decision      string    `json:"decision,omitempty"`
	Blocked       bool      `json:"blocked"`
	Reason        string    `json:"reason"`
	NotifiedHuman bool      `json:"notified_human"`
	HandledAt     time.Time `json:"handled_at"`
}

// Chain tracks concurrently escalated units independently; handling one
// never blocks another.
type Chain struct {
	coordinator Coordinator
	log         *zap.Logger
	clock       func() time.Time

	mu        sync.Mutex
	notifiers []Notifier
	units     map[string]Outcome

	inflight sync.WaitGroup
}

type ChainOption func(*Chain)

func WithLogger(log *zap.Logger) ChainOption {
	return func(c *Chain) {
		if log != nil {
			c.log = log
		}
	}
}

func WithClock(clock func() time.Time) ChainOption {
	return func(c *Chain) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewChain builds an escalation chain. A nil coordinator is allowed: every
// escalation then goes straight to the human subscribers.
func NewChain(coordinator Coordinator, opts ...ChainOption) *Chain {
	c := &Chain{
		coordinator: coordinator,
		log:         zap.NewNop(),
		clock:       time.Now,
		units:       map[string]Outcome{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a human-notification subscriber.
func (c *Chain) Subscribe(n Notifier) {
	if n == nil {
		return
	}
	c.mu.Lock()
	c.notifiers = append(c.notifiers, n)
	c.mu.Unlock()
}

// Escalate handles one escalated unit: resolution is always attempted
// before forwarding, and forwarding never precedes it. A coordinator fault
// still reaches the human subscribers, carrying the fault text verbatim.
func (c *Chain) Escalate(ctx context.Context, esc Escalation) Outcome {
	if esc.At.IsZero() {
		esc.At = c.clock()
	}
	out := Outcome{Ref: esc.Ref, Reason: esc.Reason, HandledAt: c.clock()}

	switch {
	case c.coordinator == nil:
		out.Blocked = true
		out.NotifiedHuman = true
	default:
		decision, err := c.coordinator.Decide(ctx, esc)
		switch {
		case err != nil:
			c.log.Warn("coordinator fault, forwarding to human",
				zap.String("unit", esc.Ref.ID), zap.Error(err))
			out.Blocked = true
			out.NotifiedHuman = true
			out.Reason = err.Error()
		case decision.NeedsHuman:
			out.Blocked = true
			out.NotifiedHuman = true
		case strings.TrimSpace(decision.Guidance) != "":
			out.Resolved = true
			out.Decision = decision.Guidance
		default:
			// No guidance and no explicit human request: treat as
			// unresolvable rather than dropping it.
			out.Blocked = true
			out.NotifiedHuman = true
		}
	}

	if out.NotifiedHuman {
		c.notifyHuman(out.Reason, esc.Ref)
	} else {
		c.log.Info("escalation resolved with decision",
			zap.String("unit", esc.Ref.ID), zap.String("decision", out.Decision))
	}

	c.mu.Lock()
	c.units[esc.Ref.ID] = out
	c.mu.Unlock()
	return out
}

func (c *Chain) notifyHuman(reason string, ref Reference) {
	c.mu.Lock()
	subscribers := make([]Notifier, len(c.notifiers))
	copy(subscribers, c.notifiers)
	c.mu.Unlock()
	for _, n := range subscribers {
		n := n
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					c.log.Warn("human notifier panicked", zap.Any("panic", r))
				}
			}()
			n.Notify(reason, ref)
		}()
	}
}

// Flush waits for in-flight human notifications. For shutdown and tests;
// the escalation path itself never waits.
func (c *Chain) Flush() {
	c.inflight.Wait()
}

// Unit returns the recorded outcome for an escalated unit id.
func (c *Chain) Unit(id string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.units[id]
	return out, ok
}

// Units snapshots every tracked outcome.
func (c *Chain) Units() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outcome, 0, len(c.units))
	for _, u := range c.units {
		out = append(out, u)
	}
	return out
}
