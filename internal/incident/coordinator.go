package incident

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/attargo/overseer/internal/escalation"
	"github.com/attargo/overseer/internal/ladder"
)

// ActionFunc executes one recovery action kind against the live system.
// A nil return means the action took; whether the incident is actually
// healthy again is the prober's call.
type ActionFunc func(ctx context.Context, inc *Incident) error

// Escalator receives incidents whose ladder is exhausted.
type Escalator interface {
	Escalate(ctx context.Context, esc escalation.Escalation) escalation.Outcome
}

type Coordinator struct {
	ladder    ladder.Ladder
	actions   map[string]ActionFunc
	escalator Escalator
	backoff   ladder.BackoffConfig
	sleep     func(ctx context.Context, d time.Duration) bool
	clock     func() time.Time
	log       *zap.Logger
}

type CoordinatorConfig struct {
	Ladder    ladder.Ladder
	Actions   map[string]ActionFunc
	Escalator Escalator
	Backoff   ladder.BackoffConfig
	Sleep     func(ctx context.Context, d time.Duration) bool
	Clock     func() time.Time
	Logger    *zap.Logger
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if err := cfg.Ladder.Validate(); err != nil {
		return nil, err
	}
	for _, r := range cfg.Ladder.Rungs {
		if cfg.Actions[r.Kind] == nil {
			return nil, fmt.Errorf("incident: ladder rung %q has no action", r.Kind)
		}
	}
	if cfg.Backoff == (ladder.BackoffConfig{}) {
		cfg.Backoff = ladder.DefaultBackoffConfig()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) bool {
			if d <= 0 {
				return ctx.Err() == nil
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return true
			case <-ctx.Done():
				return false
			}
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		ladder:    cfg.Ladder,
		actions:   cfg.Actions,
		escalator: cfg.Escalator,
		backoff:   cfg.Backoff,
		sleep:     cfg.Sleep,
		clock:     cfg.Clock,
		log:       cfg.Logger,
	}, nil
}

// Recover drives one incident through the ladder until an action
// succeeds, the ladder escalates, or the context is canceled. The
// decision for each step is replayed purely from the incident's attempt
// history.
func (c *Coordinator) Recover(ctx context.Context, inc *Incident) error {
	log := c.log.With(zap.String("incident_id", inc.ID), zap.String("severity", string(inc.Severity)))
	now := c.clock()
	if inc.State == StateDetected {
		if err := inc.transition(StateAcknowledged, "recovery started", now); err != nil {
			return err
		}
	}
	if err := inc.transition(StateInvestigating, "selecting recovery action", c.clock()); err != nil {
		return err
	}

	for {
		decision := c.ladder.Next(inc.History())
		if decision.Escalate {
			if err := inc.transition(StateEscalated, decision.Reason, c.clock()); err != nil {
				return err
			}
			log.Warn("incident escalated", zap.String("reason", decision.Reason))
			if c.escalator != nil {
				c.escalator.Escalate(ctx, escalation.Escalation{
					Ref:    escalation.Reference{ID: inc.ID, Kind: "incident", Summary: inc.Summary},
					Reason: lastFailureReason(inc, decision.Reason),
					At:     c.clock(),
				})
			}
			return nil
		}

		if err := inc.transition(StateRecovering, "running "+decision.Action, c.clock()); err != nil {
			return err
		}
		log.Info("running recovery action",
			zap.String("action", decision.Action),
			zap.Int("prior_attempts", len(inc.Attempts)))

		err := c.actions[decision.Action](ctx, inc)
		at := c.clock()
		if err == nil {
			inc.recordAttempt(decision.Action, true, "", at)
			if terr := inc.transition(StateResolved, decision.Action+" succeeded", at); terr != nil {
				return terr
			}
			log.Info("incident resolved", zap.String("action", decision.Action))
			return nil
		}
		inc.recordAttempt(decision.Action, false, err.Error(), at)
		log.Warn("recovery action failed",
			zap.String("action", decision.Action), zap.Error(err))

		delay := ladder.DelayFor(inc.ID, decision.Action, len(inc.Attempts), c.backoff)
		if !c.sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

func lastFailureReason(inc *Incident, fallback string) string {
	for i := len(inc.Attempts) - 1; i >= 0; i-- {
		if !inc.Attempts[i].Success && inc.Attempts[i].Detail != "" {
			return inc.Attempts[i].Detail
		}
	}
	return fallback
}
