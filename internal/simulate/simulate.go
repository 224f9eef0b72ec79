// Package simulate generates synthetic marketplace traffic for demos and
// load checks. Each simulated actor follows a pattern and emits events into
// an EventSink once per tick.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/odin-market/progression/internal/progression"
	"github.com/sirupsen/logrus"
)

// EventSink receives generated events. *progression.Engine satisfies it.
type EventSink interface {
	ProcessEvent(ctx context.Context, ev progression.Event) (*progression.Result, error)
}

// Pattern names how an actor behaves over time.
type Pattern string

const (
	Steady     Pattern = "steady"
	Burst      Pattern = "burst"
	Methodical Pattern = "methodical"
	Lurker     Pattern = "lurker"
)

var patterns = []Pattern{Steady, Burst, Methodical, Lurker}

type actor struct {
	key     progression.ProfileKey
	pattern Pattern
}

// Stats counts what a run produced.
type Stats struct {
	Ticks  int    `json:"ticks"`
	Events int    `json:"events"`
	Failed int    `json:"failed"`
	XP     uint64 `json:"xp"`
}

// Generator drives a fixed population of actors.
type Generator struct {
	sink   EventSink
	log    logrus.FieldLogger
	rng    *rand.Rand
	actors []actor
	tick   int
	stats  Stats
}

// NewGenerator builds n actors, alternating vendors and customers and
// cycling through the patterns. The same seed yields the same traffic.
func NewGenerator(sink EventSink, n int, seed uint64, log logrus.FieldLogger) *Generator {
	g := &Generator{
		sink: sink,
		log:  log,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for i := 0; i < n; i++ {
		class := progression.ClassVendor
		if i%2 == 1 {
			class = progression.ClassCustomer
		}
		p := patterns[(i/2)%len(patterns)]
		g.actors = append(g.actors, actor{
			key:     progression.ProfileKey{ID: fmt.Sprintf("sim-%s-%s-%d", class, p, i), Class: class},
			pattern: p,
		})
	}
	return g
}

// Actors returns the keys of the simulated profiles.
func (g *Generator) Actors() []progression.ProfileKey {
	keys := make([]progression.ProfileKey, len(g.actors))
	for i, a := range g.actors {
		keys[i] = a.key
	}
	return keys
}

// Stats returns the totals so far. Not safe to call while Run is active.
func (g *Generator) Stats() Stats { return g.stats }

// Step advances every actor by one tick.
func (g *Generator) Step(ctx context.Context) error {
	g.tick++
	g.stats.Ticks++
	for _, a := range g.actors {
		for _, ev := range g.eventsFor(a) {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev.ProfileID = a.key.ID
			ev.Class = a.key.Class
			res, err := g.sink.ProcessEvent(ctx, ev)
			g.stats.Events++
			if err != nil {
				g.stats.Failed++
				g.log.WithError(err).WithFields(logrus.Fields{
					"profile": a.key.ID,
					"action":  ev.Action,
				}).Warn("simulated event failed")
				continue
			}
			g.stats.XP += res.XPEarned
		}
	}
	return nil
}

// Run steps every interval until ctx is done or ticks steps have run.
// ticks <= 0 runs until cancelled.
func (g *Generator) Run(ctx context.Context, interval time.Duration, ticks int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ticks <= 0 || g.stats.Ticks < ticks {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := g.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

func (g *Generator) eventsFor(a actor) []progression.Event {
	// Everyone logs in on their first tick.
	if g.tick == 1 {
		return []progression.Event{{Action: progression.ActionLogin}}
	}
	if a.key.Class == progression.ClassCustomer {
		return g.customerEvents(a.pattern)
	}
	return g.vendorEvents(a.pattern)
}

func (g *Generator) vendorEvents(p Pattern) []progression.Event {
	switch p {
	case Steady:
		if g.tick%3 == 0 {
			return []progression.Event{g.sale(200, 900)}
		}
		return []progression.Event{g.action(progression.ActionResponseSent, "responseTime", float64(1+g.rng.IntN(10)))}
	case Burst:
		// Quiet most of the time, then a run of large sales.
		if g.tick%10 < 7 {
			return nil
		}
		return []progression.Event{g.sale(900, 4000), g.sale(900, 4000)}
	case Methodical:
		evs := []progression.Event{{Action: progression.ActionProductAdded}}
		if g.tick%4 == 0 {
			evs = append(evs, g.action(progression.ActionOrderFulfilled, "onTime", true))
		}
		return evs
	default:
		if g.rng.IntN(5) == 0 {
			return []progression.Event{{Action: progression.ActionProductUpdated}}
		}
		return nil
	}
}

func (g *Generator) customerEvents(p Pattern) []progression.Event {
	switch p {
	case Steady:
		if g.tick%3 == 0 {
			return []progression.Event{g.purchase()}
		}
		return nil
	case Burst:
		if g.tick%10 < 8 {
			return nil
		}
		return []progression.Event{g.purchase(), g.purchase(), {Action: progression.ActionSocialShare}}
	case Methodical:
		if g.tick%2 == 0 {
			return []progression.Event{{
				Action: progression.ActionReviewWritten,
				Payload: progression.PayloadOf(map[string]any{
					"rating":   3 + g.rng.IntN(3),
					"hasPhoto": g.rng.IntN(2) == 0,
				}),
			}}
		}
		return []progression.Event{{Action: progression.ActionQuestionAsked}}
	default:
		if g.rng.IntN(6) == 0 {
			return []progression.Event{{Action: progression.ActionLogin}}
		}
		return nil
	}
}

func (g *Generator) sale(lo, hi int) progression.Event {
	return progression.Event{
		Action: progression.ActionSaleCompleted,
		Payload: progression.PayloadOf(map[string]any{
			"amount":         lo + g.rng.IntN(hi-lo),
			"repeatCustomer": g.rng.IntN(3) == 0,
		}),
	}
}

func (g *Generator) purchase() progression.Event {
	return progression.Event{
		Action: progression.ActionPurchaseCompleted,
		Payload: progression.PayloadOf(map[string]any{
			"amount":         50 + g.rng.IntN(1500),
			"repeatPurchase": g.rng.IntN(2) == 0,
		}),
	}
}

func (g *Generator) action(name, field string, v any) progression.Event {
	return progression.Event{Action: name, Payload: progression.PayloadOf(map[string]any{field: v})}
}
