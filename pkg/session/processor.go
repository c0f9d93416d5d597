package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/pkg/clock"
	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/messages"
)

// processor consumes ordered event batches and drives the replica fold.
// It is the only writer of the core: a single goroutine ranges over the
// subscription channel, so batches serialize without a lock. A new batch
// cannot begin, side effects included, before the previous one finishes.
type processor struct {
	core   *core
	logger *zap.Logger
}

func newProcessor(c *core, logger *zap.Logger) *processor {
	return &processor{core: c, logger: logger}
}

// run processes batches until the channel closes, the context ends, or a
// protocol violation stops the replica.
func (p *processor) run(ctx context.Context, batches <-chan gamelog.Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if err := p.processBatch(batch); err != nil {
				p.logger.Error("replica stopped",
					zap.String("session_id", p.core.id.String()),
					zap.Error(err))
				p.core.fail(err)
				return err
			}
		}
	}
}

// processBatch applies one batch in log order, bracketed by the clock
// manager's pause/resume. Only the last move of the batch animates: a
// catch-up batch replays its earlier moves silently. AfterEvent runs once
// with the final event's timestamp so drift correction sees how much real
// time the batch covers.
func (p *processor) processBatch(batch gamelog.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	c := p.core
	c.clocks.BeforeEvent()

	lastMove := -1
	for i, ev := range batch {
		if ev.Type == gamelog.TypeMove {
			lastMove = i
		}
	}

	for i, ev := range batch {
		if err := c.apply(ev, i == lastMove); err != nil {
			return err
		}
	}

	last := batch[len(batch)-1]
	c.clocks.AfterEvent(c.current(), last.Time)

	p.publishClocks()

	return nil
}

func (p *processor) publishClocks() {
	c := p.core
	snap := c.clocks.Snapshot()

	c.publish(events.EventClockUpdated, messages.ClockUpdatePayload{
		SessionID: c.id.String(),
		TurnMs:    snap.TurnMs,
		GlobalMs:  snap.GlobalMs,
		Current:   c.current().String(),
		Display: [2]string{
			clock.FormatRemaining(snap.TurnMs[0]),
			clock.FormatRemaining(snap.TurnMs[1]),
		},
	})
}
