package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/restreviews/restsync/internal/store"
)

// drain replays every entry in queue c through send, one at a time, in key
// order. Entries appended while the drain runs are picked up if the cursor
// has not yet passed their key.
func drain[T any](ctx context.Context, e *Engine, c store.Collection, send func(context.Context, T) error) (DrainResult, error) {
	var res DrainResult

	cur, err := e.local.OpenCursor(ctx, c)
	if err != nil {
		return res, fmt.Errorf("failed to open %s: %w", c, err)
	}

	for cur != nil {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Attempted++
		opID := cur.OpID()

		var entry T
		if err := json.Unmarshal(cur.Value(), &entry); err != nil {
			e.logger.Printf("Warning: dropping undecodable %s entry %d (op %s): %v", c, cur.Key(), opID, err)
			if err := cur.DeleteCurrent(ctx); err != nil {
				return res, err
			}
			res.Dropped++
		} else if err := replay(ctx, e, c, cur, entry, send, &res); err != nil {
			return res, err
		}

		cur, err = cur.Next(ctx)
		if err != nil {
			return res, err
		}
	}

	remaining, err := e.local.Count(ctx, c)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining
	return res, nil
}

// replay sends one entry and removes it according to the replay policy. The
// returned error is a store failure; send failures are only counted.
func replay[T any](ctx context.Context, e *Engine, c store.Collection, cur *store.Cursor, entry T, send func(context.Context, T) error, res *DrainResult) error {
	opID := cur.OpID()

	if e.cfg.ReplayPolicy == ReplayLossy {
		if err := cur.DeleteCurrent(ctx); err != nil {
			return err
		}
	}

	sendErr := send(ctx, entry)
	e.emit(Event{Type: EventReplayed, Queue: string(c), OpID: opID, Error: errString(sendErr)})

	if sendErr != nil {
		res.Failed++
		if e.cfg.ReplayPolicy == ReplayLossy {
			res.Dropped++
			e.logger.Printf("Warning: replay of %s entry %d (op %s) failed and was dropped: %v", c, cur.Key(), opID, sendErr)
		} else {
			e.logger.Printf("Replay of %s entry %d (op %s) failed, keeping it queued: %v", c, cur.Key(), opID, sendErr)
		}
		return nil
	}

	res.Succeeded++
	if e.cfg.ReplayPolicy == ReplayConfirmed {
		// The server has the entry; a cancelled caller must not leave it
		// queued for a second send.
		return cur.DeleteCurrent(context.WithoutCancel(ctx))
	}
	return nil
}

// drainOutcome turns a drain into an Outcome. Under the confirmed policy a
// drain that left entries behind is reported as queued. A drain that dropped
// entries stays KindOK but says so in its message.
func (e *Engine) drainOutcome(c store.Collection, res DrainResult, err error, successMsg, queuedMsg string) Outcome[DrainResult] {
	var out Outcome[DrainResult]
	switch {
	case err != nil:
		out = Outcome[DrainResult]{Kind: KindFailed, Value: res, Err: err}
	case res.Attempted == 0:
		out = ok(res, "")
	case res.Failed > 0 && e.cfg.ReplayPolicy == ReplayConfirmed:
		out = queued(res, queuedMsg, fmt.Errorf("%d of %d %s entries failed to replay", res.Failed, res.Attempted, c))
	case res.Dropped > 0:
		out = ok(res, MsgChangesDropped)
	default:
		out = ok(res, successMsg)
	}

	if res.Attempted > 0 || err != nil {
		e.logger.Printf("Drained %s: attempted=%d succeeded=%d failed=%d dropped=%d remaining=%d",
			c, res.Attempted, res.Succeeded, res.Failed, res.Dropped, res.Remaining)
		drained := res
		e.emit(Event{
			Type:    EventQueueDrained,
			Kind:    out.Kind.String(),
			Queue:   string(c),
			Message: out.Message,
			Error:   errString(out.Err),
			Drain:   &drained,
		})
	}
	return out
}
