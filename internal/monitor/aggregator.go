// internal/monitor/aggregator.go
package monitor

import (
	"log/slog"

	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
)

// Outcome reports which mutation the aggregator applied for an action.
type Outcome string

const (
	// OutcomeStarted: a first delta created the run's streaming record.
	OutcomeStarted Outcome = "started"
	// OutcomeAppended: a delta was appended to the streaming record.
	OutcomeAppended Outcome = "appended"
	// OutcomePromoted: a terminal event changed the streaming record's type.
	OutcomePromoted Outcome = "promoted"
	// OutcomeInserted: a standalone record was stored under its own id.
	OutcomeInserted Outcome = "inserted"
	// OutcomeIgnored: a record with the same id already existed.
	OutcomeIgnored Outcome = "ignored"
)

// Aggregator coalesces a run's deltas into one streaming record and
// finalizes that record in place when the run ends. It keeps no state of its
// own and does no locking: callers must deliver actions one at a time.
type Aggregator struct {
	actions *state.ActionTable
}

func NewAggregator(actions *state.ActionTable) *Aggregator {
	return &Aggregator{actions: actions}
}

// Add applies one action event to the action table.
func (g *Aggregator) Add(action types.Action) Outcome {
	outcome := g.add(action)
	slog.Debug("action aggregated",
		"id", string(action.ID),
		"run_id", string(action.RunID),
		"type", string(action.Type),
		"seq", action.Seq,
		"outcome", string(outcome),
	)
	return outcome
}

func (g *Aggregator) add(action types.Action) Outcome {
	streamID := types.StreamID(action.RunID)

	if action.Type == types.ActionDelta {
		// A delta arriving after the run was promoted still appends here and
		// leaves the terminal type in place.
		appended := g.actions.Update(streamID, func(cur *types.Action) {
			cur.Content += action.Content
			cur.Seq = action.Seq
			cur.Timestamp = action.Timestamp
		})
		if appended {
			return OutcomeAppended
		}
		action.ID = streamID
		g.actions.Insert(action)
		return OutcomeStarted
	}

	if action.Type.Terminal() {
		promoted := g.actions.Update(streamID, func(cur *types.Action) {
			cur.Type = action.Type
			cur.Seq = action.Seq
			cur.Timestamp = action.Timestamp
		})
		if promoted {
			return OutcomePromoted
		}
		// Orphaned terminal: stored standalone below.
	}

	if g.actions.Insert(action) {
		return OutcomeInserted
	}
	return OutcomeIgnored
}
