// internal/state/action.go
package state

import (
	"github.com/user/clawmon/internal/types"
)

type ActionChange = Change[types.ActionID, types.Action]

// ActionTable is the in-memory keyed store of actions.
type ActionTable struct {
	t *table[types.ActionID, types.Action]
}

func NewActionTable() *ActionTable {
	return &ActionTable{t: newTable[types.ActionID](types.Action.Clone)}
}

// Insert stores a under a.ID. It returns false without mutating anything if
// the id is already present.
func (a *ActionTable) Insert(action types.Action) bool {
	return a.t.insert(action.ID, action)
}

// Update patches the action stored under id in place. Absent ids are ignored.
func (a *ActionTable) Update(id types.ActionID, patch func(*types.Action)) bool {
	return a.t.update(id, patch)
}

func (a *ActionTable) Get(id types.ActionID) (types.Action, bool) { return a.t.get(id) }
func (a *ActionTable) Values() []types.Action                    { return a.t.values() }
func (a *ActionTable) Len() int                                  { return a.t.len() }
func (a *ActionTable) Delete(id types.ActionID) bool             { return a.t.delete(id) }
func (a *ActionTable) Clear()                                    { a.t.clear() }

// ByRun returns the actions of one run in insertion order.
func (a *ActionTable) ByRun(runID types.RunID) []types.Action {
	var out []types.Action
	for _, action := range a.t.values() {
		if action.RunID == runID {
			out = append(out, action)
		}
	}
	return out
}

// Subscribe registers fn for every committed change.
func (a *ActionTable) Subscribe(fn Observer[types.ActionID, types.Action]) types.SubscriptionID {
	return a.t.subscribe(fn)
}

func (a *ActionTable) Unsubscribe(id types.SubscriptionID) bool { return a.t.unsubscribe(id) }
