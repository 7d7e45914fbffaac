// internal/state/table.go
package state

import (
	"slices"
	"sync"

	"github.com/user/clawmon/internal/types"
)

// ChangeKind names the mutation carried by a Change.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change describes one committed mutation. Previous is the zero value for
// inserts; Value is the removed record for deletes.
type Change[K comparable, V any] struct {
	Kind     ChangeKind
	Key      K
	Value    V
	Previous V
}

// Observer receives the changes of one mutating call, in order, after the
// mutation is committed and before the call returns.
type Observer[K comparable, V any] func(changes []Change[K, V])

type subscriber[K comparable, V any] struct {
	id types.SubscriptionID
	fn Observer[K, V]
}

// table is an insertion-ordered keyed collection with synchronous change
// notification. Stored values are copied in and out through clone so callers
// can never alias table memory.
type table[K comparable, V any] struct {
	mu    sync.RWMutex
	index map[K]V
	order []K
	clone func(V) V

	subsMu sync.Mutex
	subs   []subscriber[K, V]
}

func newTable[K comparable, V any](clone func(V) V) *table[K, V] {
	return &table[K, V]{
		index: make(map[K]V),
		clone: clone,
	}
}

func (t *table[K, V]) get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.index[key]
	if !ok {
		return v, false
	}
	return t.clone(v), true
}

func (t *table[K, V]) values() []V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]V, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.clone(t.index[k]))
	}
	return out
}

func (t *table[K, V]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

// insert stores v under key unless the key is already present.
func (t *table[K, V]) insert(key K, v V) bool {
	t.mu.Lock()
	if _, ok := t.index[key]; ok {
		t.mu.Unlock()
		return false
	}
	t.index[key] = t.clone(v)
	t.order = append(t.order, key)
	change := Change[K, V]{Kind: ChangeInsert, Key: key, Value: t.clone(v)}
	t.mu.Unlock()

	t.notify([]Change[K, V]{change})
	return true
}

// upsert calls merge with the current record (or the zero value and
// exists=false) and stores the result.
func (t *table[K, V]) upsert(key K, merge func(cur *V, exists bool)) {
	t.mu.Lock()
	cur, exists := t.index[key]
	var change Change[K, V]
	if exists {
		change = Change[K, V]{Kind: ChangeUpdate, Key: key, Previous: t.clone(cur)}
	} else {
		change = Change[K, V]{Kind: ChangeInsert, Key: key}
		t.order = append(t.order, key)
	}
	merge(&cur, exists)
	t.index[key] = cur
	change.Value = t.clone(cur)
	t.mu.Unlock()

	t.notify([]Change[K, V]{change})
}

// update patches the record under key in place. It is a no-op returning
// false when the key is absent.
func (t *table[K, V]) update(key K, patch func(cur *V)) bool {
	t.mu.Lock()
	cur, ok := t.index[key]
	if !ok {
		t.mu.Unlock()
		return false
	}
	prev := t.clone(cur)
	patch(&cur)
	t.index[key] = cur
	change := Change[K, V]{Kind: ChangeUpdate, Key: key, Value: t.clone(cur), Previous: prev}
	t.mu.Unlock()

	t.notify([]Change[K, V]{change})
	return true
}

func (t *table[K, V]) delete(key K) bool {
	t.mu.Lock()
	cur, ok := t.index[key]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.index, key)
	if i := slices.Index(t.order, key); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	t.mu.Unlock()

	t.notify([]Change[K, V]{{Kind: ChangeDelete, Key: key, Value: cur}})
	return true
}

func (t *table[K, V]) clear() {
	t.mu.Lock()
	changes := t.clearLocked()
	t.mu.Unlock()
	t.notify(changes)
}

// clearLocked empties the table and returns one delete change per record in
// insertion order. Caller must hold t.mu.
func (t *table[K, V]) clearLocked() []Change[K, V] {
	changes := make([]Change[K, V], 0, len(t.order))
	for _, k := range t.order {
		changes = append(changes, Change[K, V]{Kind: ChangeDelete, Key: k, Value: t.index[k]})
	}
	t.index = make(map[K]V)
	t.order = nil
	return changes
}

func (t *table[K, V]) subscribe(fn Observer[K, V]) types.SubscriptionID {
	id := types.NewSubscriptionID()
	t.subsMu.Lock()
	t.subs = append(t.subs, subscriber[K, V]{id: id, fn: fn})
	t.subsMu.Unlock()
	return id
}

func (t *table[K, V]) unsubscribe(id types.SubscriptionID) bool {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	for i, s := range t.subs {
		if s.id == id {
			t.subs = slices.Delete(t.subs, i, i+1)
			return true
		}
	}
	return false
}

// notify runs outside t.mu so observers may read the table.
func (t *table[K, V]) notify(changes []Change[K, V]) {
	if len(changes) == 0 {
		return
	}
	t.subsMu.Lock()
	subs := slices.Clone(t.subs)
	t.subsMu.Unlock()
	for _, s := range subs {
		s.fn(changes)
	}
}
