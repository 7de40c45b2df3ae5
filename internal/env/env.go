// internal/env/env.go
package env

import "tova/internal/strpool"

// Env is the scoped symbol table shared by the type checker and both
// evaluators, each instantiating it over its own value type.
//
// It is a flat append-only vector of entries; each entry points at the
// previous entry visible from its scope, forming a reversed tree. A scope id
// names a tail into that vector, so two child scopes of the same parent have
// independent tails and entries are never removed.
type Env[V any] struct {
	entries []*entry[V]
	scopes  []entryID
}

type entry[V any] struct {
	name  strpool.StrID
	value V
	prev  entryID
}

type entryID int

const noEntry entryID = -1

// ScopeID identifies one scope. The zero value is the root scope.
type ScopeID int

const RootScopeID ScopeID = 0

func New[V any]() *Env[V] {
	return &Env[V]{
		scopes: []entryID{noEntry},
	}
}

// CreateChildScope makes a new scope whose lookups start at the parent's
// current tail.
func (e *Env[V]) CreateChildScope(parent ScopeID) ScopeID {
	e.scopes = append(e.scopes, e.scopes[parent])
	return ScopeID(len(e.scopes) - 1)
}

// Insert binds name in scope. It never replaces: a later insert of the same
// name shadows earlier entries for lookups through this scope. The returned
// pointer stays valid for the environment's lifetime.
func (e *Env[V]) Insert(scope ScopeID, name strpool.StrID, value V) *V {
	e.entries = append(e.entries, &entry[V]{
		name:  name,
		value: value,
		prev:  e.scopes[scope],
	})
	id := entryID(len(e.entries) - 1)
	e.scopes[scope] = id
	return &e.entries[id].value
}

// Find walks the scope's chain innermost-first and returns the value bound
// to name, or nil when the name is unbound. The returned pointer stays valid
// for the environment's lifetime.
func (e *Env[V]) Find(scope ScopeID, name strpool.StrID) *V {
	for cur := e.scopes[scope]; cur != noEntry; cur = e.entries[cur].prev {
		if e.entries[cur].name == name {
			return &e.entries[cur].value
		}
	}
	return nil
}
