package core

import (
	"errors"
	"fmt"
)

// ErrKeyMapFrozen is returned by mutations after Freeze.
var ErrKeyMapFrozen = errors.New("key map is read-only")

// KeyMap assigns surrogate keys per entity type and resolves natural keys
// (and registered aliases) back to them. Keys start at 1 and increase in
// assignment order, so identical input order yields identical keys.
type KeyMap struct {
	spaces map[EntityType]*keySpace
	frozen bool
}

type keySpace struct {
	next    int64
	keys    map[string]int64
	aliases map[string]int64
}

// NewKeyMap returns an empty KeyMap.
func NewKeyMap() *KeyMap {
	return &KeyMap{spaces: make(map[EntityType]*keySpace)}
}

func (m *KeyMap) space(t EntityType) *keySpace {
	s, ok := m.spaces[t]
	if !ok {
		s = &keySpace{keys: make(map[string]int64), aliases: make(map[string]int64)}
		m.spaces[t] = s
	}
	return s
}

// Assign gives naturalKey the next surrogate key of type t. A natural key
// that already has a surrogate is an integrity violation.
func (m *KeyMap) Assign(t EntityType, naturalKey string) (int64, error) {
	if m.frozen {
		return 0, ErrKeyMapFrozen
	}
	s := m.space(t)
	if existing, ok := s.keys[naturalKey]; ok {
		return existing, &Error{
			Kind: KindIntegrityViolation,
			Key:  naturalKey,
			Err:  fmt.Errorf("%s natural key already has surrogate %d", t, existing),
		}
	}
	s.next++
	s.keys[naturalKey] = s.next
	return s.next, nil
}

// Alias makes alias resolve to the surrogate of naturalKey. The first
// registration of an alias wins; a conflicting one returns an error and
// leaves the map unchanged.
func (m *KeyMap) Alias(t EntityType, alias, naturalKey string) error {
	if m.frozen {
		return ErrKeyMapFrozen
	}
	s := m.space(t)
	sk, ok := s.keys[naturalKey]
	if !ok {
		return fmt.Errorf("alias %q: %s natural key %q has no surrogate", alias, t, naturalKey)
	}
	if prev, ok := s.aliases[alias]; ok && prev != sk {
		return &Error{
			Kind: KindIntegrityViolation,
			Key:  alias,
			Err:  fmt.Errorf("%s alias already resolves to surrogate %d", t, prev),
		}
	}
	s.aliases[alias] = sk
	return nil
}

// Lookup resolves a natural key or alias of type t.
func (m *KeyMap) Lookup(t EntityType, key string) (int64, bool) {
	s, ok := m.spaces[t]
	if !ok {
		return 0, false
	}
	if sk, ok := s.keys[key]; ok {
		return sk, true
	}
	sk, ok := s.aliases[key]
	return sk, ok
}

// Len returns the number of natural keys of type t.
func (m *KeyMap) Len(t EntityType) int {
	if s, ok := m.spaces[t]; ok {
		return len(s.keys)
	}
	return 0
}

// Freeze makes the map read-only.
func (m *KeyMap) Freeze() { m.frozen = true }

// Frozen reports whether Freeze was called.
func (m *KeyMap) Frozen() bool { return m.frozen }

// AssignKeys gives every entity its surrogate key, in order. For customers
// the raw id and merged ids are registered as aliases; for orders the line
// item receives its own key. Entities whose natural key collides are
// rejected with ReasonDuplicateKey. Alias conflicts are returned as warnings.
func AssignKeys(m *KeyMap, entities []Entity) (kept []Entity, rejected []Rejection, warnings []error) {
	for _, e := range entities {
		sk, err := m.Assign(e.Type(), e.NaturalKey())
		if err != nil {
			rejected = append(rejected, reject(e, ReasonDuplicateKey, err.Error()))
			continue
		}
		e.Meta().SurrogateKey.Int64, e.Meta().SurrogateKey.Valid = sk, true

		switch v := e.(type) {
		case *Customer:
			for _, alias := range append([]string{v.CustomerID}, v.Aliases...) {
				if err := m.Alias(TypeCustomer, alias, v.NaturalKey()); err != nil {
					warnings = append(warnings, err)
				}
			}
		case *Product:
		case *Order:
			if v.Item != nil {
				itemKey, err := m.Assign(TypeOrderItem, v.Item.NaturalKey())
				if err != nil {
					warnings = append(warnings, err)
				} else {
					v.Item.SurrogateKey.Int64, v.Item.SurrogateKey.Valid = itemKey, true
				}
			}
		case *OrderItem:
		}
		kept = append(kept, e)
	}
	return kept, rejected, warnings
}
