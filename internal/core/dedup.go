package core

import "fmt"

// DedupResult holds the survivors of deduplication and the eliminated records.
type DedupResult struct {
	Kept    []Entity
	Removed []Rejection
}

// Deduplicate keeps one entity per natural key, in first-seen order.
//
// When two entities share a natural key the later one replaces the kept one
// only if it has strictly fewer missing fields; ties keep the earlier record.
// The survivor takes the position of the first occurrence. Customers merged
// this way remember the loser's raw id as an alias.
//
// A customer without an email is keyed by its raw id, so it also matches a
// kept customer that already owns that id (directly or as an alias).
func Deduplicate(entities []Entity) DedupResult {
	var res DedupResult
	pos := make(map[string]int, len(entities))
	// raw customer ids and aliases of kept customers
	ids := make(map[string]int)

	for _, e := range entities {
		key := e.NaturalKey()
		i, seen := pos[key]
		if !seen {
			i, seen = ownerOf(e, res.Kept, ids)
		}
		if !seen {
			pos[key] = len(res.Kept)
			indexCustomerIDs(ids, e, len(res.Kept))
			res.Kept = append(res.Kept, e)
			continue
		}

		kept := res.Kept[i]
		winner, loser := kept, e
		if MissingFields(e) < MissingFields(kept) {
			winner, loser = e, kept
			res.Kept[i] = e
		}

		if m, ok := winner.(interface{ absorb(Entity) }); ok {
			m.absorb(loser)
		}
		pos[key] = i
		pos[winner.NaturalKey()] = i
		indexCustomerIDs(ids, winner, i)

		res.Removed = append(res.Removed, reject(loser, ReasonDuplicate,
			fmt.Sprintf("duplicate of line %d", winner.Meta().Line)))
	}

	return res
}

// ownerOf finds the kept customer owning e's raw id. Two customers with
// different emails never match this way.
func ownerOf(e Entity, kept []Entity, ids map[string]int) (int, bool) {
	c, ok := e.(*Customer)
	if !ok {
		return 0, false
	}
	i, ok := ids[c.CustomerID]
	if !ok {
		return 0, false
	}
	if owner := kept[i].(*Customer); c.Email.Valid && owner.Email.Valid {
		return 0, false
	}
	return i, true
}

func indexCustomerIDs(ids map[string]int, e Entity, i int) {
	c, ok := e.(*Customer)
	if !ok {
		return
	}
	if _, taken := ids[c.CustomerID]; !taken {
		ids[c.CustomerID] = i
	}
	for _, alias := range c.Aliases {
		if _, taken := ids[alias]; !taken {
			ids[alias] = i
		}
	}
}
