package core

// loader.go writes entity batches through the Store port in dependency order.
//
// Foreign references are resolved through the frozen KeyMap and must point at
// a row committed earlier in the same run. An unresolved reference rejects
// that record only. A failing batch is rolled back by the store and fails the
// run; batches of earlier types stay committed.

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// Batch is the complete set of rows of one entity type. Rows follow the
// column order of Table; Keys holds the natural key of each row.
type Batch struct {
	Type  EntityType
	Table schema.Table
	Rows  [][]any
	Keys  []string
}

// Store is the destination of the loader. LoadBatch must write the whole
// batch atomically. Transient failures are reported as KindStorageUnavailable
// errors; anything else is not retried.
type Store interface {
	Reset(ctx context.Context) error
	LoadBatch(ctx context.Context, b Batch) (int64, error)
}

// LoadOutcome is the result of loading one entity type.
type LoadOutcome struct {
	Type     EntityType
	Loaded   []Entity
	Rejected []Rejection
	// Err is set when the batch failed; Rejected then also holds every
	// record of the batch with ReasonBatchFailed.
	Err error
}

// Loader loads batches and tracks which surrogate keys are committed.
type Loader struct {
	store     Store
	keys      *KeyMap
	retry     RetryConfig
	committed map[EntityType]map[int64]bool
}

// NewLoader creates a loader. keys should be frozen.
func NewLoader(store Store, keys *KeyMap, retry RetryConfig) *Loader {
	return &Loader{
		store:     store,
		keys:      keys,
		retry:     retry,
		committed: make(map[EntityType]map[int64]bool),
	}
}

// Reset empties the destination tables.
func (l *Loader) Reset(ctx context.Context) error {
	return Retry(ctx, l.retry, l.store.Reset)
}

// Load writes entities of type t as one batch.
func (l *Loader) Load(ctx context.Context, t EntityType, entities []Entity) LoadOutcome {
	out := LoadOutcome{Type: t}
	batch := Batch{Type: t, Table: t.Table()}
	var pending []Entity

	for _, e := range entities {
		row, unresolved := l.row(e)
		if unresolved != "" {
			out.Rejected = append(out.Rejected, reject(e, ReasonUnresolvedReference, unresolved))
			continue
		}
		batch.Rows = append(batch.Rows, row)
		batch.Keys = append(batch.Keys, e.NaturalKey())
		pending = append(pending, e)
	}

	if len(batch.Rows) == 0 {
		return out
	}

	err := Retry(ctx, l.retry, func(ctx context.Context) error {
		_, err := l.store.LoadBatch(ctx, batch)
		return err
	})
	if err != nil {
		kind := KindOf(err)
		if kind == KindNone {
			kind = KindStorageUnavailable
		}
		for _, e := range pending {
			r := reject(e, ReasonBatchFailed, err.Error())
			r.Kind = kind
			out.Rejected = append(out.Rejected, r)
		}
		out.Err = fmt.Errorf("load %s: %w", batch.Table.Name, err)
		return out
	}

	done := l.committed[t]
	if done == nil {
		done = make(map[int64]bool, len(pending))
		l.committed[t] = done
	}
	for _, e := range pending {
		done[e.Meta().SurrogateKey.Int64] = true
	}
	out.Loaded = pending
	return out
}

// Committed reports whether the entity of type t with natural key (or alias)
// key was loaded in this run.
func (l *Loader) Committed(t EntityType, key string) (int64, bool) {
	sk, ok := l.keys.Lookup(t, key)
	if !ok || !l.committed[t][sk] {
		return 0, false
	}
	return sk, true
}

// row builds the COPY row of e. unresolved describes the first foreign
// reference that is not committed.
func (l *Loader) row(e Entity) (row []any, unresolved string) {
	sk := e.Meta().SurrogateKey.Int64

	switch v := e.(type) {
	case *Customer:
		return []any{sk, v.FirstName, v.LastName, v.Email, v.Phone, v.City, v.RegistrationDate}, ""

	case *Product:
		return []any{sk, v.SKU, v.Name, v.Category, v.Price, v.StockQuantity}, ""

	case *Order:
		customer, ok := l.Committed(TypeCustomer, v.CustomerRef.String)
		if !ok {
			return nil, fmt.Sprintf("customer %q not loaded", v.CustomerRef.String)
		}
		// An order is only useful with its line item, so its product must load too.
		if v.Item != nil {
			if _, ok := l.Committed(TypeProduct, v.Item.ProductRef.String); !ok {
				return nil, fmt.Sprintf("product %q not loaded", v.Item.ProductRef.String)
			}
		}
		return []any{sk, v.TransactionID, customer, v.OrderDate, v.TotalAmount(), v.Status}, ""

	case *OrderItem:
		order, ok := l.Committed(TypeOrder, v.OrderRef)
		if !ok {
			return nil, fmt.Sprintf("order %q not loaded", v.OrderRef)
		}
		product, ok := l.Committed(TypeProduct, v.ProductRef.String)
		if !ok {
			return nil, fmt.Sprintf("product %q not loaded", v.ProductRef.String)
		}
		return []any{sk, order, product, v.Quantity, v.UnitPrice, v.Subtotal()}, ""

	default:
		return nil, "unsupported entity"
	}
}
