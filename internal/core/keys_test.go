package core

import (
	"errors"
	"testing"
)

func TestKeyMap_AssignMonotonicPerType(t *testing.T) {
	m := NewKeyMap()

	for i, key := range []string{"a", "b", "c"} {
		sk, err := m.Assign(TypeCustomer, key)
		if err != nil {
			t.Fatalf("Assign(%q) error = %v", key, err)
		}
		if sk != int64(i+1) {
			t.Errorf("Assign(%q) = %d, want %d", key, sk, i+1)
		}
	}

	sk, _ := m.Assign(TypeProduct, "a")
	if sk != 1 {
		t.Errorf("product key space should start at 1, got %d", sk)
	}
	if m.Len(TypeCustomer) != 3 || m.Len(TypeProduct) != 1 || m.Len(TypeOrder) != 0 {
		t.Errorf("Len = %d/%d/%d", m.Len(TypeCustomer), m.Len(TypeProduct), m.Len(TypeOrder))
	}
}

func TestKeyMap_DuplicateNaturalKey(t *testing.T) {
	m := NewKeyMap()
	first, _ := m.Assign(TypeOrder, "T001")

	sk, err := m.Assign(TypeOrder, "T001")
	if KindOf(err) != KindIntegrityViolation {
		t.Fatalf("Assign duplicate error = %v, want integrity violation", err)
	}
	if sk != first {
		t.Errorf("duplicate returned %d, want existing %d", sk, first)
	}
	if m.Len(TypeOrder) != 1 {
		t.Errorf("Len = %d, want 1", m.Len(TypeOrder))
	}
}

func TestKeyMap_Alias(t *testing.T) {
	m := NewKeyMap()
	sk, _ := m.Assign(TypeCustomer, "rahul@gmail.com")
	other, _ := m.Assign(TypeCustomer, "priya@gmail.com")

	if err := m.Alias(TypeCustomer, "C001", "rahul@gmail.com"); err != nil {
		t.Fatalf("Alias() error = %v", err)
	}
	if got, ok := m.Lookup(TypeCustomer, "C001"); !ok || got != sk {
		t.Errorf("Lookup(C001) = %d/%v, want %d", got, ok, sk)
	}

	err := m.Alias(TypeCustomer, "C001", "priya@gmail.com")
	if KindOf(err) != KindIntegrityViolation {
		t.Errorf("conflicting alias error = %v", err)
	}
	if got, _ := m.Lookup(TypeCustomer, "C001"); got == other {
		t.Error("first alias registration must win")
	}

	if err := m.Alias(TypeCustomer, "C404", "nobody@x.com"); err == nil {
		t.Error("alias to unknown natural key should fail")
	}
}

func TestKeyMap_Freeze(t *testing.T) {
	m := NewKeyMap()
	m.Assign(TypeProduct, "P001")
	m.Freeze()

	if _, err := m.Assign(TypeProduct, "P002"); !errors.Is(err, ErrKeyMapFrozen) {
		t.Errorf("Assign after Freeze error = %v", err)
	}
	if err := m.Alias(TypeProduct, "x", "P001"); !errors.Is(err, ErrKeyMapFrozen) {
		t.Errorf("Alias after Freeze error = %v", err)
	}
	if _, ok := m.Lookup(TypeProduct, "P001"); !ok {
		t.Error("Lookup must keep working after Freeze")
	}
	if !m.Frozen() {
		t.Error("Frozen() = false")
	}
}

func TestKeyMap_LookupUnknownType(t *testing.T) {
	if _, ok := NewKeyMap().Lookup(TypeOrderItem, "x"); ok {
		t.Error("Lookup on empty map should miss")
	}
}

func TestAssignKeys_Deterministic(t *testing.T) {
	build := func() []Entity {
		a := customer(2, "C001", "a@x.com", "")
		a.Aliases = []string{"C009"}
		return []Entity{a, customer(3, "C002", "b@x.com", ""), customer(4, "C003", "c@x.com", "")}
	}

	m1, m2 := NewKeyMap(), NewKeyMap()
	kept1, _, _ := AssignKeys(m1, build())
	kept2, _, _ := AssignKeys(m2, build())

	for i := range kept1 {
		k1 := kept1[i].Meta().SurrogateKey
		k2 := kept2[i].Meta().SurrogateKey
		if !k1.Valid || k1 != k2 || k1.Int64 != int64(i+1) {
			t.Errorf("entity %d keys %v / %v", i, k1, k2)
		}
	}

	if sk, ok := m1.Lookup(TypeCustomer, "C009"); !ok || sk != 1 {
		t.Errorf("merged alias C009 = %d/%v, want 1", sk, ok)
	}
}

func TestAssignKeys_OrderItems(t *testing.T) {
	o := &Order{
		Base:          Base{Source: "sales", Line: 2},
		TransactionID: "T001",
		Item:          &OrderItem{OrderRef: "T001", ProductRef: ToPgText("P001")},
	}
	dup := &Order{Base: Base{Source: "sales", Line: 3}, TransactionID: "T001"}

	m := NewKeyMap()
	kept, rejected, _ := AssignKeys(m, []Entity{o, dup})

	if len(kept) != 1 || len(rejected) != 1 {
		t.Fatalf("kept=%d rejected=%d", len(kept), len(rejected))
	}
	if rejected[0].Reason != ReasonDuplicateKey || rejected[0].Kind != KindIntegrityViolation {
		t.Errorf("rejection = %+v", rejected[0])
	}
	if !o.Item.SurrogateKey.Valid || o.Item.SurrogateKey.Int64 != 1 {
		t.Errorf("item key = %+v", o.Item.SurrogateKey)
	}
	if _, ok := m.Lookup(TypeOrderItem, "T001/P001"); !ok {
		t.Error("item natural key not registered")
	}
}
