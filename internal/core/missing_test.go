package core

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
)

func product(line int, sku, name, price string, stock pgtype.Int4) *Product {
	return &Product{
		Base:          Base{Source: "products", Line: line},
		SKU:           sku,
		Name:          ToPgText(name),
		Category:      ToPgText("Electronics"),
		Price:         ToPgNumeric(price),
		StockQuantity: stock,
	}
}

func int4(v int32) pgtype.Int4 { return pgtype.Int4{Int32: v, Valid: true} }

func newTestResolver(t *testing.T, rules config.Rules) *Resolver {
	t.Helper()
	r, err := NewResolver(rules)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r
}

func TestResolve_DropDefaultImpute(t *testing.T) {
	products := []Entity{
		product(2, "P001", "Phone", "100", int4(10)),
		product(3, "P002", "Laptop", "", int4(30)),
		product(4, "P003", "", "999999", int4(5)), // dropped: no name
		product(5, "P004", "Tablet", "300", pgtype.Int4{}),
		product(6, "P005", "Watch", "200", int4(21)),
	}
	products[1].(*Product).Category = pgtype.Text{}

	res := newTestResolver(t, config.DefaultRules()).Resolve("products", products)

	if len(res.Dropped) != 1 || res.Dropped[0].Line != 4 || res.Dropped[0].Reason != ReasonMissingRequired {
		t.Fatalf("Dropped = %+v", res.Dropped)
	}
	if len(res.Kept) != 4 {
		t.Fatalf("Kept = %d, want 4", len(res.Kept))
	}
	if res.Handled != 3 {
		t.Errorf("Handled = %d, want 3", res.Handled)
	}

	// Median over survivors only: prices [100 300 200] -> 200; the dropped
	// record's 999999 must not count.
	laptop := res.Kept[1].(*Product)
	if FormatNumeric(laptop.Price) != "200.00" {
		t.Errorf("imputed price = %s, want 200.00", FormatNumeric(laptop.Price))
	}
	if laptop.Category.String != "Uncategorized" {
		t.Errorf("default category = %q", laptop.Category.String)
	}

	// stock [10 30 21] -> 21
	tablet := res.Kept[2].(*Product)
	if tablet.StockQuantity.Int32 != 21 {
		t.Errorf("imputed stock = %d, want 21", tablet.StockQuantity.Int32)
	}
}

func TestResolve_AggregateComputedBeforeFill(t *testing.T) {
	products := []Entity{
		product(2, "P001", "A", "", int4(1)),
		product(3, "P002", "B", "10", int4(1)),
		product(4, "P003", "C", "", int4(1)),
		product(5, "P004", "D", "30", int4(1)),
	}

	res := newTestResolver(t, config.DefaultRules()).Resolve("products", products)

	for _, i := range []int{0, 2} {
		if got := FormatNumeric(res.Kept[i].(*Product).Price); got != "20.00" {
			t.Errorf("Kept[%d] price = %s, want 20.00", i, got)
		}
	}
	if res.Aggregates["price"] != 20 {
		t.Errorf("Aggregates[price] = %v, want 20", res.Aggregates["price"])
	}
}

func TestResolve_MeanAggregate(t *testing.T) {
	rules, err := config.ParseRules([]byte("missing: {products: {price: {policy: impute, aggregate: mean}}}"))
	if err != nil {
		t.Fatal(err)
	}
	products := []Entity{
		product(2, "P001", "A", "10", int4(1)),
		product(3, "P002", "B", "20", int4(1)),
		product(4, "P003", "C", "60", int4(1)),
		product(5, "P004", "D", "", int4(1)),
	}

	res := newTestResolver(t, rules).Resolve("products", products)
	if got := FormatNumeric(res.Kept[3].(*Product).Price); got != "30.00" {
		t.Errorf("mean price = %s, want 30.00", got)
	}
}

func TestResolve_DefaultExpandsID(t *testing.T) {
	c := customer(2, "C003", "", "")

	res := newTestResolver(t, config.DefaultRules()).Resolve("customers", []Entity{c})

	if len(res.Kept) != 1 {
		t.Fatalf("Kept = %d", len(res.Kept))
	}
	if c.Email.String != "unknown_email_C003" {
		t.Errorf("Email = %q", c.Email.String)
	}
	if c.NaturalKey() != "unknown_email_c003" {
		t.Errorf("NaturalKey() = %q", c.NaturalKey())
	}
	if res.Handled != 1 {
		t.Errorf("Handled = %d, want 1 (phone has no policy)", res.Handled)
	}
}

func TestResolve_NothingToImpute(t *testing.T) {
	products := []Entity{
		product(2, "P001", "A", "", int4(1)),
		product(3, "P002", "B", "", int4(2)),
	}

	res := newTestResolver(t, config.DefaultRules()).Resolve("products", products)

	if len(res.Kept) != 0 || len(res.Dropped) != 2 {
		t.Fatalf("Kept=%d Dropped=%d, want 0/2", len(res.Kept), len(res.Dropped))
	}
	if !strings.Contains(res.Dropped[0].Detail, "price") {
		t.Errorf("Detail = %q", res.Dropped[0].Detail)
	}
	if res.Handled != 0 {
		t.Errorf("Handled = %d, want 0", res.Handled)
	}
}

func TestNewResolver_InvalidPolicies(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown field", "missing: {products: {colour: {policy: drop}}}", "products.colour"},
		{"impute on text", "missing: {customers: {city: {policy: impute, aggregate: median}}}", "numeric"},
		{"bad default type", "missing: {sales: {quantity: {policy: default, value: many}}}", "does not fit"},
		{"unknown source", "missing: {returns: {reason: {policy: drop}}}", "unknown source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := config.ParseRules([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("ParseRules() error = %v", err)
			}
			_, err = NewResolver(rules)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewResolver() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestAggregate_Median(t *testing.T) {
	tests := []struct {
		values []float64
		want   float64
	}{
		{[]float64{5}, 5},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		if got := aggregate(tt.values, config.AggregateMedian); got != tt.want {
			t.Errorf("median(%v) = %v, want %v", tt.values, got, tt.want)
		}
	}
}
