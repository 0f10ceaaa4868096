package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

func productsSource(t *testing.T) schema.Source {
	t.Helper()
	src, ok := schema.SourceByKey(schema.SourceProducts)
	if !ok {
		t.Fatal("products source not registered")
	}
	return src
}

func TestExtract_Basic(t *testing.T) {
	input := "\xEF\xBB\xBFproduct_id,product_name,category,price,stock_quantity,warehouse\n" +
		"P001,Samsung Galaxy S21,Electronics,45999.00,150,BLR\n" +
		"\n" +
		"P002, Nike Shoes ,Fashion,3499.00,80,DEL\n"

	ext, err := Extract(context.Background(), productsSource(t), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(ext.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(ext.Records))
	}
	if ext.Processed() != 2 {
		t.Errorf("Processed() = %d, want 2", ext.Processed())
	}

	first := ext.Records[0]
	if first.Get("product_id") != "P001" {
		t.Errorf("product_id = %q, want P001 (BOM must be stripped)", first.Get("product_id"))
	}
	if first.Line() != 2 {
		t.Errorf("Line() = %d, want 2", first.Line())
	}
	if first.Source() != schema.SourceProducts {
		t.Errorf("Source() = %q", first.Source())
	}
	if _, ok := first.Raw()["warehouse"]; ok {
		t.Error("extra columns should be ignored")
	}

	second := ext.Records[1]
	if second.Line() != 4 {
		t.Errorf("second Line() = %d, want 4", second.Line())
	}
	if second.Get("product_name") != "Nike Shoes" {
		t.Errorf("product_name = %q, want trimmed", second.Get("product_name"))
	}
}

func TestExtract_HeaderAfterPreamble(t *testing.T) {
	input := "FlexiMart product export\n" +
		"generated,2024-01-01\n" +
		"PRODUCT_ID,Product_Name,Category,Price,Stock_Quantity\n" +
		"P001,Rice,Groceries,650,300\n"

	ext, err := Extract(context.Background(), productsSource(t), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(ext.Records) != 1 || ext.Records[0].Get("price") != "650" {
		t.Fatalf("records = %+v", ext.Records)
	}
}

func TestExtract_MissingColumn(t *testing.T) {
	input := "product_id,product_name,price,stock_quantity\nP001,Rice,650,300\n"

	_, err := Extract(context.Background(), productsSource(t), strings.NewReader(input))
	if err == nil {
		t.Fatal("Extract() expected schema mismatch")
	}
	if KindOf(err) != KindSchemaMismatch {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindSchemaMismatch)
	}
	if !strings.Contains(err.Error(), "category") {
		t.Errorf("error should name the missing column: %v", err)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	_, err := Extract(context.Background(), productsSource(t), strings.NewReader(""))
	if KindOf(err) != KindSchemaMismatch {
		t.Errorf("empty input: KindOf() = %v, want schema mismatch", KindOf(err))
	}
}

func TestExtract_ShortRowRejected(t *testing.T) {
	input := "product_id,product_name,category,price,stock_quantity\n" +
		"P001,Rice,Groceries\n" +
		"P002,Oil,Groceries,180,40\n"

	ext, err := Extract(context.Background(), productsSource(t), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(ext.Records) != 1 {
		t.Errorf("got %d records, want 1", len(ext.Records))
	}
	if len(ext.Rejections) != 1 {
		t.Fatalf("got %d rejections, want 1", len(ext.Rejections))
	}
	rej := ext.Rejections[0]
	if rej.Reason != ReasonMalformedRow || rej.Kind != KindMalformedInput || rej.Line != 2 {
		t.Errorf("rejection = %+v", rej)
	}
	if ext.Processed() != 2 {
		t.Errorf("Processed() = %d, want 2", ext.Processed())
	}
}

func TestExtract_InvalidUTF8(t *testing.T) {
	input := "product_id,product_name,category,price,stock_quantity\n" +
		"P001,Caf\xe9 Beans,Groceries,300,10\n"

	ext, err := Extract(context.Background(), productsSource(t), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := ext.Records[0].Get("product_name"); got != "Caf� Beans" {
		t.Errorf("product_name = %q", got)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, productsSource(t), strings.NewReader("product_id\n"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
}

func TestRawRecord_Immutable(t *testing.T) {
	rec := NewRawRecord(schema.SourceProducts, 3, map[string]string{"Product_ID": "P001"})

	raw := rec.Raw()
	raw["product_id"] = "changed"

	if rec.Get("product_id") != "P001" {
		t.Errorf("record mutated through Raw(): %q", rec.Get("product_id"))
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"valid UTF-8 unchanged", []byte("hello"), []byte("hello")},
		{"empty input", []byte{}, []byte{}},
		{"invalid byte replaced", []byte{'a', 0x80, 'b'}, []byte("a�b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeUTF8(tt.input); string(got) != string(tt.want) {
				t.Errorf("sanitizeUTF8() = %q, want %q", got, tt.want)
			}
		})
	}
}
