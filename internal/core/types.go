package core

// types.go defines the closed set of entity types produced by the pipeline.
//
// Every entity embeds Base (audit origin plus surrogate key) and exposes its
// typed fields by raw column name, so policies configured per column apply
// uniformly. A field is missing when its pgtype Valid flag is false.

import (
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// EntityType identifies one of the four entity kinds.
type EntityType int

const (
	TypeCustomer EntityType = iota
	TypeProduct
	TypeOrder
	TypeOrderItem
)

// LoadOrder is the dependency order entities are loaded in.
var LoadOrder = []EntityType{TypeCustomer, TypeProduct, TypeOrder, TypeOrderItem}

func (t EntityType) String() string {
	switch t {
	case TypeCustomer:
		return "customer"
	case TypeProduct:
		return "product"
	case TypeOrder:
		return "order"
	case TypeOrderItem:
		return "order_item"
	default:
		return "unknown"
	}
}

// Table returns the destination table for the entity type.
func (t EntityType) Table() schema.Table {
	switch t {
	case TypeCustomer:
		return schema.CustomersTable
	case TypeProduct:
		return schema.ProductsTable
	case TypeOrder:
		return schema.OrdersTable
	default:
		return schema.OrderItemsTable
	}
}

// Source returns the raw source the entity type is derived from.
func (t EntityType) Source() string {
	switch t {
	case TypeCustomer:
		return schema.SourceCustomers
	case TypeProduct:
		return schema.SourceProducts
	default:
		return schema.SourceSales
	}
}

// Entity is implemented only by *Customer, *Product, *Order and *OrderItem.
type Entity interface {
	Type() EntityType
	// NaturalKey is the business identity used for deduplication and lookups.
	NaturalKey() string
	Meta() *Base

	// fields maps raw column names to pointers of the typed values.
	fields() map[string]any
	// sourceID is the raw identifier column value, used for "{id}" defaults.
	sourceID() string
}

// Base is the shape shared by all entities.
type Base struct {
	Source       string
	Line         int
	SurrogateKey pgtype.Int8

	raw map[string]string
}

func (b *Base) Meta() *Base { return b }

// RawValues returns a copy of the raw input the entity was built from.
func (b *Base) RawValues() map[string]string {
	return maps.Clone(b.raw)
}

// Customer is a cleaned customers row.
type Customer struct {
	Base
	CustomerID string
	// Aliases are raw customer ids of duplicates merged into this customer.
	Aliases []string

	FirstName        pgtype.Text
	LastName         pgtype.Text
	Email            pgtype.Text
	Phone            pgtype.Text
	City             pgtype.Text
	RegistrationDate pgtype.Date
}

func (c *Customer) Type() EntityType { return TypeCustomer }

// NaturalKey is the lower-cased email, or the raw id when email is missing.
func (c *Customer) NaturalKey() string {
	if c.Email.Valid {
		return strings.ToLower(c.Email.String)
	}
	return "id:" + c.CustomerID
}

func (c *Customer) sourceID() string { return c.CustomerID }

func (c *Customer) fields() map[string]any {
	return map[string]any{
		"first_name":        &c.FirstName,
		"last_name":         &c.LastName,
		"email":             &c.Email,
		"phone":             &c.Phone,
		"city":              &c.City,
		"registration_date": &c.RegistrationDate,
	}
}

// absorb records a merged duplicate's ids as aliases.
func (c *Customer) absorb(other Entity) {
	o, ok := other.(*Customer)
	if !ok {
		return
	}
	for _, id := range append([]string{o.CustomerID}, o.Aliases...) {
		if id != "" && id != c.CustomerID && !slices.Contains(c.Aliases, id) {
			c.Aliases = append(c.Aliases, id)
		}
	}
}

// Product is a cleaned products row. SKU is the raw product_id.
type Product struct {
	Base
	SKU string

	Name          pgtype.Text
	Category      pgtype.Text
	Price         pgtype.Numeric
	StockQuantity pgtype.Int4

	// CategoryRecognized is false when Category is outside the vocabulary.
	CategoryRecognized bool
}

func (p *Product) Type() EntityType   { return TypeProduct }
func (p *Product) NaturalKey() string { return p.SKU }
func (p *Product) sourceID() string   { return p.SKU }

func (p *Product) fields() map[string]any {
	return map[string]any{
		"product_name":   &p.Name,
		"category":       &p.Category,
		"price":          &p.Price,
		"stock_quantity": &p.StockQuantity,
	}
}

// Order is the header half of a sales row. Item is the line half; both are
// deduplicated and resolved together and split only for loading.
type Order struct {
	Base
	TransactionID string

	CustomerRef pgtype.Text
	OrderDate   pgtype.Date
	Status      pgtype.Text

	Item *OrderItem
}

func (o *Order) Type() EntityType   { return TypeOrder }
func (o *Order) NaturalKey() string { return o.TransactionID }
func (o *Order) sourceID() string   { return o.TransactionID }

func (o *Order) fields() map[string]any {
	f := map[string]any{
		"customer_id":      &o.CustomerRef,
		"transaction_date": &o.OrderDate,
		"status":           &o.Status,
	}
	if o.Item != nil {
		maps.Copy(f, o.Item.fields())
	}
	return f
}

// TotalAmount is quantity * unit_price, or invalid when either is missing.
func (o *Order) TotalAmount() pgtype.Numeric {
	if o.Item == nil {
		return pgtype.Numeric{}
	}
	return o.Item.Subtotal()
}

// OrderItem is the line half of a sales row.
type OrderItem struct {
	Base
	OrderRef string

	ProductRef pgtype.Text
	Quantity   pgtype.Int4
	UnitPrice  pgtype.Numeric
}

func (i *OrderItem) Type() EntityType { return TypeOrderItem }

// NaturalKey is transaction_id/product_id.
func (i *OrderItem) NaturalKey() string {
	return i.OrderRef + "/" + i.ProductRef.String
}

func (i *OrderItem) sourceID() string { return i.OrderRef }

func (i *OrderItem) fields() map[string]any {
	return map[string]any{
		"product_id": &i.ProductRef,
		"quantity":   &i.Quantity,
		"unit_price": &i.UnitPrice,
	}
}

// Subtotal is quantity * unit_price computed exactly.
func (i *OrderItem) Subtotal() pgtype.Numeric {
	return mulNumeric(i.UnitPrice, i.Quantity)
}

// MissingFields counts the typed fields of e that have no value.
func MissingFields(e Entity) int {
	n := 0
	for _, v := range e.fields() {
		if !isValid(v) {
			n++
		}
	}
	return n
}

// isValid reports whether a field pointer returned by fields() holds a value.
func isValid(field any) bool {
	switch v := field.(type) {
	case *pgtype.Text:
		return v.Valid
	case *pgtype.Date:
		return v.Valid
	case *pgtype.Numeric:
		return v.Valid
	case *pgtype.Int4:
		return v.Valid
	default:
		return false
	}
}
