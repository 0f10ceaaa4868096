package core

// normalize.go turns raw records into typed entities.
//
// Normalization is per record and side-effect free. A malformed field value
// (short phone number, unparseable date or number) is reported and downgraded
// to missing so the missing-value policies decide the record's fate. Only a
// blank identifier column rejects the whole record.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// PhoneDigits is the number of national digits kept in a canonical phone.
const PhoneDigits = 10

var (
	errShortPhone = errors.New("fewer than 10 digits")
	errBadPhone   = errors.New("not a phone number")
	errBadDate    = errors.New("unrecognized date format")
	errBadNumber  = errors.New("not a valid non-negative number")
	errBadInteger = errors.New("not a valid non-negative integer")
)

// NormalizeResult is the outcome of normalizing one RawRecord. Exactly one
// of Entity and Rejection is set.
type NormalizeResult struct {
	Entity    Entity
	Rejection *Rejection

	// Malformed lists fields whose value was unusable and is now missing.
	Malformed []*Error
	// UnknownCategory is set when a product category is outside the vocabulary.
	UnknownCategory string
}

// Normalizer applies the canonical formats configured in the rules.
type Normalizer struct {
	rules      config.Rules
	region     string
	categories map[string]string
	title      cases.Caser
}

// NewNormalizer builds a normalizer for the given rules.
func NewNormalizer(rules config.Rules) *Normalizer {
	categories := make(map[string]string)
	for _, c := range rules.Categories {
		categories[strings.ToLower(strings.TrimSpace(c.Name))] = c.Name
		for _, alias := range c.Aliases {
			categories[strings.ToLower(strings.TrimSpace(alias))] = c.Name
		}
	}

	return &Normalizer{
		rules:      rules,
		region:     rules.PhoneRegion(),
		categories: categories,
		title:      cases.Title(language.English),
	}
}

// Phone rewrites s as +<country code>-<10 national digits>. Numbers
// without an international prefix are read in the configured region, and
// extensions are dropped. Inputs with fewer than ten digits are rejected.
func (n *Normalizer) Phone(s string) (pgtype.Text, error) {
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits == 0 {
		return pgtype.Text{}, nil
	}
	if digits < PhoneDigits {
		return pgtype.Text{}, errShortPhone
	}

	num, err := phonenumbers.Parse(s, n.region)
	if err != nil {
		return pgtype.Text{}, fmt.Errorf("%w: %v", errBadPhone, err)
	}
	national := strconv.FormatUint(num.GetNationalNumber(), 10)
	if len(national) < PhoneDigits {
		return pgtype.Text{}, errShortPhone
	}

	return pgtype.Text{
		String: fmt.Sprintf("+%d-%s", num.GetCountryCode(), national[len(national)-PhoneDigits:]),
		Valid:  true,
	}, nil
}

// Category matches s case-insensitively against the vocabulary. Unknown
// categories are returned title-cased with recognized=false.
func (n *Normalizer) Category(s string) (cat pgtype.Text, recognized bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return pgtype.Text{}, true
	}
	if name, ok := n.categories[strings.ToLower(s)]; ok {
		return pgtype.Text{String: name, Valid: true}, true
	}
	return pgtype.Text{String: n.title.String(s), Valid: true}, false
}

// Date parses s with the configured layouts; the first match wins.
func (n *Normalizer) Date(s string) (pgtype.Date, error) {
	if strings.TrimSpace(s) == "" {
		return pgtype.Date{}, nil
	}
	d := ToPgDate(s, n.rules.DateLayouts)
	if !d.Valid {
		return pgtype.Date{}, errBadDate
	}
	return d, nil
}

// Title collapses whitespace and title-cases s.
func (n *Normalizer) Title(s string) pgtype.Text {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: n.title.String(s), Valid: true}
}

// Normalize converts one record into the entity for its source.
func (n *Normalizer) Normalize(rec RawRecord) NormalizeResult {
	switch rec.Source() {
	case schema.SourceCustomers:
		return n.customer(rec)
	case schema.SourceProducts:
		return n.product(rec)
	case schema.SourceSales:
		return n.sale(rec)
	default:
		return NormalizeResult{Rejection: &Rejection{
			Source: rec.Source(),
			Line:   rec.Line(),
			Reason: ReasonMalformedRow,
			Kind:   KindMalformedInput,
			Detail: "unknown source",
			Raw:    rec.Raw(),
		}}
	}
}

// fieldErrors collects malformed fields of one record.
type fieldErrors struct {
	rec  RawRecord
	errs []*Error
}

func (f *fieldErrors) add(field string, err error) {
	if err == nil {
		return
	}
	f.errs = append(f.errs, &Error{
		Kind:   KindMalformedInput,
		Source: f.rec.Source(),
		Line:   f.rec.Line(),
		Field:  field,
		Err:    fmt.Errorf("%q: %w", f.rec.Get(field), err),
	})
}

func (f *fieldErrors) numeric(field string, nonNegative bool) pgtype.Numeric {
	s := f.rec.Get(field)
	if s == "" {
		return pgtype.Numeric{}
	}
	v := ToPgNumeric(s)
	if x, ok := NumericFloat(v); !ok || (nonNegative && x < 0) {
		f.add(field, errBadNumber)
		return pgtype.Numeric{}
	}
	return v
}

func (f *fieldErrors) integer(field string, positive bool) pgtype.Int4 {
	s := f.rec.Get(field)
	if s == "" {
		return pgtype.Int4{}
	}
	v := ToPgInt4(s)
	if !v.Valid || v.Int32 < 0 || (positive && v.Int32 == 0) {
		f.add(field, errBadInteger)
		return pgtype.Int4{}
	}
	return v
}

// blankID rejects a record whose identifier column is empty.
func blankID(rec RawRecord, column string) NormalizeResult {
	return NormalizeResult{Rejection: &Rejection{
		Source: rec.Source(),
		Line:   rec.Line(),
		Reason: ReasonMalformedRow,
		Kind:   KindMalformedInput,
		Detail: "blank " + column,
		Raw:    rec.Raw(),
	}}
}

func (n *Normalizer) customer(rec RawRecord) NormalizeResult {
	id := rec.Get("customer_id")
	if id == "" {
		return blankID(rec, "customer_id")
	}

	fe := &fieldErrors{rec: rec}
	phone, err := n.Phone(rec.Get("phone"))
	fe.add("phone", err)
	regDate, err := n.Date(rec.Get("registration_date"))
	fe.add("registration_date", err)

	c := &Customer{
		Base:             Base{Source: rec.Source(), Line: rec.Line(), raw: rec.Raw()},
		CustomerID:       id,
		FirstName:        ToPgText(rec.Get("first_name")),
		LastName:         ToPgText(rec.Get("last_name")),
		Email:            ToPgText(rec.Get("email")),
		Phone:            phone,
		City:             n.Title(rec.Get("city")),
		RegistrationDate: regDate,
	}
	return NormalizeResult{Entity: c, Malformed: fe.errs}
}

func (n *Normalizer) product(rec RawRecord) NormalizeResult {
	sku := rec.Get("product_id")
	if sku == "" {
		return blankID(rec, "product_id")
	}

	fe := &fieldErrors{rec: rec}
	category, recognized := n.Category(rec.Get("category"))

	p := &Product{
		Base:               Base{Source: rec.Source(), Line: rec.Line(), raw: rec.Raw()},
		SKU:                sku,
		Name:               ToPgText(strings.Join(strings.Fields(rec.Get("product_name")), " ")),
		Category:           category,
		Price:              fe.numeric("price", true),
		StockQuantity:      fe.integer("stock_quantity", false),
		CategoryRecognized: recognized,
	}

	res := NormalizeResult{Entity: p, Malformed: fe.errs}
	if !recognized {
		res.UnknownCategory = category.String
	}
	return res
}

func (n *Normalizer) sale(rec RawRecord) NormalizeResult {
	txn := rec.Get("transaction_id")
	if txn == "" {
		return blankID(rec, "transaction_id")
	}

	fe := &fieldErrors{rec: rec}
	orderDate, err := n.Date(rec.Get("transaction_date"))
	fe.add("transaction_date", err)

	base := Base{Source: rec.Source(), Line: rec.Line(), raw: rec.Raw()}
	o := &Order{
		Base:          base,
		TransactionID: txn,
		CustomerRef:   ToPgText(rec.Get("customer_id")),
		OrderDate:     orderDate,
		Status:        n.Title(rec.Get("status")),
		Item: &OrderItem{
			Base:       base,
			OrderRef:   txn,
			ProductRef: ToPgText(rec.Get("product_id")),
			Quantity:   fe.integer("quantity", true),
			UnitPrice:  fe.numeric("unit_price", true),
		},
	}
	return NormalizeResult{Entity: o, Malformed: fe.errs}
}
