package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"gopkg.in/yaml.v3"
)

// PolicyKind selects how a missing field value is resolved.
type PolicyKind string

const (
	PolicyDrop    PolicyKind = "drop"    // exclude the record
	PolicyDefault PolicyKind = "default" // fill with a constant
	PolicyImpute  PolicyKind = "impute"  // fill with an aggregate of the source
)

// Aggregate is the statistic used by PolicyImpute.
type Aggregate string

const (
	AggregateMedian Aggregate = "median"
	AggregateMean   Aggregate = "mean"
)

// FieldPolicy is the missing-value rule for one field.
//
// For PolicyDefault the value may contain "{id}", which is replaced with the
// record's raw identifier (customer_id, product_id or transaction_id).
type FieldPolicy struct {
	Policy    PolicyKind `yaml:"policy"`
	Value     string     `yaml:"value,omitempty"`
	Aggregate Aggregate  `yaml:"aggregate,omitempty"`
}

// Category is one entry of the canonical category vocabulary.
type Category struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Rules is the static cleansing configuration of the pipeline.
type Rules struct {
	// PhoneCountryCode is prefixed to the 10 national digits: +91-XXXXXXXXXX
	PhoneCountryCode string `yaml:"phone_country_code"`

	// DateLayouts are Go time layouts tried in order; first match wins.
	DateLayouts []string `yaml:"date_layouts"`

	// Categories is the canonical product category vocabulary.
	Categories []Category `yaml:"categories"`

	// Missing maps source key -> field name -> policy.
	Missing map[string]map[string]FieldPolicy `yaml:"missing"`
}

// CanonicalDateLayout is the single output format for calendar dates.
const CanonicalDateLayout = "2006-01-02"

// DefaultRules returns the built-in cleansing rules.
//
// Date layouts mirror the order the raw files were historically parsed in:
// ISO first, then day-first with slashes, month-first with dashes,
// day-first with dashes and finally month-first with slashes.
func DefaultRules() Rules {
	return Rules{
		PhoneCountryCode: "91",
		DateLayouts: []string{
			CanonicalDateLayout,
			"2/1/2006",
			"1-2-2006",
			"2-1-2006",
			"1/2/2006",
		},
		Categories: []Category{
			{Name: "Electronics", Aliases: []string{"electronic"}},
			{Name: "Fashion"},
			{Name: "Groceries", Aliases: []string{"grocery", "grocer"}},
		},
		Missing: map[string]map[string]FieldPolicy{
			"customers": {
				"first_name": {Policy: PolicyDrop},
				"last_name":  {Policy: PolicyDrop},
				"email":      {Policy: PolicyDefault, Value: "unknown_email_{id}"},
			},
			"products": {
				"product_name":   {Policy: PolicyDrop},
				"category":       {Policy: PolicyDefault, Value: "Uncategorized"},
				"price":          {Policy: PolicyImpute, Aggregate: AggregateMedian},
				"stock_quantity": {Policy: PolicyImpute, Aggregate: AggregateMedian},
			},
			"sales": {
				"customer_id":      {Policy: PolicyDrop},
				"product_id":       {Policy: PolicyDrop},
				"transaction_date": {Policy: PolicyDrop},
				"quantity":         {Policy: PolicyDrop},
				"unit_price":       {Policy: PolicyImpute, Aggregate: AggregateMedian},
				"status":           {Policy: PolicyDefault, Value: "Pending"},
			},
		},
	}
}

// LoadRules reads cleansing rules from a YAML file layered over DefaultRules.
// An empty path returns the defaults. Lists in the file replace the default
// lists; missing-value policies are merged per source and field.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}

	return ParseRules(data)
}

// ParseRules decodes YAML rules layered over DefaultRules and validates them.
func ParseRules(data []byte) (Rules, error) {
	var overlay Rules
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}

	rules := DefaultRules()
	if overlay.PhoneCountryCode != "" {
		rules.PhoneCountryCode = overlay.PhoneCountryCode
	}
	if len(overlay.DateLayouts) > 0 {
		rules.DateLayouts = overlay.DateLayouts
	}
	if len(overlay.Categories) > 0 {
		rules.Categories = overlay.Categories
	}
	for source, fields := range overlay.Missing {
		if rules.Missing[source] == nil {
			rules.Missing[source] = make(map[string]FieldPolicy)
		}
		for field, policy := range fields {
			rules.Missing[source][field] = policy
		}
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// PhoneRegion is the main region of PhoneCountryCode, used to read phone
// numbers written without an international prefix.
func (r Rules) PhoneRegion() string {
	cc, err := strconv.Atoi(r.PhoneCountryCode)
	if err != nil {
		return phonenumbers.UNKNOWN_REGION
	}
	return phonenumbers.GetRegionCodeForCountryCode(cc)
}

// Validate checks the rules for internal consistency.
func (r Rules) Validate() error {
	var errs []string

	if r.PhoneCountryCode == "" || strings.Trim(r.PhoneCountryCode, "0123456789") != "" {
		errs = append(errs, fmt.Sprintf("phone_country_code (%q) must be digits", r.PhoneCountryCode))
	} else if r.PhoneRegion() == phonenumbers.UNKNOWN_REGION {
		errs = append(errs, fmt.Sprintf("phone_country_code (%q) is not an assigned calling code", r.PhoneCountryCode))
	}

	if len(r.DateLayouts) == 0 {
		errs = append(errs, "date_layouts must not be empty")
	}
	ref := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	for _, layout := range r.DateLayouts {
		if _, err := time.Parse(layout, ref.Format(layout)); err != nil {
			errs = append(errs, fmt.Sprintf("date layout %q does not round-trip: %v", layout, err))
		}
	}

	seen := make(map[string]string)
	for _, c := range r.Categories {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, "category name must not be empty")
			continue
		}
		for _, term := range append([]string{c.Name}, c.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(term))
			if owner, ok := seen[key]; ok && owner != c.Name {
				errs = append(errs, fmt.Sprintf("category term %q maps to both %q and %q", term, owner, c.Name))
			}
			seen[key] = c.Name
		}
	}

	for source, fields := range r.Missing {
		for field, p := range fields {
			name := source + "." + field
			switch p.Policy {
			case PolicyDrop:
			case PolicyDefault:
				if p.Value == "" {
					errs = append(errs, fmt.Sprintf("%s: default policy needs a value", name))
				}
			case PolicyImpute:
				if p.Aggregate != AggregateMedian && p.Aggregate != AggregateMean {
					errs = append(errs, fmt.Sprintf("%s: aggregate (%q) must be median or mean", name, p.Aggregate))
				}
			default:
				errs = append(errs, fmt.Sprintf("%s: unknown policy %q", name, p.Policy))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid rules:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Policy returns the missing-value policy for a source field.
func (r Rules) Policy(source, field string) (FieldPolicy, bool) {
	p, ok := r.Missing[source][field]
	return p, ok
}

// YAML renders the rules in the same format LoadRules accepts.
func (r Rules) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}
