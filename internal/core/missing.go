package core

// missing.go applies the per-field missing-value policies of one source.
//
// Resolution runs in three passes so imputed values never feed back into
// the aggregates they are drawn from:
//  1. drop: records missing a drop-policy field are excluded
//  2. aggregate: impute statistics are computed over the surviving records
//  3. fill: default and impute fields are set on the survivors

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// ResolveResult is the outcome of resolving one source.
type ResolveResult struct {
	Kept    []Entity
	Dropped []Rejection
	// Handled counts filled field values.
	Handled int
	// Aggregates are the impute values used, by field.
	Aggregates map[string]float64
}

// Resolver applies the missing-value policy table.
type Resolver struct {
	rules config.Rules
}

// NewResolver checks every policy against the entity fields it targets:
// the field must exist, defaults must parse as the field's type and impute
// is only allowed on numeric fields.
func NewResolver(rules config.Rules) (*Resolver, error) {
	var errs []string
	for source, fields := range rules.Missing {
		proto := prototype(source)
		if proto == nil {
			errs = append(errs, fmt.Sprintf("unknown source %q", source))
			continue
		}
		targets := proto.fields()
		for name, p := range fields {
			f, ok := targets[name]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s.%s: not a resolvable field", source, name))
				continue
			}
			switch p.Policy {
			case config.PolicyDefault:
				if !setDefault(f, expandID(p.Value, "0")) {
					errs = append(errs, fmt.Sprintf("%s.%s: default %q does not fit the field type", source, name, p.Value))
				}
			case config.PolicyImpute:
				switch f.(type) {
				case *pgtype.Numeric, *pgtype.Int4:
				default:
					errs = append(errs, fmt.Sprintf("%s.%s: impute needs a numeric field", source, name))
				}
			}
		}
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return nil, fmt.Errorf("missing-value policies:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return &Resolver{rules: rules}, nil
}

// Resolve applies the policies of source to entities, preserving order.
func (r *Resolver) Resolve(source string, entities []Entity) ResolveResult {
	res := ResolveResult{Aggregates: make(map[string]float64)}
	src, _ := schema.SourceByKey(source)
	policies := r.rules.Missing[source]

	var survivors []Entity
	for _, e := range entities {
		if field, missing := firstMissing(e, src, policies, config.PolicyDrop); missing {
			res.Dropped = append(res.Dropped, reject(e, ReasonMissingRequired, "missing "+field))
			continue
		}
		survivors = append(survivors, e)
	}

	for _, spec := range src.FieldSpecs {
		p, ok := policies[spec.Name]
		if !ok || p.Policy != config.PolicyImpute {
			continue
		}
		var values []float64
		for _, e := range survivors {
			if v, ok := fieldFloat(e.fields()[spec.Name]); ok {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			res.Aggregates[spec.Name] = aggregate(values, p.Aggregate)
		}
	}

	for _, e := range survivors {
		if field, blocked := unfillable(e, src, policies, res.Aggregates); blocked {
			res.Dropped = append(res.Dropped, reject(e, ReasonMissingRequired,
				fmt.Sprintf("missing %s with no values to impute from", field)))
			continue
		}

		fields := e.fields()
		for _, spec := range src.FieldSpecs {
			p, ok := policies[spec.Name]
			f := fields[spec.Name]
			if !ok || f == nil || isValid(f) {
				continue
			}
			switch p.Policy {
			case config.PolicyDefault:
				if setDefault(f, expandID(p.Value, e.sourceID())) {
					res.Handled++
				}
			case config.PolicyImpute:
				setFloat(f, res.Aggregates[spec.Name])
				res.Handled++
			}
		}
		res.Kept = append(res.Kept, e)
	}

	return res
}

// firstMissing returns the first field, in column order, that is missing and
// governed by the given policy kind.
func firstMissing(e Entity, src schema.Source, policies map[string]config.FieldPolicy, kind config.PolicyKind) (string, bool) {
	fields := e.fields()
	for _, spec := range src.FieldSpecs {
		p, ok := policies[spec.Name]
		if !ok || p.Policy != kind {
			continue
		}
		if f := fields[spec.Name]; f != nil && !isValid(f) {
			return spec.Name, true
		}
	}
	return "", false
}

// unfillable reports a missing impute field that has no aggregate.
func unfillable(e Entity, src schema.Source, policies map[string]config.FieldPolicy, aggs map[string]float64) (string, bool) {
	fields := e.fields()
	for _, spec := range src.FieldSpecs {
		p, ok := policies[spec.Name]
		if !ok || p.Policy != config.PolicyImpute {
			continue
		}
		if f := fields[spec.Name]; f != nil && !isValid(f) {
			if _, has := aggs[spec.Name]; !has {
				return spec.Name, true
			}
		}
	}
	return "", false
}

func aggregate(values []float64, agg config.Aggregate) float64 {
	if agg == config.AggregateMean {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func fieldFloat(field any) (float64, bool) {
	switch v := field.(type) {
	case *pgtype.Numeric:
		return NumericFloat(*v)
	case *pgtype.Int4:
		return float64(v.Int32), v.Valid
	default:
		return 0, false
	}
}

func setFloat(field any, f float64) {
	switch v := field.(type) {
	case *pgtype.Numeric:
		*v = FloatNumeric(f)
	case *pgtype.Int4:
		*v = pgtype.Int4{Int32: int32(math.Round(f)), Valid: true}
	}
}

// setDefault parses value into field and reports whether it now holds a value.
func setDefault(field any, value string) bool {
	switch v := field.(type) {
	case *pgtype.Text:
		*v = ToPgText(value)
		return v.Valid
	case *pgtype.Date:
		*v = ToPgDate(value, []string{time.DateOnly})
		return v.Valid
	case *pgtype.Numeric:
		*v = ToPgNumeric(value)
		return v.Valid
	case *pgtype.Int4:
		*v = ToPgInt4(value)
		return v.Valid
	default:
		return false
	}
}

func expandID(value, id string) string {
	return strings.ReplaceAll(value, "{id}", id)
}

// prototype returns an empty entity of the source's type.
func prototype(source string) Entity {
	switch source {
	case schema.SourceCustomers:
		return &Customer{}
	case schema.SourceProducts:
		return &Product{}
	case schema.SourceSales:
		return &Order{Item: &OrderItem{}}
	default:
		return nil
	}
}
