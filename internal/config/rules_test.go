package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRules_Valid(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("DefaultRules().Validate() error = %v", err)
	}
}

func TestLoadRules_EmptyPathReturnsDefaults(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if rules.PhoneCountryCode != "91" {
		t.Errorf("PhoneCountryCode = %q, want %q", rules.PhoneCountryCode, "91")
	}
	if p, ok := rules.Policy("products", "price"); !ok || p.Policy != PolicyImpute || p.Aggregate != AggregateMedian {
		t.Errorf("products.price policy = %+v, want impute median", p)
	}
}

func TestParseRules_Overlay(t *testing.T) {
	data := []byte(`
phone_country_code: "44"
date_layouts: ["2006-01-02", "02.01.2006"]
missing:
  customers:
    phone: {policy: default, value: "+44-0000000000"}
  products:
    price: {policy: impute, aggregate: mean}
`)

	rules, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}

	if rules.PhoneCountryCode != "44" {
		t.Errorf("PhoneCountryCode = %q, want %q", rules.PhoneCountryCode, "44")
	}
	if len(rules.DateLayouts) != 2 || rules.DateLayouts[1] != "02.01.2006" {
		t.Errorf("DateLayouts = %v, want overlay list", rules.DateLayouts)
	}
	if p, _ := rules.Policy("customers", "phone"); p.Policy != PolicyDefault {
		t.Errorf("customers.phone policy = %+v, want default", p)
	}
	// Untouched defaults survive the merge.
	if p, _ := rules.Policy("customers", "first_name"); p.Policy != PolicyDrop {
		t.Errorf("customers.first_name policy = %+v, want drop", p)
	}
	if p, _ := rules.Policy("products", "price"); p.Aggregate != AggregateMean {
		t.Errorf("products.price aggregate = %q, want mean", p.Aggregate)
	}
	if len(rules.Categories) != 3 {
		t.Errorf("Categories = %d entries, want defaults (3)", len(rules.Categories))
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "unknown policy", yaml: "missing: {sales: {status: {policy: guess}}}", wantErr: "unknown policy"},
		{name: "default without value", yaml: "missing: {sales: {status: {policy: default}}}", wantErr: "needs a value"},
		{name: "bad aggregate", yaml: "missing: {products: {price: {policy: impute, aggregate: mode}}}", wantErr: "median or mean"},
		{name: "non-digit country code", yaml: `phone_country_code: "+91"`, wantErr: "phone_country_code"},
		{name: "unassigned country code", yaml: `phone_country_code: "999"`, wantErr: "not an assigned calling code"},
		{name: "ambiguous category alias", yaml: "categories: [{name: A, aliases: [x]}, {name: B, aliases: [x]}]", wantErr: "maps to both"},
		{name: "malformed yaml", yaml: "date_layouts: [", wantErr: "parse rules"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("ParseRules() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRules_PhoneRegion(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"91", "IN"},
		{"44", "GB"},
		{"1", "US"},
		{"999", "ZZ"},
	}
	for _, tt := range tests {
		r := Rules{PhoneCountryCode: tt.code}
		if got := r.PhoneRegion(); got != tt.want {
			t.Errorf("PhoneRegion(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestLoadRules_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("phone_country_code: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if rules.PhoneCountryCode != "1" {
		t.Errorf("PhoneCountryCode = %q, want %q", rules.PhoneCountryCode, "1")
	}
}

func TestRulesYAML_RoundTrip(t *testing.T) {
	out, err := DefaultRules().YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	rules, err := ParseRules(out)
	if err != nil {
		t.Fatalf("ParseRules(YAML()) error = %v", err)
	}
	if len(rules.DateLayouts) != len(DefaultRules().DateLayouts) {
		t.Errorf("DateLayouts = %v after round trip", rules.DateLayouts)
	}
}
