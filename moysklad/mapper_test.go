package moysklad

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestExternalIdFromHref(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{"plain entity href", "https://api.moysklad.ru/api/remap/1.2/entity/product/7944ef04-f831-11e5-7a69-971500188b19", "7944ef04-f831-11e5-7a69-971500188b19"},
		{"query string stripped", "https://api.moysklad.ru/api/remap/1.2/entity/store/abc-123?expand=owner", "abc-123"},
		{"trailing slash", "https://api.moysklad.ru/api/remap/1.2/entity/uom/xyz/", "xyz"},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := externalIdFromHref(tt.href); got != tt.want {
				t.Errorf("externalIdFromHref(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}

func TestKopecksToRubles(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12550", "125.5"},
		{"100", "1"},
		{"0", "0"},
		{"99", "0.99"},
		{"12550.0", "125.5"},
		{"", "0"},
	}
	for _, tt := range tests {
		got := kopecksToRubles(json.Number(tt.in))
		want, _ := decimal.NewFromString(tt.want)
		if !got.Equal(want) {
			t.Errorf("kopecksToRubles(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestMapProduct(t *testing.T) {
	raw := []byte(`{
		"meta": {"href": "https://api.moysklad.ru/api/remap/1.2/entity/product/p-1"},
		"id": "p-1",
		"name": "  Widget  ",
		"code": "W-1",
		"article": "ART-9",
		"archived": false,
		"vat": 20,
		"salePrices": [{"value": 150000}],
		"buyPrice": {"value": 90000},
		"productFolder": {"meta": {"href": ".../entity/productfolder/f-1"}},
		"uom": {"meta": {"href": ".../entity/uom/u-1"}},
		"barcodes": [{"ean13": "4600000000001"}]
	}`)
	var rec rawProduct
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatal(err)
	}

	p, refs, me := mapProduct(rec)
	if me != nil {
		t.Fatalf("mapProduct: %v", me)
	}
	if p.ExternalId == nil || *p.ExternalId != "p-1" {
		t.Errorf("ExternalId = %v, want p-1", p.ExternalId)
	}
	if p.Name != "Widget" {
		t.Errorf("Name = %q, want trimmed Widget", p.Name)
	}
	if !p.SalePrice.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("SalePrice = %s, want 1500", p.SalePrice)
	}
	if !p.BuyPrice.Equal(decimal.NewFromInt(900)) {
		t.Errorf("BuyPrice = %s, want 900", p.BuyPrice)
	}
	if p.VatRate == nil || *p.VatRate != 20 {
		t.Errorf("VatRate = %v, want 20", p.VatRate)
	}
	if refs.FolderExternalId != "f-1" {
		t.Errorf("FolderExternalId = %q, want f-1", refs.FolderExternalId)
	}
	if refs.UomExternalId != "u-1" {
		t.Errorf("UomExternalId = %q, want u-1", refs.UomExternalId)
	}
	if len(p.Barcodes) == 0 {
		t.Error("Barcodes should carry the ean13 value")
	}
}

func TestMapProductRejectsMissingFields(t *testing.T) {
	_, _, me := mapProduct(rawProduct{})
	if me == nil {
		t.Fatal("expected MapError for record with no id")
	}

	rec := rawProduct{ID: "p-2"}
	_, _, me = mapProduct(rec)
	if me == nil {
		t.Fatal("expected MapError for record with no name")
	}
	if me.ExternalId != "p-2" {
		t.Errorf("MapError.ExternalId = %q, want p-2", me.ExternalId)
	}
}

func TestMapContract(t *testing.T) {
	rec := rawContract{
		ID:           "c-1",
		Name:         "Supply contract",
		Moment:       "2024-03-15 10:30:00",
		Sum:          json.Number("2500000"),
		ContractType: "Sales",
		Agent:        &msRef{Meta: msMeta{Href: ".../entity/counterparty/cp-7"}},
		OwnAgent:     &msRef{Meta: msMeta{Href: ".../entity/organization/org-2"}},
		Project:      &msRef{Meta: msMeta{Href: ".../entity/project/pr-3"}},
	}
	c, refs, me := mapContract(rec)
	if me != nil {
		t.Fatalf("mapContract: %v", me)
	}
	if c.Moment == nil || c.Moment.Year() != 2024 || c.Moment.Month() != 3 {
		t.Errorf("Moment = %v, want 2024-03-15", c.Moment)
	}
	if !c.Sum.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("Sum = %s, want 25000", c.Sum)
	}
	if refs.CounterpartyExternalId != "cp-7" {
		t.Errorf("CounterpartyExternalId = %q, want cp-7", refs.CounterpartyExternalId)
	}
	if refs.OrganizationExternalId != "org-2" {
		t.Errorf("OrganizationExternalId = %q, want org-2", refs.OrganizationExternalId)
	}
	if refs.ProjectExternalId != "pr-3" {
		t.Errorf("ProjectExternalId = %q, want pr-3", refs.ProjectExternalId)
	}
}

func TestMapContractRejectsBadMoment(t *testing.T) {
	rec := rawContract{ID: "c-2", Name: "Bad", Moment: "15/03/2024"}
	_, _, me := mapContract(rec)
	if me == nil {
		t.Fatal("expected MapError for unparseable moment")
	}
}

func TestMapEmployeeAssemblesFullName(t *testing.T) {
	rec := rawEmployee{
		ID:           "e-1",
		FirstName:    "Ivan",
		LastName:     "Petrov",
		Organization: &msRef{Meta: msMeta{Href: ".../entity/organization/org-1"}},
	}
	e, refs, me := mapEmployee(rec)
	if me != nil {
		t.Fatalf("mapEmployee: %v", me)
	}
	if e.FullName != "Petrov Ivan" {
		t.Errorf("FullName = %q, want %q", e.FullName, "Petrov Ivan")
	}
	if refs.OrganizationExternalId != "org-1" {
		t.Errorf("OrganizationExternalId = %q, want org-1", refs.OrganizationExternalId)
	}

	rec.FullName = "Petrov Ivan Sergeevich"
	e, _, me = mapEmployee(rec)
	if me != nil {
		t.Fatalf("mapEmployee: %v", me)
	}
	if e.FullName != "Petrov Ivan Sergeevich" {
		t.Errorf("FullName = %q, upstream full name should win", e.FullName)
	}
}

func TestMapSalesDocument(t *testing.T) {
	raw := []byte(`{
		"meta": {"href": "https://api.moysklad.ru/api/remap/1.2/entity/customerorder/co-1"},
		"id": "co-1",
		"name": "00042",
		"moment": "2024-04-01 09:00:00",
		"applicable": true,
		"sum": 500000,
		"vatEnabled": true,
		"vatIncluded": true,
		"vatSum": 83333,
		"state": {"name": "New"},
		"agent": {"meta": {"href": ".../entity/counterparty/cp-1"}},
		"store": {"meta": {"href": ".../entity/store/st-2"}}
	}`)
	var rec rawDocument
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatal(err)
	}

	d, refs, me := mapSalesDocument("customerorder", rec)
	if me != nil {
		t.Fatalf("mapSalesDocument: %v", me)
	}
	if d.DocType != "customerorder" || d.Name != "00042" {
		t.Errorf("doc = %q/%q, want customerorder/00042", d.DocType, d.Name)
	}
	if d.Moment == nil || d.Moment.Month() != 4 {
		t.Errorf("Moment = %v, want April 2024", d.Moment)
	}
	if !d.SumTotal.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("SumTotal = %s, want 5000", d.SumTotal)
	}
	if d.State != "New" {
		t.Errorf("State = %q, want New", d.State)
	}
	if refs.CounterpartyExternalId != "cp-1" || refs.StoreExternalId != "st-2" {
		t.Errorf("refs = %q/%q, want cp-1/st-2", refs.CounterpartyExternalId, refs.StoreExternalId)
	}
}

func TestMapPurchaseDocumentRejectsMissingName(t *testing.T) {
	_, _, me := mapPurchaseDocument("supply", rawDocument{ID: "sp-1"})
	if me == nil {
		t.Fatal("expected MapError for document with no name")
	}
	if me.EntityType != "supply" {
		t.Errorf("EntityType = %q, want supply", me.EntityType)
	}
}

func TestMapCurrencyDefaults(t *testing.T) {
	rec := rawCurrency{ID: "cur-1", Name: "RUB", Rate: json.Number("0"), Multiplicity: 0}
	c, me := mapCurrency(rec)
	if me != nil {
		t.Fatalf("mapCurrency: %v", me)
	}
	if !c.Rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Rate = %s, want fallback 1", c.Rate)
	}
	if c.Multiplicity != 1 {
		t.Errorf("Multiplicity = %d, want fallback 1", c.Multiplicity)
	}
}

func TestMapCounterpartyNormalizesPhone(t *testing.T) {
	rec := rawCounterparty{ID: "cp-1", Name: "OOO Vector", Phone: "8 (495) 123-45-67"}
	c, me := mapCounterparty(rec)
	if me != nil {
		t.Fatalf("mapCounterparty: %v", me)
	}
	if c.Phone != "+74951234567" {
		t.Errorf("Phone = %q, want E.164 +74951234567", c.Phone)
	}
}
