package moysklad

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/almasoft/crm_backend/models"
	"bitbucket.org/almasoft/crm_backend/utils"
)

// MapError is a per-record mapping failure. It carries enough context
// to log and count the record without aborting the page.
type MapError struct {
	EntityType string
	ExternalId string
	Reason     string
}

func (e *MapError) Error() string {
	if e.ExternalId == "" {
		return fmt.Sprintf("map %s: %s", e.EntityType, e.Reason)
	}
	return fmt.Sprintf("map %s %s: %s", e.EntityType, e.ExternalId, e.Reason)
}

func mapErr(entityType, externalId, reason string) *MapError {
	return &MapError{EntityType: entityType, ExternalId: externalId, Reason: reason}
}

// externalIdFromHref extracts the object id from a meta href, e.g.
// ".../entity/product/7944ef04-f831-11e5-7a69-971500188b19" ->
// "7944ef04-f831-11e5-7a69-971500188b19". Query strings are stripped.
func externalIdFromHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	return href
}

func refExternalId(ref *msRef) string {
	if ref == nil {
		return ""
	}
	return externalIdFromHref(ref.Meta.Href)
}

// kopecksToRubles converts MoySklad minor-unit prices into decimal
// currency amounts. A missing number maps to zero.
func kopecksToRubles(n json.Number) decimal.Decimal {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Div(decimal.NewFromInt(100))
}

func numberToDecimal(n json.Number) decimal.Decimal {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// firstSalePrice picks the first configured sale price, which MoySklad
// orders with the default price type first.
func firstSalePrice(prices []msPrice) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	return kopecksToRubles(prices[0].Value)
}

func priceOrZero(p *msPrice) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return kopecksToRubles(p.Value)
}

func marshalBarcodes(barcodes []msBarcode) []byte {
	if len(barcodes) == 0 {
		return nil
	}
	var flat []string
	for _, b := range barcodes {
		for _, v := range []string{b.Ean13, b.Ean8, b.Code128, b.Gtin} {
			if v != "" {
				flat = append(flat, v)
			}
		}
	}
	if len(flat) == 0 {
		return nil
	}
	raw, _ := json.Marshal(flat)
	return raw
}

func externalIdOf(meta msMeta, id string) string {
	if id != "" {
		return strings.TrimSpace(id)
	}
	return externalIdFromHref(meta.Href)
}

// mappedRefs carries unresolved references out of a mapper so the
// resolver can translate them to local ids before the upsert.
type mappedRefs struct {
	FolderExternalId       string
	UomExternalId          string
	ProductExternalId      string
	CounterpartyExternalId string
	OrganizationExternalId string
	ProjectExternalId      string
	StoreExternalId        string
}

func mapProduct(rec rawProduct) (*models.Product, mappedRefs, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mappedRefs{}, mapErr("product", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mappedRefs{}, mapErr("product", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	p := &models.Product{
		Name:         name,
		Code:         strings.TrimSpace(rec.Code),
		Article:      strings.TrimSpace(rec.Article),
		Description:  strings.TrimSpace(rec.Description),
		SalePrice:    firstSalePrice(rec.SalePrices),
		BuyPrice:     priceOrZero(rec.BuyPrice),
		MinPrice:     priceOrZero(rec.MinPrice),
		VatRate:      rec.Vat,
		Weight:       numberToDecimal(rec.Weight),
		Volume:       numberToDecimal(rec.Volume),
		Barcodes:     marshalBarcodes(rec.Barcodes),
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Archived:     rec.Archived,
	}
	p.ExternalId = &extID
	p.ExternalMeta = meta

	refs := mappedRefs{
		FolderExternalId: refExternalId(rec.ProductFolder),
		UomExternalId:    refExternalId(rec.Uom),
	}
	return p, refs, nil
}

func mapProductFolder(rec rawProductFolder) (*models.ProductFolder, mappedRefs, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mappedRefs{}, mapErr("product_folder", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mappedRefs{}, mapErr("product_folder", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	f := &models.ProductFolder{
		Name:         name,
		Code:         strings.TrimSpace(rec.Code),
		PathName:     strings.TrimSpace(rec.PathName),
		Description:  strings.TrimSpace(rec.Description),
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Archived:     rec.Archived,
		VatRate:      rec.Vat,
		TaxSystem:    strings.TrimSpace(rec.TaxSystem),
		EffectiveVat: rec.EffectiveVat,
	}
	f.ExternalId = &extID
	f.ExternalMeta = meta

	refs := mappedRefs{FolderExternalId: refExternalId(rec.ProductFolder)}
	return f, refs, nil
}

func mapUom(rec rawUom) (*models.UnitOfMeasure, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mapErr("uom", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mapErr("uom", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	u := &models.UnitOfMeasure{
		Name:         name,
		Code:         strings.TrimSpace(rec.Code),
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Description:  strings.TrimSpace(rec.Description),
	}
	u.ExternalId = &extID
	u.ExternalMeta = meta
	return u, nil
}

func mapVariant(rec rawVariant) (*models.ProductVariant, mappedRefs, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mappedRefs{}, mapErr("product_variant", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mappedRefs{}, mapErr("product_variant", extID, "missing name")
	}
	refs := mappedRefs{ProductExternalId: refExternalId(rec.Product)}
	if refs.ProductExternalId == "" {
		return nil, mappedRefs{}, mapErr("product_variant", extID, "missing product reference")
	}

	meta, _ := json.Marshal(rec.Meta)
	var chars []byte
	if len(rec.Characteristics) > 0 {
		chars, _ = json.Marshal(rec.Characteristics)
	}
	v := &models.ProductVariant{
		Name:            name,
		Code:            strings.TrimSpace(rec.Code),
		Characteristics: chars,
		SalePrice:       firstSalePrice(rec.SalePrices),
		Barcodes:        marshalBarcodes(rec.Barcodes),
		ExternalCode:    strings.TrimSpace(rec.ExternalCode),
		Archived:        rec.Archived,
	}
	v.ExternalId = &extID
	v.ExternalMeta = meta
	return v, refs, nil
}

func mapService(rec rawService) (*models.Service, mappedRefs, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mappedRefs{}, mapErr("service", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mappedRefs{}, mapErr("service", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	s := &models.Service{
		Name:         name,
		Code:         strings.TrimSpace(rec.Code),
		Description:  strings.TrimSpace(rec.Description),
		SalePrice:    firstSalePrice(rec.SalePrices),
		BuyPrice:     priceOrZero(rec.BuyPrice),
		VatRate:      rec.Vat,
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Archived:     rec.Archived,
	}
	s.ExternalId = &extID
	s.ExternalMeta = meta

	refs := mappedRefs{FolderExternalId: refExternalId(rec.ProductFolder)}
	return s, refs, nil
}

func mapCounterparty(rec rawCounterparty) (*models.Counterparty, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mapErr("counterparty", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mapErr("counterparty", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	var tags []byte
	if len(rec.Tags) > 0 {
		tags, _ = json.Marshal(rec.Tags)
	}
	c := &models.Counterparty{
		Name:          name,
		Code:          strings.TrimSpace(rec.Code),
		LegalTitle:    strings.TrimSpace(rec.LegalTitle),
		CompanyType:   strings.TrimSpace(rec.CompanyType),
		Inn:           strings.TrimSpace(rec.Inn),
		Kpp:           strings.TrimSpace(rec.Kpp),
		Ogrn:          strings.TrimSpace(rec.Ogrn),
		Email:         strings.TrimSpace(rec.Email),
		Phone:         utils.NormalizePhone(rec.Phone),
		ActualAddress: strings.TrimSpace(rec.ActualAddress),
		LegalAddress:  strings.TrimSpace(rec.LegalAddress),
		Description:   strings.TrimSpace(rec.Description),
		Tags:          tags,
		ExternalCode:  strings.TrimSpace(rec.ExternalCode),
		Archived:      rec.Archived,
	}
	c.ExternalId = &extID
	c.ExternalMeta = meta
	return c, nil
}

func mapStore(rec rawStore) (*models.Store, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mapErr("store", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mapErr("store", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	s := &models.Store{
		Name:         name,
		Code:         strings.TrimSpace(rec.Code),
		Address:      strings.TrimSpace(rec.Address),
		PathName:     strings.TrimSpace(rec.PathName),
		Description:  strings.TrimSpace(rec.Description),
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Archived:     rec.Archived,
	}
	s.ExternalId = &extID
	s.ExternalMeta = meta
	return s, nil
}

func mapOrganization(rec rawOrganization) (*models.Organization, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mapErr("organization", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mapErr("organization", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	o := &models.Organization{
		Name:          name,
		Code:          strings.TrimSpace(rec.Code),
		LegalTitle:    strings.TrimSpace(rec.LegalTitle),
		Inn:           strings.TrimSpace(rec.Inn),
		Kpp:           strings.TrimSpace(rec.Kpp),
		Ogrn:          strings.TrimSpace(rec.Ogrn),
		Email:         strings.TrimSpace(rec.Email),
		Phone:         utils.NormalizePhone(rec.Phone),
		ActualAddress: strings.TrimSpace(rec.ActualAddress),
		LegalAddress:  strings.TrimSpace(rec.LegalAddress),
		ExternalCode:  strings.TrimSpace(rec.ExternalCode),
		Archived:      rec.Archived,
	}
	o.ExternalId = &extID
	o.ExternalMeta = meta
	return o, nil
}

func mapEmployee(rec rawEmployee) (*models.Employee, mappedRefs, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mappedRefs{}, mapErr("employee", "", "missing external id")
	}

	fullName := strings.TrimSpace(rec.FullName)
	if fullName == "" {
		fullName = strings.TrimSpace(strings.Join([]string{
			strings.TrimSpace(rec.LastName),
			strings.TrimSpace(rec.FirstName),
			strings.TrimSpace(rec.MiddleName),
		}, " "))
	}
	if fullName == "" {
		return nil, mappedRefs{}, mapErr("employee", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	e := &models.Employee{
		FirstName:    strings.TrimSpace(rec.FirstName),
		LastName:     strings.TrimSpace(rec.LastName),
		MiddleName:   strings.TrimSpace(rec.MiddleName),
		FullName:     fullName,
		Email:        strings.TrimSpace(rec.Email),
		Phone:        utils.NormalizePhone(rec.Phone),
		Position:     strings.TrimSpace(rec.Position),
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Archived:     rec.Archived,
	}
	e.ExternalId = &extID
	e.ExternalMeta = meta

	refs := mappedRefs{OrganizationExternalId: refExternalId(rec.Organization)}
	return e, refs, nil
}

func mapProject(rec rawProject) (*models.Project, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mapErr("project", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mapErr("project", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	p := &models.Project{
		Name:         name,
		Code:         strings.TrimSpace(rec.Code),
		Description:  strings.TrimSpace(rec.Description),
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Archived:     rec.Archived,
	}
	p.ExternalId = &extID
	p.ExternalMeta = meta
	return p, nil
}

const msMomentLayout = "2006-01-02 15:04:05"

func mapContract(rec rawContract) (*models.Contract, mappedRefs, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mappedRefs{}, mapErr("contract", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mappedRefs{}, mapErr("contract", extID, "missing name")
	}

	var moment *time.Time
	if m := strings.TrimSpace(rec.Moment); m != "" {
		t, err := time.Parse(msMomentLayout, m)
		if err != nil {
			return nil, mappedRefs{}, mapErr("contract", extID, "bad moment: "+m)
		}
		moment = &t
	}

	meta, _ := json.Marshal(rec.Meta)
	c := &models.Contract{
		Name:          name,
		Code:          strings.TrimSpace(rec.Code),
		ContractType:  strings.TrimSpace(rec.ContractType),
		Moment:        moment,
		Sum:           kopecksToRubles(rec.Sum),
		RewardPercent: rec.RewardPercent,
		Description:   strings.TrimSpace(rec.Description),
		ExternalCode:  strings.TrimSpace(rec.ExternalCode),
		Archived:      rec.Archived,
	}
	c.ExternalId = &extID
	c.ExternalMeta = meta

	refs := mappedRefs{
		CounterpartyExternalId: refExternalId(rec.Agent),
		OrganizationExternalId: refExternalId(rec.OwnAgent),
		ProjectExternalId:      refExternalId(rec.Project),
	}
	return c, refs, nil
}

func mapSalesDocument(docType string, rec rawDocument) (*models.SalesDocument, mappedRefs, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mappedRefs{}, mapErr(docType, "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mappedRefs{}, mapErr(docType, extID, "missing name")
	}

	var moment *time.Time
	if m := strings.TrimSpace(rec.Moment); m != "" {
		t, err := time.Parse(msMomentLayout, m)
		if err != nil {
			return nil, mappedRefs{}, mapErr(docType, extID, "bad moment: "+m)
		}
		moment = &t
	}

	var state string
	if rec.State != nil {
		state = strings.TrimSpace(rec.State.Name)
	}

	meta, _ := json.Marshal(rec.Meta)
	d := &models.SalesDocument{
		DocType:      docType,
		Name:         name,
		Description:  strings.TrimSpace(rec.Description),
		Moment:       moment,
		Applicable:   rec.Applicable,
		SumTotal:     kopecksToRubles(rec.Sum),
		VatEnabled:   rec.VatEnabled,
		VatIncluded:  rec.VatIncluded,
		VatSum:       kopecksToRubles(rec.VatSum),
		State:        state,
		Shared:       rec.Shared,
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
	}
	d.ExternalId = &extID
	d.ExternalMeta = meta

	refs := mappedRefs{
		CounterpartyExternalId: refExternalId(rec.Agent),
		StoreExternalId:        refExternalId(rec.Store),
	}
	return d, refs, nil
}

func mapPurchaseDocument(docType string, rec rawDocument) (*models.PurchaseDocument, mappedRefs, *MapError) {
	sd, refs, me := mapSalesDocument(docType, rec)
	if me != nil {
		return nil, mappedRefs{}, me
	}
	d := &models.PurchaseDocument{
		DocType:      sd.DocType,
		Name:         sd.Name,
		Description:  sd.Description,
		Moment:       sd.Moment,
		Applicable:   sd.Applicable,
		SumTotal:     sd.SumTotal,
		VatEnabled:   sd.VatEnabled,
		VatIncluded:  sd.VatIncluded,
		VatSum:       sd.VatSum,
		State:        sd.State,
		Shared:       sd.Shared,
		ExternalCode: sd.ExternalCode,
	}
	d.ExternalId = sd.ExternalId
	d.ExternalMeta = sd.ExternalMeta
	return d, refs, nil
}

func mapCurrency(rec rawCurrency) (*models.Currency, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mapErr("currency", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mapErr("currency", extID, "missing name")
	}

	rate := numberToDecimal(rec.Rate)
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	multiplicity := rec.Multiplicity
	if multiplicity <= 0 {
		multiplicity = 1
	}

	meta, _ := json.Marshal(rec.Meta)
	c := &models.Currency{
		Name:         name,
		FullName:     strings.TrimSpace(rec.FullName),
		Code:         strings.TrimSpace(rec.Code),
		IsoCode:      strings.TrimSpace(rec.IsoCode),
		Rate:         rate,
		Multiplicity: multiplicity,
		IsDefault:    rec.Default,
		Archived:     rec.Archived,
	}
	c.ExternalId = &extID
	c.ExternalMeta = meta
	return c, nil
}

func mapCountry(rec rawCountry) (*models.Country, *MapError) {
	extID := externalIdOf(rec.Meta, rec.ID)
	if extID == "" {
		return nil, mapErr("country", "", "missing external id")
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, mapErr("country", extID, "missing name")
	}

	meta, _ := json.Marshal(rec.Meta)
	c := &models.Country{
		Name:         name,
		Code:         strings.TrimSpace(rec.Code),
		ExternalCode: strings.TrimSpace(rec.ExternalCode),
		Description:  strings.TrimSpace(rec.Description),
	}
	c.ExternalId = &extID
	c.ExternalMeta = meta
	return c, nil
}
