// Package moysklad mirrors catalog and reference data from the
// MoySklad JSON API 1.2 into the local database. The pipeline is
// client -> mapper -> resolver -> upsert, driven by a tracked SyncJob.
package moysklad

import (
	"encoding/json"
)

// msMeta is the metadata block MoySklad attaches to every object and
// reference. Href uniquely identifies the object; its last path
// segment is the external id.
type msMeta struct {
	Href         string `json:"href"`
	Type         string `json:"type"`
	MediaType    string `json:"mediaType"`
	UuidHref     string `json:"uuidHref"`
	Size         int    `json:"size"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
	NextHref     string `json:"nextHref"`
	PreviousHref string `json:"previousHref"`
}

// msRef is an expanded-or-not reference to another entity.
type msRef struct {
	Meta msMeta `json:"meta"`
}

type msListResponse struct {
	Meta msMeta            `json:"meta"`
	Rows []json.RawMessage `json:"rows"`
}

type msPrice struct {
	Value    json.Number `json:"value"`
	Currency *msRef      `json:"currency"`
	PriceType *struct {
		Name string `json:"name"`
	} `json:"priceType"`
}

type msBarcode struct {
	Ean13 string `json:"ean13"`
	Ean8  string `json:"ean8"`
	Code128 string `json:"code128"`
	Gtin  string `json:"gtin"`
}

type rawProduct struct {
	Meta          msMeta      `json:"meta"`
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Code          string      `json:"code"`
	ExternalCode  string      `json:"externalCode"`
	Article       string      `json:"article"`
	Description   string      `json:"description"`
	Archived      bool        `json:"archived"`
	Vat           *int        `json:"vat"`
	Weight        json.Number `json:"weight"`
	Volume        json.Number `json:"volume"`
	ProductFolder *msRef      `json:"productFolder"`
	Uom           *msRef      `json:"uom"`
	SalePrices    []msPrice   `json:"salePrices"`
	BuyPrice      *msPrice    `json:"buyPrice"`
	MinPrice      *msPrice    `json:"minPrice"`
	Barcodes      []msBarcode `json:"barcodes"`
}

type rawProductFolder struct {
	Meta          msMeta `json:"meta"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	ExternalCode  string `json:"externalCode"`
	PathName      string `json:"pathName"`
	Description   string `json:"description"`
	Archived      bool   `json:"archived"`
	Vat           *int   `json:"vat"`
	TaxSystem     string `json:"taxSystem"`
	EffectiveVat  *int   `json:"effectiveVat"`
	ProductFolder *msRef `json:"productFolder"`
}

type rawUom struct {
	Meta         msMeta `json:"meta"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	ExternalCode string `json:"externalCode"`
	Description  string `json:"description"`
}

type rawVariant struct {
	Meta            msMeta `json:"meta"`
	ID              string `json:"id"`
	Name            string `json:"name"`
	Code            string `json:"code"`
	ExternalCode    string `json:"externalCode"`
	Archived        bool   `json:"archived"`
	Product         *msRef `json:"product"`
	Characteristics []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"characteristics"`
	SalePrices []msPrice   `json:"salePrices"`
	Barcodes   []msBarcode `json:"barcodes"`
}

type rawService struct {
	Meta          msMeta    `json:"meta"`
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Code          string    `json:"code"`
	ExternalCode  string    `json:"externalCode"`
	Description   string    `json:"description"`
	Archived      bool      `json:"archived"`
	Vat           *int      `json:"vat"`
	ProductFolder *msRef    `json:"productFolder"`
	SalePrices    []msPrice `json:"salePrices"`
	BuyPrice      *msPrice  `json:"buyPrice"`
}

type rawCounterparty struct {
	Meta          msMeta   `json:"meta"`
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Code          string   `json:"code"`
	ExternalCode  string   `json:"externalCode"`
	CompanyType   string   `json:"companyType"`
	LegalTitle    string   `json:"legalTitle"`
	Inn           string   `json:"inn"`
	Kpp           string   `json:"kpp"`
	Ogrn          string   `json:"ogrn"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	ActualAddress string   `json:"actualAddress"`
	LegalAddress  string   `json:"legalAddress"`
	Description   string   `json:"description"`
	Archived      bool     `json:"archived"`
	Tags          []string `json:"tags"`
}

type rawStore struct {
	Meta         msMeta `json:"meta"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	ExternalCode string `json:"externalCode"`
	Address      string `json:"address"`
	PathName     string `json:"pathName"`
	Description  string `json:"description"`
	Archived     bool   `json:"archived"`
}

// rawStockRow comes from the stock-by-store report. The row belongs to
// one assortment position; quantities are nested per store.
type rawStockRow struct {
	Meta         msMeta `json:"meta"`
	StockByStore []struct {
		Meta      msMeta      `json:"meta"`
		Stock     json.Number `json:"stock"`
		InTransit json.Number `json:"inTransit"`
		Reserve   json.Number `json:"reserve"`
		Name      string      `json:"name"`
	} `json:"stockByStore"`
}

type rawOrganization struct {
	Meta          msMeta `json:"meta"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	ExternalCode  string `json:"externalCode"`
	LegalTitle    string `json:"legalTitle"`
	Inn           string `json:"inn"`
	Kpp           string `json:"kpp"`
	Ogrn          string `json:"ogrn"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	ActualAddress string `json:"actualAddress"`
	LegalAddress  string `json:"legalAddress"`
	Archived      bool   `json:"archived"`
}

type rawEmployee struct {
	Meta         msMeta `json:"meta"`
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	MiddleName   string `json:"middleName"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Position     string `json:"position"`
	ExternalCode string `json:"externalCode"`
	Archived     bool   `json:"archived"`
	Organization *msRef `json:"organization"`
}

type rawProject struct {
	Meta         msMeta `json:"meta"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	ExternalCode string `json:"externalCode"`
	Description  string `json:"description"`
	Archived     bool   `json:"archived"`
}

type rawContract struct {
	Meta          msMeta      `json:"meta"`
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Code          string      `json:"code"`
	ExternalCode  string      `json:"externalCode"`
	Description   string      `json:"description"`
	Moment        string      `json:"moment"`
	Sum           json.Number `json:"sum"`
	ContractType  string      `json:"contractType"`
	RewardPercent *int        `json:"rewardPercent"`
	Archived      bool        `json:"archived"`
	Agent         *msRef      `json:"agent"`
	OwnAgent      *msRef      `json:"ownAgent"`
	Project       *msRef      `json:"project"`
}

// rawDocument covers the shared shape of trade documents
// (customerorder, demand, invoiceout, purchaseorder, supply,
// invoicein). State comes expanded so its name is available.
type rawDocument struct {
	Meta         msMeta      `json:"meta"`
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	ExternalCode string      `json:"externalCode"`
	Description  string      `json:"description"`
	Moment       string      `json:"moment"`
	Applicable   bool        `json:"applicable"`
	Sum          json.Number `json:"sum"`
	VatEnabled   bool        `json:"vatEnabled"`
	VatIncluded  bool        `json:"vatIncluded"`
	VatSum       json.Number `json:"vatSum"`
	Shared       bool        `json:"shared"`
	State        *struct {
		Name string `json:"name"`
	} `json:"state"`
	Agent *msRef `json:"agent"`
	Store *msRef `json:"store"`
}

type rawCurrency struct {
	Meta         msMeta      `json:"meta"`
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	FullName     string      `json:"fullName"`
	Code         string      `json:"code"`
	IsoCode      string      `json:"isoCode"`
	Rate         json.Number `json:"rate"`
	Multiplicity int         `json:"multiplicity"`
	Default      bool        `json:"default"`
	Archived     bool        `json:"archived"`
}

type rawCountry struct {
	Meta         msMeta `json:"meta"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	ExternalCode string `json:"externalCode"`
	Description  string `json:"description"`
}

// SyncOptions selects which entity groups a run covers. The zero value
// means every entity group; documents stay opt-in unless the job type
// is enhanced_sync.
type SyncOptions struct {
	Reference      bool `json:"reference"` // currencies, countries, units
	Products       bool `json:"products"`  // folders, products, variants, services
	Counterparties bool `json:"counterparties"`
	Inventory      bool `json:"inventory"`    // stores, stock report
	Organization   bool `json:"organization"` // organizations, employees, projects, contracts
	Documents      bool `json:"documents"`    // sales and purchase documents
}

func (o SyncOptions) isZero() bool {
	return !o.Reference && !o.Products && !o.Counterparties && !o.Inventory && !o.Organization && !o.Documents
}

// allSyncOptions returns options with all entity groups enabled.
// Documents are not included; they ride on enhanced_sync or an
// explicit request.
func allSyncOptions() SyncOptions {
	return SyncOptions{Reference: true, Products: true, Counterparties: true, Inventory: true, Organization: true}
}

// SyncPubSubPayload is what the trigger endpoint publishes and the
// push endpoint receives.
type SyncPubSubPayload struct {
	JobId   string      `json:"job_id"`
	Options SyncOptions `json:"options"`
}

// entityResult accumulates per-entity counters inside a run and ends
// up in SyncJob.ResultData.
type entityResult struct {
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}
