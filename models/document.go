package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Document type values mirror the upstream endpoint names.
const (
	DocTypeCustomerOrder = "customerorder"
	DocTypeDemand        = "demand"
	DocTypeInvoiceOut    = "invoiceout"
	DocTypePurchaseOrder = "purchaseorder"
	DocTypeSupply        = "supply"
	DocTypeInvoiceIn     = "invoicein"
)

type SalesDocument struct {
	SyncedModel
	DocType        string          `gorm:"size:50;not null;index" json:"doc_type"`
	Name           string          `gorm:"size:255;not null;index" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	Moment         *time.Time      `gorm:"index" json:"moment"`
	Applicable     bool            `gorm:"default:true" json:"applicable"`
	SumTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sum_total"`
	VatEnabled     bool            `gorm:"default:true" json:"vat_enabled"`
	VatIncluded    bool            `gorm:"default:true" json:"vat_included"`
	VatSum         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_sum"`
	State          string          `gorm:"size:100" json:"state"`
	Shared         bool            `gorm:"default:true" json:"shared"`
	ExternalCode   string          `gorm:"size:64" json:"external_code"`
	CounterpartyId *int            `gorm:"index" json:"counterparty_id"`
	StoreId        *int            `gorm:"index" json:"store_id"`
	Counterparty   *Counterparty   `gorm:"foreignKey:CounterpartyId" json:"counterparty,omitempty"`
	Store          *Store          `gorm:"foreignKey:StoreId" json:"store,omitempty"`
}

type PurchaseDocument struct {
	SyncedModel
	DocType        string          `gorm:"size:50;not null;index" json:"doc_type"`
	Name           string          `gorm:"size:255;not null;index" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	Moment         *time.Time      `gorm:"index" json:"moment"`
	Applicable     bool            `gorm:"default:true" json:"applicable"`
	SumTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sum_total"`
	VatEnabled     bool            `gorm:"default:true" json:"vat_enabled"`
	VatIncluded    bool            `gorm:"default:true" json:"vat_included"`
	VatSum         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_sum"`
	State          string          `gorm:"size:100" json:"state"`
	Shared         bool            `gorm:"default:true" json:"shared"`
	ExternalCode   string          `gorm:"size:64" json:"external_code"`
	CounterpartyId *int            `gorm:"index" json:"counterparty_id"`
	StoreId        *int            `gorm:"index" json:"store_id"`
	Counterparty   *Counterparty   `gorm:"foreignKey:CounterpartyId" json:"counterparty,omitempty"`
	Store          *Store          `gorm:"foreignKey:StoreId" json:"store,omitempty"`
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	DocType        string
	CounterpartyId *int
}

func (f DocumentFilter) apply(tx *gorm.DB) *gorm.DB {
	if f.DocType != "" {
		tx = tx.Where("doc_type = ?", f.DocType)
	}
	if f.CounterpartyId != nil {
		tx = tx.Where("counterparty_id = ?", *f.CounterpartyId)
	}
	return tx
}

func ListSalesDocuments(db *gorm.DB, f DocumentFilter, p Pagination) ([]SalesDocument, int64, error) {
	var rows []SalesDocument
	var total int64
	tx := f.apply(db.Model(&SalesDocument{}).Where("is_deleted = ?", false))
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := p.Apply(tx).Preload("Counterparty").Preload("Store").
		Order("moment desc, id desc").Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListPurchaseDocuments(db *gorm.DB, f DocumentFilter, p Pagination) ([]PurchaseDocument, int64, error) {
	var rows []PurchaseDocument
	var total int64
	tx := f.apply(db.Model(&PurchaseDocument{}).Where("is_deleted = ?", false))
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := p.Apply(tx).Preload("Counterparty").Preload("Store").
		Order("moment desc, id desc").Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
