package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Store struct {
	SyncedModel
	Name         string `gorm:"size:255;not null;index" json:"name"`
	Code         string `gorm:"size:64" json:"code"`
	Address      string `gorm:"size:500" json:"address"`
	PathName     string `gorm:"size:500" json:"path_name"`
	Description  string `gorm:"type:text" json:"description"`
	ExternalCode string `gorm:"size:64" json:"external_code"`
	Archived     bool   `gorm:"default:false" json:"archived"`
}

// Stock mirrors the per-store stock report. Rows have no identity of
// their own upstream, so ExternalId carries a synthetic
// "<product-id>:<store-id>" pair and the (product_id, store_id)
// composite keeps local rows unique.
type Stock struct {
	SyncedModel
	ProductId *int            `gorm:"index:idx_stock_product_store,unique" json:"product_id"`
	StoreId   *int            `gorm:"index:idx_stock_product_store,unique" json:"store_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	InTransit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"in_transit"`
	Reserve   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reserve"`
	Available decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available"`
	Product   *Product        `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	Store     *Store          `gorm:"foreignKey:StoreId" json:"store,omitempty"`
}

func ListStores(db *gorm.DB, p Pagination) ([]Store, int64, error) {
	var rows []Store
	var total int64
	tx := db.Model(&Store{}).Where("is_deleted = ?", false)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

type StockFilter struct {
	ProductId *int
	StoreId   *int
	// NonZero keeps rows where either on-hand or reserved quantity is set.
	NonZero bool
}

func (f StockFilter) apply(tx *gorm.DB) *gorm.DB {
	tx = tx.Where("is_deleted = ?", false)
	if f.ProductId != nil {
		tx = tx.Where("product_id = ?", *f.ProductId)
	}
	if f.StoreId != nil {
		tx = tx.Where("store_id = ?", *f.StoreId)
	}
	if f.NonZero {
		tx = tx.Where("quantity <> 0 OR reserve <> 0")
	}
	return tx
}

func ListStock(db *gorm.DB, f StockFilter, p Pagination) ([]Stock, int64, error) {
	var rows []Stock
	var total int64
	tx := f.apply(db.Model(&Stock{}))
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := p.Apply(tx).Preload("Product").Preload("Store").
		Order("id asc").Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
