package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductFolder struct {
	SyncedModel
	Name         string  `gorm:"size:255;not null;index" json:"name"`
	Code         string  `gorm:"size:64" json:"code"`
	PathName     string  `gorm:"size:500" json:"path_name"`
	Description  string  `gorm:"type:text" json:"description"`
	ParentId     *int    `gorm:"index" json:"parent_id"`
	ExternalCode string  `gorm:"size:64" json:"external_code"`
	Archived     bool    `gorm:"default:false" json:"archived"`
	VatRate      *int    `json:"vat_rate"`
	TaxSystem    string  `gorm:"size:50" json:"tax_system"`
	EffectiveVat *int    `json:"effective_vat"`
	Parent       *ProductFolder `gorm:"foreignKey:ParentId" json:"-"`
}

type UnitOfMeasure struct {
	SyncedModel
	Name         string `gorm:"size:255;not null" json:"name"`
	Code         string `gorm:"size:64;index" json:"code"`
	Description  string `gorm:"type:text" json:"description"`
	ExternalCode string `gorm:"size:64" json:"external_code"`
}

type Product struct {
	SyncedModel
	Name          string          `gorm:"size:500;not null;index" json:"name"`
	Code          string          `gorm:"size:64;index" json:"code"`
	Article       string          `gorm:"size:100;index" json:"article"`
	Description   string          `gorm:"type:text" json:"description"`
	FolderId      *int            `gorm:"index" json:"folder_id"`
	UomId         *int            `gorm:"index" json:"uom_id"`
	SalePrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sale_price"`
	BuyPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"buy_price"`
	MinPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_price"`
	CurrencyCode  string          `gorm:"size:10" json:"currency_code"`
	VatRate       *int            `json:"vat_rate"`
	Weight        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight"`
	Volume        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"volume"`
	Barcodes      []byte          `gorm:"type:json" json:"barcodes,omitempty"`
	ExternalCode  string          `gorm:"size:64" json:"external_code"`
	Archived      bool            `gorm:"default:false;index" json:"archived"`
	Folder        *ProductFolder  `gorm:"foreignKey:FolderId" json:"folder,omitempty"`
	UnitOfMeasure *UnitOfMeasure  `gorm:"foreignKey:UomId" json:"unit_of_measure,omitempty"`
}

type ProductVariant struct {
	SyncedModel
	ProductId       *int            `gorm:"index" json:"product_id"`
	Name            string          `gorm:"size:500;not null" json:"name"`
	Code            string          `gorm:"size:64" json:"code"`
	Article         string          `gorm:"size:100" json:"article"`
	Characteristics []byte          `gorm:"type:json" json:"characteristics,omitempty"`
	SalePrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sale_price"`
	Barcodes        []byte          `gorm:"type:json" json:"barcodes,omitempty"`
	ExternalCode    string          `gorm:"size:64" json:"external_code"`
	Archived        bool            `gorm:"default:false" json:"archived"`
	Product         *Product        `gorm:"foreignKey:ProductId" json:"-"`
}

// Service is a sellable service position, distinct from goods.
type Service struct {
	SyncedModel
	Name         string          `gorm:"size:500;not null;index" json:"name"`
	Code         string          `gorm:"size:64" json:"code"`
	Description  string          `gorm:"type:text" json:"description"`
	FolderId     *int            `gorm:"index" json:"folder_id"`
	SalePrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sale_price"`
	BuyPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"buy_price"`
	VatRate      *int            `json:"vat_rate"`
	ExternalCode string          `gorm:"size:64" json:"external_code"`
	Archived     bool            `gorm:"default:false" json:"archived"`
}

type ProductFilter struct {
	Search   string
	FolderId *int
	Archived *bool
}

func (f ProductFilter) apply(tx *gorm.DB) *gorm.DB {
	tx = tx.Where("is_deleted = ?", false)
	if f.Search != "" {
		like := "%" + f.Search + "%"
		tx = tx.Where("name LIKE ? OR code LIKE ? OR article LIKE ?", like, like, like)
	}
	if f.FolderId != nil {
		tx = tx.Where("folder_id = ?", *f.FolderId)
	}
	if f.Archived != nil {
		tx = tx.Where("archived = ?", *f.Archived)
	}
	return tx
}

func ListProducts(db *gorm.DB, f ProductFilter, p Pagination) ([]Product, int64, error) {
	var rows []Product
	var total int64
	tx := f.apply(db.Model(&Product{}))
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := p.Apply(tx).Preload("Folder").Preload("UnitOfMeasure").
		Order("name asc").Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func GetProduct(db *gorm.DB, id int) (*Product, error) {
	var row Product
	err := db.Preload("Folder").Preload("UnitOfMeasure").
		Where("id = ? AND is_deleted = ?", id, false).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func ListProductFolders(db *gorm.DB, p Pagination) ([]ProductFolder, int64, error) {
	var rows []ProductFolder
	var total int64
	tx := db.Model(&ProductFolder{}).Where("is_deleted = ?", false)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("path_name asc, name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListProductVariants(db *gorm.DB, productId *int, p Pagination) ([]ProductVariant, int64, error) {
	var rows []ProductVariant
	var total int64
	tx := db.Model(&ProductVariant{}).Where("is_deleted = ?", false)
	if productId != nil {
		tx = tx.Where("product_id = ?", *productId)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListServices(db *gorm.DB, search string, p Pagination) ([]Service, int64, error) {
	var rows []Service
	var total int64
	tx := db.Model(&Service{}).Where("is_deleted = ?", false)
	if search != "" {
		like := "%" + search + "%"
		tx = tx.Where("name LIKE ? OR code LIKE ?", like, like)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListUnitsOfMeasure(db *gorm.DB, p Pagination) ([]UnitOfMeasure, int64, error) {
	var rows []UnitOfMeasure
	var total int64
	tx := db.Model(&UnitOfMeasure{}).Where("is_deleted = ?", false)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
