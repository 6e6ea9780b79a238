package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Currency struct {
	SyncedModel
	Name         string          `gorm:"size:255;not null" json:"name"`
	FullName     string          `gorm:"size:255" json:"full_name"`
	Code         string          `gorm:"size:10;index" json:"code"`
	IsoCode      string          `gorm:"size:10;index" json:"iso_code"`
	Rate         decimal.Decimal `gorm:"type:decimal(20,4);default:1" json:"rate"`
	Multiplicity int             `gorm:"default:1" json:"multiplicity"`
	IsDefault    bool            `gorm:"default:false" json:"is_default"`
	Archived     bool            `gorm:"default:false" json:"archived"`
}

type Country struct {
	SyncedModel
	Name         string `gorm:"size:255;not null" json:"name"`
	Code         string `gorm:"size:10;index" json:"code"`
	ExternalCode string `gorm:"size:64" json:"external_code"`
	Description  string `gorm:"type:text" json:"description"`
}

func ListCurrencies(db *gorm.DB, p Pagination) ([]Currency, int64, error) {
	var rows []Currency
	var total int64
	tx := db.Model(&Currency{}).Where("is_deleted = ?", false)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListCountries(db *gorm.DB, p Pagination) ([]Country, int64, error) {
	var rows []Country
	var total int64
	tx := db.Model(&Country{}).Where("is_deleted = ?", false)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
