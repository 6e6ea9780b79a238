package models

import (
	"gorm.io/gorm"
)

type Counterparty struct {
	SyncedModel
	Name          string `gorm:"size:500;not null;index" json:"name"`
	Code          string `gorm:"size:64;index" json:"code"`
	LegalTitle    string `gorm:"size:500" json:"legal_title"`
	CompanyType   string `gorm:"size:20" json:"company_type"`
	Inn           string `gorm:"size:20;index" json:"inn"`
	Kpp           string `gorm:"size:20" json:"kpp"`
	Ogrn          string `gorm:"size:20" json:"ogrn"`
	Email         string `gorm:"size:255" json:"email"`
	Phone         string `gorm:"size:50" json:"phone"`
	ActualAddress string `gorm:"size:500" json:"actual_address"`
	LegalAddress  string `gorm:"size:500" json:"legal_address"`
	Description   string `gorm:"type:text" json:"description"`
	Tags          []byte `gorm:"type:json" json:"tags,omitempty"`
	ExternalCode  string `gorm:"size:64" json:"external_code"`
	Archived      bool   `gorm:"default:false;index" json:"archived"`
}

type CounterpartyFilter struct {
	Search      string
	CompanyType string
	Archived    *bool
}

func (f CounterpartyFilter) apply(tx *gorm.DB) *gorm.DB {
	tx = tx.Where("is_deleted = ?", false)
	if f.Search != "" {
		like := "%" + f.Search + "%"
		tx = tx.Where("name LIKE ? OR legal_title LIKE ? OR inn LIKE ? OR email LIKE ?", like, like, like, like)
	}
	if f.CompanyType != "" {
		tx = tx.Where("company_type = ?", f.CompanyType)
	}
	if f.Archived != nil {
		tx = tx.Where("archived = ?", *f.Archived)
	}
	return tx
}

func ListCounterparties(db *gorm.DB, f CounterpartyFilter, p Pagination) ([]Counterparty, int64, error) {
	var rows []Counterparty
	var total int64
	tx := f.apply(db.Model(&Counterparty{}))
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func GetCounterparty(db *gorm.DB, id int) (*Counterparty, error) {
	var row Counterparty
	err := db.Where("id = ? AND is_deleted = ?", id, false).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
