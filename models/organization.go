package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Organization struct {
	SyncedModel
	Name          string `gorm:"size:500;not null;index" json:"name"`
	Code          string `gorm:"size:64" json:"code"`
	LegalTitle    string `gorm:"size:500" json:"legal_title"`
	Inn           string `gorm:"size:20;index" json:"inn"`
	Kpp           string `gorm:"size:20" json:"kpp"`
	Ogrn          string `gorm:"size:20" json:"ogrn"`
	Email         string `gorm:"size:255" json:"email"`
	Phone         string `gorm:"size:50" json:"phone"`
	ActualAddress string `gorm:"size:500" json:"actual_address"`
	LegalAddress  string `gorm:"size:500" json:"legal_address"`
	ExternalCode  string `gorm:"size:64" json:"external_code"`
	Archived      bool   `gorm:"default:false" json:"archived"`
}

type Employee struct {
	SyncedModel
	FirstName      string        `gorm:"size:255" json:"first_name"`
	LastName       string        `gorm:"size:255;index" json:"last_name"`
	MiddleName     string        `gorm:"size:255" json:"middle_name"`
	FullName       string        `gorm:"size:500;index" json:"full_name"`
	Email          string        `gorm:"size:255" json:"email"`
	Phone          string        `gorm:"size:50" json:"phone"`
	Position       string        `gorm:"size:255" json:"position"`
	ExternalCode   string        `gorm:"size:64" json:"external_code"`
	Archived       bool          `gorm:"default:false" json:"archived"`
	OrganizationId *int          `gorm:"index" json:"organization_id"`
	Organization   *Organization `gorm:"foreignKey:OrganizationId" json:"organization,omitempty"`
}

type Project struct {
	SyncedModel
	Name         string `gorm:"size:500;not null;index" json:"name"`
	Code         string `gorm:"size:64" json:"code"`
	Description  string `gorm:"type:text" json:"description"`
	ExternalCode string `gorm:"size:64" json:"external_code"`
	Archived     bool   `gorm:"default:false" json:"archived"`
}

type Contract struct {
	SyncedModel
	Name           string          `gorm:"size:500;not null;index" json:"name"`
	Code           string          `gorm:"size:64" json:"code"`
	Number         string          `gorm:"size:100" json:"number"`
	ContractType   string          `gorm:"size:50" json:"contract_type"`
	Moment         *time.Time      `json:"moment"`
	Sum            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sum"`
	RewardPercent  *int            `json:"reward_percent"`
	CounterpartyId *int            `gorm:"index" json:"counterparty_id"`
	OrganizationId *int            `gorm:"index" json:"organization_id"`
	ProjectId      *int            `gorm:"index" json:"project_id"`
	Description    string          `gorm:"type:text" json:"description"`
	ExternalCode   string          `gorm:"size:64" json:"external_code"`
	Archived       bool            `gorm:"default:false" json:"archived"`
	Counterparty   *Counterparty   `gorm:"foreignKey:CounterpartyId" json:"counterparty,omitempty"`
	Organization   *Organization   `gorm:"foreignKey:OrganizationId" json:"organization,omitempty"`
	Project        *Project        `gorm:"foreignKey:ProjectId" json:"project,omitempty"`
}

func ListOrganizations(db *gorm.DB, p Pagination) ([]Organization, int64, error) {
	var rows []Organization
	var total int64
	tx := db.Model(&Organization{}).Where("is_deleted = ?", false)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListEmployees(db *gorm.DB, search string, p Pagination) ([]Employee, int64, error) {
	var rows []Employee
	var total int64
	tx := db.Model(&Employee{}).Where("is_deleted = ?", false)
	if search != "" {
		like := "%" + search + "%"
		tx = tx.Where("full_name LIKE ? OR email LIKE ?", like, like)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("last_name asc, first_name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListProjects(db *gorm.DB, p Pagination) ([]Project, int64, error) {
	var rows []Project
	var total int64
	tx := db.Model(&Project{}).Where("is_deleted = ?", false)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := p.Apply(tx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func ListContracts(db *gorm.DB, counterpartyId *int, p Pagination) ([]Contract, int64, error) {
	var rows []Contract
	var total int64
	tx := db.Model(&Contract{}).Where("is_deleted = ?", false)
	if counterpartyId != nil {
		tx = tx.Where("counterparty_id = ?", *counterpartyId)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := p.Apply(tx).Preload("Counterparty").Preload("Organization").Preload("Project").
		Order("moment desc, id desc").Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
