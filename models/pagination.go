package models

import (
	"strconv"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ParsePagination clamps raw query values to sane bounds. Bad input
// falls back to defaults rather than erroring.
func ParsePagination(limitStr, offsetStr string) Pagination {
	p := Pagination{Limit: DefaultPageSize, Offset: 0}
	if v, err := strconv.Atoi(limitStr); err == nil && v > 0 {
		p.Limit = v
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if v, err := strconv.Atoi(offsetStr); err == nil && v >= 0 {
		p.Offset = v
	}
	return p
}

func (p Pagination) Apply(tx *gorm.DB) *gorm.DB {
	return tx.Limit(p.Limit).Offset(p.Offset)
}

// ListResult is the envelope every collection endpoint returns.
type ListResult struct {
	Rows   interface{} `json:"rows"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
