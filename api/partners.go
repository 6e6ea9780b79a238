package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
)

func ListCounterpartiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		filter := models.CounterpartyFilter{
			Search:      strings.TrimSpace(c.Query("search")),
			CompanyType: strings.TrimSpace(c.Query("company_type")),
			Archived:    boolQuery(c, "archived"),
		}
		p := pagination(c)
		rows, total, err := models.ListCounterparties(db, filter, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func GetCounterpartyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterparty id"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		row, err := models.GetCounterparty(db, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "counterparty not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func ListContractsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListContracts(db, intQuery(c, "counterparty_id"), p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}
