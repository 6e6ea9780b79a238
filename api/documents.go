package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
)

func documentFilter(c *gin.Context) models.DocumentFilter {
	return models.DocumentFilter{
		DocType:        strings.TrimSpace(c.Query("doc_type")),
		CounterpartyId: intQuery(c, "counterparty_id"),
	}
}

func ListSalesDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListSalesDocuments(db, documentFilter(c), p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListPurchaseDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListPurchaseDocuments(db, documentFilter(c), p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}
