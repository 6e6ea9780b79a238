package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
)

func ListStoresHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListStores(db, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		filter := models.StockFilter{
			ProductId: intQuery(c, "product_id"),
			StoreId:   intQuery(c, "store_id"),
		}
		if b := boolQuery(c, "non_zero"); b != nil {
			filter.NonZero = *b
		}
		p := pagination(c)
		rows, total, err := models.ListStock(db, filter, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}
