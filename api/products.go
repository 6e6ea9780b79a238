// Package api exposes the mirrored data over REST. All endpoints are
// read-only; writes happen through the sync pipeline.
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

func intQuery(c *gin.Context, key string) *int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func boolQuery(c *gin.Context, key string) *bool {
	v := strings.ToLower(strings.TrimSpace(c.Query(key)))
	switch v {
	case "true", "1":
		b := true
		return &b
	case "false", "0":
		b := false
		return &b
	}
	return nil
}

func pagination(c *gin.Context) models.Pagination {
	return models.ParsePagination(c.Query("limit"), c.Query("offset"))
}

func ListProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		filter := models.ProductFilter{
			Search:   strings.TrimSpace(c.Query("search")),
			FolderId: intQuery(c, "folder_id"),
			Archived: boolQuery(c, "archived"),
		}
		p := pagination(c)
		rows, total, err := models.ListProducts(db, filter, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func GetProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		row, err := models.GetProduct(db, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func ListProductFoldersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListProductFolders(db, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListProductVariantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListProductVariants(db, intQuery(c, "product_id"), p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListServicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListServices(db, strings.TrimSpace(c.Query("search")), p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListUnitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListUnitsOfMeasure(db, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}
