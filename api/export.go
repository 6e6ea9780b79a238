package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
)

const exportBatchSize = 1000

// ExportProductsHandler streams the product catalog as an xlsx file.
// Rows are fetched in batches so a large catalog does not load at once.
func ExportProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		filter := models.ProductFilter{
			Search:   strings.TrimSpace(c.Query("search")),
			FolderId: intQuery(c, "folder_id"),
			Archived: boolQuery(c, "archived"),
		}

		f := excelize.NewFile()
		sheet := "Products"
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		headers := []string{"ID", "Name", "Code", "Article", "Folder", "Unit", "SalePrice", "BuyPrice", "MinPrice", "Archived", "LastSyncAt"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheet, cell, h)
		}

		rowNo := 2
		offset := 0
		for {
			rows, _, err := models.ListProducts(db, filter, models.Pagination{Limit: exportBatchSize, Offset: offset})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if len(rows) == 0 {
				break
			}
			for _, p := range rows {
				folderName := ""
				if p.Folder != nil {
					folderName = p.Folder.Name
				}
				unitName := ""
				if p.UnitOfMeasure != nil {
					unitName = p.UnitOfMeasure.Name
				}
				lastSync := ""
				if p.LastSyncAt != nil {
					lastSync = p.LastSyncAt.UTC().Format("2006-01-02 15:04:05")
				}
				values := []interface{}{
					p.ID, p.Name, p.Code, p.Article, folderName, unitName,
					p.SalePrice.String(), p.BuyPrice.String(), p.MinPrice.String(),
					p.Archived, lastSync,
				}
				for i, v := range values {
					cell, _ := excelize.CoordinatesToCellName(i+1, rowNo)
					f.SetCellValue(sheet, cell, v)
				}
				rowNo++
			}
			if len(rows) < exportBatchSize {
				break
			}
			offset += exportBatchSize
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=products-%d.xlsx", rowNo-2))
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "api", "ExportProductsHandler", "write failed", nil, err)
		}
	}
}
