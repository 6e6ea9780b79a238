package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the read API under the given group
// (conventionally /api/v1).
func RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/products", ListProductsHandler())
	rg.GET("/products/export", ExportProductsHandler())
	rg.GET("/products/:id", GetProductHandler())
	rg.GET("/product-folders", ListProductFoldersHandler())
	rg.GET("/product-variants", ListProductVariantsHandler())
	rg.GET("/services", ListServicesHandler())
	rg.GET("/units", ListUnitsHandler())

	rg.GET("/counterparties", ListCounterpartiesHandler())
	rg.GET("/counterparties/:id", GetCounterpartyHandler())
	rg.GET("/contracts", ListContractsHandler())
	rg.GET("/sales-documents", ListSalesDocumentsHandler())
	rg.GET("/purchase-documents", ListPurchaseDocumentsHandler())

	rg.GET("/stores", ListStoresHandler())
	rg.GET("/stock", ListStockHandler())

	rg.GET("/organizations", ListOrganizationsHandler())
	rg.GET("/employees", ListEmployeesHandler())
	rg.GET("/projects", ListProjectsHandler())
	rg.GET("/currencies", ListCurrenciesHandler())
	rg.GET("/countries", ListCountriesHandler())
}
