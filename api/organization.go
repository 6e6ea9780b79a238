package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
)

func ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListOrganizations(db, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListEmployeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListEmployees(db, strings.TrimSpace(c.Query("search")), p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListProjects(db, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListCurrenciesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListCurrencies(db, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}

func ListCountriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		p := pagination(c)
		rows, total, err := models.ListCountries(db, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.ListResult{Rows: rows, Total: total, Limit: p.Limit, Offset: p.Offset})
	}
}
