package models

import (
	"log"

	"bitbucket.org/almasoft/crm_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Currency{}, &Country{},
		&UnitOfMeasure{}, &ProductFolder{}, &Product{}, &ProductVariant{}, &Service{},
		&Counterparty{},
		&Store{}, &Stock{},
		&Organization{}, &Employee{}, &Project{}, &Contract{},
		&SalesDocument{}, &PurchaseDocument{},
		&IntegrationConfig{}, &SyncJob{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
