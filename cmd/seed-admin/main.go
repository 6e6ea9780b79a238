package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"strings"

	"gorm.io/gorm"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
	"bitbucket.org/almasoft/crm_backend/utils"
)

// Seeds (or resets the password of) an admin user. Intended for
// initial environment setup:
//
//	go run ./cmd/seed-admin -username admin -email admin@example.com
//
// The password comes from SEED_ADMIN_PASSWORD.
func main() {
	username := flag.String("username", "admin", "admin username")
	email := flag.String("email", "", "admin email")
	fullName := flag.String("full-name", "Administrator", "display name")
	flag.Parse()

	password := strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD"))
	if password == "" {
		log.Fatal("SEED_ADMIN_PASSWORD is required")
	}
	if len(password) < 8 {
		log.Fatal("SEED_ADMIN_PASSWORD must be at least 8 characters")
	}

	hashedBytes, err := utils.HashPassword(password)
	if err != nil {
		log.Fatal(err)
	}
	hashed := string(hashedBytes)

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	models.MigrateTable()

	var existing models.User
	err = db.Where("username = ?", *username).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user := models.User{
			Username: *username,
			Email:    *email,
			Password: hashed,
			FullName: *fullName,
			IsAdmin:  true,
			IsActive: true,
		}
		if err := db.Create(&user).Error; err != nil {
			log.Fatal(err)
		}
		log.Printf("created admin user %q (id=%d)", user.Username, user.ID)
	case err != nil:
		log.Fatal(err)
	default:
		updates := map[string]interface{}{
			"password":  hashed,
			"is_admin":  true,
			"is_active": true,
		}
		if *email != "" {
			updates["email"] = *email
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			log.Fatal(err)
		}
		log.Printf("updated admin user %q (id=%d)", existing.Username, existing.ID)
	}
}
