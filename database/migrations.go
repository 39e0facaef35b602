package database

import (
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yatube/models"
)

func RunMigrations(db *gorm.DB) error {
	log.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Post{},
		&models.Comment{},
		&models.Follow{},
	)

	if err != nil {
		log.WithError(err).Error("Error running migrations")
		return err
	}

	log.Info("Migrations completed successfully")
	return nil
}
