package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/vodarr/internal/models"
)

const ownerCreatedIndex = "idx_videos_owner_created"

// AllMigrations returns all registered migrations in order.
//   - 001: Create the videos table
//   - 002: Composite index for owner listings ordered by upload time
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002OwnerListingIndex(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create videos table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Video{})
		},
		Down: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable(&models.Video{}) {
				return tx.Migrator().DropTable(&models.Video{})
			}
			return nil
		},
	}
}

// migration002OwnerListingIndex adds the (owner_id, created_at) index.
func migration002OwnerListingIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Add owner listing index on videos",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Video{}, ownerCreatedIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + ownerCreatedIndex + " ON videos (owner_id, created_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.Video{}, ownerCreatedIndex) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.Video{}, ownerCreatedIndex)
		},
	}
}
