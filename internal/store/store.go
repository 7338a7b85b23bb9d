// Package store holds the GORM-backed repositories of the two-factor core.
package store

import (
	"errors"

	"github.com/backoffice/server/internal/twofactor"
	"gorm.io/gorm"
)

// New wires every two-factor repository onto db.
func New(db *gorm.DB) twofactor.Repositories {
	return twofactor.Repositories{
		Factors:     &Factors{db: db},
		BackupCodes: &BackupCodes{db: db},
		Challenges:  &Challenges{db: db},
		Devices:     &Devices{db: db},
		Settings:    &Settings{db: db},
	}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return twofactor.ErrNotFound
	}
	return err
}
