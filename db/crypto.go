package db

import (
	"context"
	"fmt"

	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

/*
RecordEncryptionKey record an encrypted symmetric encryption key under a label.

If a key with the same label already exists, nothing is written and the existing
entry is returned instead.

	@param ctx context.Context - execution context
	@param label string - key label
	@param encKeyMaterial []byte - encrypted key material
	@returns the persisted key entry, and whether this call created it
*/
func (d *databaseImpl) RecordEncryptionKey(
	_ context.Context, label string, encKeyMaterial []byte,
) (models.EncryptionKey, bool, error) {
	newEntry := EncryptionKeyDBEntry{
		EncryptionKey: models.EncryptionKey{
			ID:             uuid.NewString(),
			Label:          label,
			EncKeyMaterial: encKeyMaterial,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.EncryptionKey{}, false, fmt.Errorf(
			"new encryption key entry is invalid [%w]", err,
		)
	}

	// Only one key may ever hold a label; the loser of a race keeps the winner's key
	tmp := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "label"}},
		DoNothing: true,
	}).Create(&newEntry)
	if tmp.Error != nil {
		return models.EncryptionKey{}, false, fmt.Errorf(
			"new encryption key entry insert failed [%w]", tmp.Error,
		)
	}
	created := tmp.RowsAffected > 0

	persisted, err := d.getEncryptionKeyByLabel(label)
	if err != nil {
		return models.EncryptionKey{}, false, fmt.Errorf(
			"failed to read back encryption key '%s' [%w]", label, err,
		)
	}

	if !created {
		log.WithFields(d.LogTags).
			WithField("label", label).
			Debug("Encryption key label already in use, keeping existing key")
		return persisted.EncryptionKey, false, nil
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeNewDeviceKey,
		models.SystemEventEncKeyRelated{KeyID: persisted.ID, Label: label},
	); err != nil {
		return models.EncryptionKey{}, false, fmt.Errorf(
			"failed to log add new encryption key audit event [%w]", err,
		)
	}

	return persisted.EncryptionKey, true, nil
}

// getEncryptionKey fetch one encryption key
func (d *databaseImpl) getEncryptionKey(keyID string) (EncryptionKeyDBEntry, error) {
	var entry EncryptionKeyDBEntry
	err := d.db.Where("id = ?", keyID).First(&entry).Error
	return entry, err
}

// getEncryptionKeyByLabel fetch one encryption key by label
func (d *databaseImpl) getEncryptionKeyByLabel(label string) (EncryptionKeyDBEntry, error) {
	var entry EncryptionKeyDBEntry
	err := d.db.Where("label = ?", label).First(&entry).Error
	return entry, err
}

/*
GetEncryptionKey fetch one encryption key

	@param ctx context.Context - execution context
	@param keyID string - the encryption key ID
	@return key entry
*/
func (d *databaseImpl) GetEncryptionKey(
	_ context.Context, keyID string,
) (models.EncryptionKey, error) {
	entry, err := d.getEncryptionKey(keyID)
	if err != nil {
		return models.EncryptionKey{}, fmt.Errorf("failed to fetch encryption key %s [%w]", keyID, err)
	}
	return entry.EncryptionKey, nil
}

/*
GetEncryptionKeyByLabel fetch one encryption key by its label

	@param ctx context.Context - execution context
	@param label string - the encryption key label
	@return key entry
*/
func (d *databaseImpl) GetEncryptionKeyByLabel(
	_ context.Context, label string,
) (models.EncryptionKey, error) {
	entry, err := d.getEncryptionKeyByLabel(label)
	if err != nil {
		return models.EncryptionKey{}, fmt.Errorf(
			"failed to fetch encryption key '%s' [%w]", label, err,
		)
	}
	return entry.EncryptionKey, nil
}
