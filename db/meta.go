package db

import (
	"context"
	"fmt"

	"github.com/alwitt/visitsync/models"
	"gorm.io/gorm/clause"
)

/*
SetMeta set a metadata value

	@param ctx context.Context - execution context
	@param key string - metadata key
	@param value string - metadata value
*/
func (d *databaseImpl) SetMeta(_ context.Context, key string, value string) error {
	newEntry := MetaDBEntry{MetaEntry: models.MetaEntry{Key: key, Value: value}}

	if err := d.validator.Struct(&newEntry); err != nil {
		return fmt.Errorf("metadata entry '%s' is not valid [%w]", key, err)
	}

	if tmp := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value", "updated_at"}),
	}).Create(&newEntry); tmp.Error != nil {
		return fmt.Errorf("metadata entry '%s' upsert failed [%w]", key, tmp.Error)
	}

	return nil
}

/*
GetMeta fetch a metadata value. A missing key returns an error wrapping
gorm.ErrRecordNotFound.

	@param ctx context.Context - execution context
	@param key string - metadata key
	@returns the entry
*/
func (d *databaseImpl) GetMeta(_ context.Context, key string) (models.MetaEntry, error) {
	var entry MetaDBEntry
	if err := d.db.Where("meta_key = ?", key).First(&entry).Error; err != nil {
		return models.MetaEntry{}, fmt.Errorf("failed to fetch metadata '%s' [%w]", key, err)
	}
	return entry.MetaEntry, nil
}

/*
ListMeta list all metadata values

	@param ctx context.Context - execution context
	@returns the entries
*/
func (d *databaseImpl) ListMeta(_ context.Context) ([]models.MetaEntry, error) {
	var entries []MetaDBEntry
	if tmp := d.db.Order("meta_key").Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list metadata [%w]", tmp.Error)
	}

	result := []models.MetaEntry{}
	for _, entry := range entries {
		result = append(result, entry.MetaEntry)
	}
	return result, nil
}

/*
DeleteMeta delete a metadata value. Unknown keys are ignored.

	@param ctx context.Context - execution context
	@param key string - metadata key
*/
func (d *databaseImpl) DeleteMeta(_ context.Context, key string) error {
	if tmp := d.db.Where("meta_key = ?", key).Delete(&MetaDBEntry{}); tmp.Error != nil {
		return fmt.Errorf("failed to delete metadata '%s' [%w]", key, tmp.Error)
	}
	return nil
}
