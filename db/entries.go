package db

import (
	"context"
	"fmt"

	"github.com/alwitt/visitsync/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ======================================================================================
// Partition entries

// defineEntry prepare a partition entry for insert
func (d *databaseImpl) defineEntry(
	partition string, encodedKey string, value SealedValue,
) (StoreEntryDBEntry, error) {
	indexValues := datatypes.JSONMap{}
	for name, indexValue := range value.IndexValues {
		indexValues[name] = indexValue
	}

	newEntry := StoreEntryDBEntry{
		StoreEntry: models.StoreEntry{
			Partition:   partition,
			EntryKey:    encodedKey,
			IndexValues: indexValues,
			EncKeyID:    value.EncKeyID,
			EncValue:    value.CipherText,
			EncNonce:    value.Nonce,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return StoreEntryDBEntry{}, fmt.Errorf(
			"new '%s' entry %s is not valid [%w]", partition, encodedKey, err,
		)
	}

	return newEntry, nil
}

/*
AddEntry insert a new entry into a partition. Fails if the key is already in use.

	@param ctx context.Context - execution context
	@param partition string - partition name
	@param key models.EntryKey - entry key; an unset key requests an auto-assigned
	    numeric key
	@param value SealedValue - the encrypted value
	@returns the new entry
*/
func (d *databaseImpl) AddEntry(
	_ context.Context, partition string, key models.EntryKey, value SealedValue,
) (models.StoreEntry, error) {
	autoKey := key.IsZero()

	encodedKey := key.Encode()
	if autoKey {
		// Placeholder until the insertion sequence is known
		encodedKey = "p:" + uuid.NewString()
	}

	newEntry, err := d.defineEntry(partition, encodedKey, value)
	if err != nil {
		return models.StoreEntry{}, err
	}

	if tmp := d.db.Omit(clause.Associations).Create(&newEntry); tmp.Error != nil {
		return models.StoreEntry{}, fmt.Errorf(
			"new '%s' entry %s insert failed [%w]", partition, encodedKey, tmp.Error,
		)
	}

	if autoKey {
		assigned := models.NumericKey(newEntry.Seq).Encode()
		if tmp := d.db.
			Model(&StoreEntryDBEntry{}).
			Where("seq = ?", newEntry.Seq).
			Update("entry_key", assigned); tmp.Error != nil {
			return models.StoreEntry{}, fmt.Errorf(
				"failed to assign key to new '%s' entry [%w]", partition, tmp.Error,
			)
		}
		newEntry.EntryKey = assigned
	}

	return newEntry.StoreEntry, nil
}

/*
PutEntry insert or replace the entry at a key

	@param ctx context.Context - execution context
	@param partition string - partition name
	@param key models.EntryKey - entry key
	@param value SealedValue - the encrypted value
	@returns the entry
*/
func (d *databaseImpl) PutEntry(
	_ context.Context, partition string, key models.EntryKey, value SealedValue,
) (models.StoreEntry, error) {
	if key.IsZero() {
		return models.StoreEntry{}, fmt.Errorf("put into '%s' requires an entry key", partition)
	}

	newEntry, err := d.defineEntry(partition, key.Encode(), value)
	if err != nil {
		return models.StoreEntry{}, err
	}

	if tmp := d.db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "partition_name"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"index_values", "enc_key_id", "enc_value", "enc_nonce", "updated_at"},
		),
	}).Create(&newEntry); tmp.Error != nil {
		return models.StoreEntry{}, fmt.Errorf(
			"'%s' entry %s upsert failed [%w]", partition, key, tmp.Error,
		)
	}

	persisted, err := d.getEntry(partition, key)
	if err != nil {
		return models.StoreEntry{}, fmt.Errorf(
			"failed to read back '%s' entry %s [%w]", partition, key, err,
		)
	}

	return persisted.StoreEntry, nil
}

// getEntry fetch one partition entry
func (d *databaseImpl) getEntry(partition string, key models.EntryKey) (StoreEntryDBEntry, error) {
	var entry StoreEntryDBEntry
	err := d.db.
		Where("partition_name = ? AND entry_key = ?", partition, key.Encode()).
		First(&entry).Error
	return entry, err
}

/*
GetEntry fetch one entry. A missing entry returns an error wrapping
gorm.ErrRecordNotFound.

	@param ctx context.Context - execution context
	@param partition string - partition name
	@param key models.EntryKey - entry key
	@returns the entry
*/
func (d *databaseImpl) GetEntry(
	_ context.Context, partition string, key models.EntryKey,
) (models.StoreEntry, error) {
	entry, err := d.getEntry(partition, key)
	if err != nil {
		return models.StoreEntry{}, fmt.Errorf(
			"failed to fetch '%s' entry %s [%w]", partition, key, err,
		)
	}
	return entry.StoreEntry, nil
}

// entryQuery build a partition entry query from filters
func (d *databaseImpl) entryQuery(partition string, filters StoreEntryQueryFilter) *gorm.DB {
	query := d.db.Model(&StoreEntryDBEntry{}).Where("partition_name = ?", partition)

	if filters.IndexName != nil {
		query = query.Where(
			datatypes.JSONQuery("index_values").Equals(filters.IndexValue, *filters.IndexName),
		)
	}

	return query
}

/*
ListEntries list entries of a partition in insertion order

	@param ctx context.Context - execution context
	@param partition string - partition name
	@param filters StoreEntryQueryFilter - entry listing filter
	@returns the entries
*/
func (d *databaseImpl) ListEntries(
	_ context.Context, partition string, filters StoreEntryQueryFilter,
) ([]models.StoreEntry, error) {
	query := d.entryQuery(partition, filters)

	if filters.Limit != nil {
		query = query.Limit(*filters.Limit)
	}
	if filters.Offset != nil {
		query = query.Offset(*filters.Offset)
	}

	query = query.Order("seq")

	var entries []StoreEntryDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list '%s' entries [%w]", partition, tmp.Error)
	}

	result := []models.StoreEntry{}
	for _, entry := range entries {
		result = append(result, entry.StoreEntry)
	}

	return result, nil
}

/*
CountEntries count entries of a partition

	@param ctx context.Context - execution context
	@param partition string - partition name
	@param filters StoreEntryQueryFilter - entry listing filter
	@returns number of matching entries
*/
func (d *databaseImpl) CountEntries(
	_ context.Context, partition string, filters StoreEntryQueryFilter,
) (int64, error) {
	var count int64
	if tmp := d.entryQuery(partition, filters).Count(&count); tmp.Error != nil {
		return 0, fmt.Errorf("failed to count '%s' entries [%w]", partition, tmp.Error)
	}
	return count, nil
}

/*
DeleteEntries delete entries of a partition. Unknown keys are ignored.

	@param ctx context.Context - execution context
	@param partition string - partition name
	@param keys []models.EntryKey - entry keys
	@returns number of entries removed
*/
func (d *databaseImpl) DeleteEntries(
	_ context.Context, partition string, keys []models.EntryKey,
) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	encodedKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		encodedKeys = append(encodedKeys, key.Encode())
	}

	tmp := d.db.
		Where("partition_name = ? AND entry_key in ?", partition, encodedKeys).
		Delete(&StoreEntryDBEntry{})
	if tmp.Error != nil {
		return 0, fmt.Errorf("failed to delete '%s' entries [%w]", partition, tmp.Error)
	}

	return tmp.RowsAffected, nil
}

/*
ClearPartition delete all entries of a partition

	@param ctx context.Context - execution context
	@param partition string - partition name
	@returns number of entries removed
*/
func (d *databaseImpl) ClearPartition(_ context.Context, partition string) (int64, error) {
	tmp := d.db.Where("partition_name = ?", partition).Delete(&StoreEntryDBEntry{})
	if tmp.Error != nil {
		return 0, fmt.Errorf("failed to clear partition '%s' [%w]", partition, tmp.Error)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeClearPartition,
		models.SystemEventPartitionRelated{Partition: partition, Removed: tmp.RowsAffected},
	); err != nil {
		return 0, fmt.Errorf("failed to log clear partition audit event [%w]", err)
	}

	return tmp.RowsAffected, nil
}
