package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"gorm.io/gorm"
)

// PartitionSpec named partition definition
type PartitionSpec struct {
	// Name partition name
	Name string `validate:"required"`
	// Indexes names of the secondary indexes values may be queried by
	Indexes []string `validate:"dive,required"`
}

// Item a value to write into a partition
type Item struct {
	// Key the entry key. An unset key on Add requests an auto-assigned numeric key.
	Key models.EntryKey
	// Value the plain text value
	Value []byte
	// Indexes secondary index values; only declared indexes are accepted
	Indexes map[string]string
}

// Entry a decrypted partition entry
type Entry struct {
	// Key the entry key
	Key models.EntryKey
	// Value the plain text value
	Value []byte
	// Indexes secondary index values
	Indexes map[string]string
	// CreatedAt entry creation timestamp
	CreatedAt time.Time
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time
}

// ListResult the readable entries of a listing, and the keys of entries which could
// not be decrypted
type ListResult struct {
	Entries    []Entry
	Unreadable []models.EntryKey
}

// Partition a named partition of the encrypted store
type Partition interface {
	// Name partition name
	Name() string

	/*
		Add insert a new value

			@param ctx context.Context - execution context
			@param item Item - the value
			@param activeDBClient Database - existing database transaction
			@returns the entry key
	*/
	Add(ctx context.Context, item Item, activeDBClient db.Database) (models.EntryKey, error)

	/*
		BulkAdd insert many values within one transaction. All values are encrypted
		before the write transaction starts.

			@param ctx context.Context - execution context
			@param items []Item - the values
			@param activeDBClient Database - existing database transaction
			@returns the entry keys, in the same order as items
	*/
	BulkAdd(ctx context.Context, items []Item, activeDBClient db.Database) ([]models.EntryKey, error)

	/*
		ReplaceAll replace the entire content of the partition within one transaction.
		All values are encrypted before the write transaction starts. Items sharing a key
		collapse into the last one.

			@param ctx context.Context - execution context
			@param items []Item - the new content
			@param activeDBClient Database - existing database transaction
			@returns the entry keys, in the same order as items
	*/
	ReplaceAll(ctx context.Context, items []Item, activeDBClient db.Database) ([]models.EntryKey, error)

	/*
		Put insert or replace the value at a key

			@param ctx context.Context - execution context
			@param item Item - the value; the key must be set
			@param activeDBClient Database - existing database transaction
	*/
	Put(ctx context.Context, item Item, activeDBClient db.Database) error

	/*
		Get fetch one value. A missing key returns nil without error.

			@param ctx context.Context - execution context
			@param key models.EntryKey - the entry key
			@param activeDBClient Database - existing database transaction
			@returns the entry
	*/
	Get(ctx context.Context, key models.EntryKey, activeDBClient db.Database) (*Entry, error)

	/*
		GetAll fetch all values in insertion order

			@param ctx context.Context - execution context
			@param activeDBClient Database - existing database transaction
			@returns the entries
	*/
	GetAll(ctx context.Context, activeDBClient db.Database) (ListResult, error)

	/*
		GetAllByIndex fetch all values whose secondary index matches, in insertion order

			@param ctx context.Context - execution context
			@param index string - the secondary index
			@param value string - the index value to match
			@param activeDBClient Database - existing database transaction
			@returns the entries
	*/
	GetAllByIndex(
		ctx context.Context, index string, value string, activeDBClient db.Database,
	) (ListResult, error)

	/*
		CountByIndex count the values whose secondary index matches. Undecryptable values
		are counted.

			@param ctx context.Context - execution context
			@param index string - the secondary index
			@param value string - the index value to match
			@param activeDBClient Database - existing database transaction
			@returns the number of entries
	*/
	CountByIndex(
		ctx context.Context, index string, value string, activeDBClient db.Database,
	) (int64, error)

	/*
		Delete delete one value. Deleting an unknown key is not an error.

			@param ctx context.Context - execution context
			@param key models.EntryKey - the entry key
			@param activeDBClient Database - existing database transaction
	*/
	Delete(ctx context.Context, key models.EntryKey, activeDBClient db.Database) error

	/*
		DeleteMany delete many values

			@param ctx context.Context - execution context
			@param keys []models.EntryKey - the entry keys
			@param activeDBClient Database - existing database transaction
			@returns number of values removed
	*/
	DeleteMany(ctx context.Context, keys []models.EntryKey, activeDBClient db.Database) (int64, error)

	/*
		Clear delete every value in the partition

			@param ctx context.Context - execution context
			@param activeDBClient Database - existing database transaction
			@returns number of values removed
	*/
	Clear(ctx context.Context, activeDBClient db.Database) (int64, error)
}

// partition implements Partition
type partition struct {
	goutils.Component
	store   *encryptedStore
	name    string
	indexes map[string]bool
}

/*
Partition get a handle on a named partition

	@param spec PartitionSpec - the partition definition
	@returns the partition handle
*/
func (s *encryptedStore) Partition(spec PartitionSpec) (Partition, error) {
	if err := s.validator.Struct(&spec); err != nil {
		return nil, fmt.Errorf("invalid partition definition [%w]", err)
	}

	indexes := map[string]bool{}
	for _, index := range spec.Indexes {
		indexes[index] = true
	}

	logTags := log.Fields{"module": "store", "component": "partition", "partition": spec.Name}
	return &partition{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		store:   s,
		name:    spec.Name,
		indexes: indexes,
	}, nil
}

func (p *partition) Name() string {
	return p.name
}

// seal encrypt one item for storage
func (p *partition) seal(
	ctx context.Context, item Item, activeDBClient db.Database,
) (db.SealedValue, error) {
	for index := range item.Indexes {
		if !p.indexes[index] {
			return db.SealedValue{}, fmt.Errorf(
				"index '%s' is not declared on partition '%s'", index, p.name,
			)
		}
	}

	sealed, err := p.store.Encrypt(ctx, item.Value, activeDBClient)
	if err != nil {
		return db.SealedValue{}, err
	}

	return db.SealedValue{
		IndexValues: item.Indexes,
		EncKeyID:    sealed.KeyID,
		CipherText:  sealed.CipherText,
		Nonce:       sealed.Nonce,
	}, nil
}

// open decrypt one stored entry
func (p *partition) open(
	ctx context.Context, entry models.StoreEntry, activeDBClient db.Database,
) (Entry, error) {
	key, err := entry.Key()
	if err != nil {
		return Entry{}, fmt.Errorf("'%s' entry %d has invalid key [%w]", p.name, entry.Seq, err)
	}

	plainText, err := p.store.Decrypt(ctx, Sealed{
		KeyID: entry.EncKeyID, CipherText: entry.EncValue, Nonce: entry.EncNonce,
	}, activeDBClient)
	if err != nil {
		return Entry{Key: key}, fmt.Errorf("failed to open '%s' entry %s [%w]", p.name, key, err)
	}

	indexes := map[string]string{}
	for name, value := range entry.IndexValues {
		if asString, ok := value.(string); ok {
			indexes[name] = asString
		}
	}

	return Entry{
		Key:       key,
		Value:     plainText,
		Indexes:   indexes,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}, nil
}

// openAll decrypt a listing, setting aside entries which fail to open
func (p *partition) openAll(
	ctx context.Context, entries []models.StoreEntry, activeDBClient db.Database,
) (ListResult, error) {
	result := ListResult{Entries: []Entry{}}
	for _, entry := range entries {
		opened, err := p.open(ctx, entry, activeDBClient)
		if err != nil {
			if errors.Is(err, ErrUndecryptable) {
				log.WithError(err).
					WithFields(p.LogTags).
					WithField("entry", entry.EntryKey).
					Error("Skipping undecryptable entry")
				result.Unreadable = append(result.Unreadable, opened.Key)
				continue
			}
			return ListResult{}, err
		}
		result.Entries = append(result.Entries, opened)
	}
	return result, nil
}

func (p *partition) Add(
	ctx context.Context, item Item, activeDBClient db.Database,
) (models.EntryKey, error) {
	sealed, err := p.seal(ctx, item, activeDBClient)
	if err != nil {
		return models.EntryKey{}, err
	}

	var newEntry models.StoreEntry
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			newEntry, err = dbClient.AddEntry(dbCtx, p.name, item.Key, sealed)
			return err
		},
	); dbErr != nil {
		return models.EntryKey{}, fmt.Errorf("failed to add entry to '%s' [%w]", p.name, dbErr)
	}

	return newEntry.Key()
}

// sealAll encrypt a batch of items for storage
func (p *partition) sealAll(
	ctx context.Context, items []Item, activeDBClient db.Database,
) ([]db.SealedValue, error) {
	sealedItems := make([]db.SealedValue, 0, len(items))
	for idx, item := range items {
		sealed, err := p.seal(ctx, item, activeDBClient)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare item %d for '%s' [%w]", idx, p.name, err)
		}
		sealedItems = append(sealedItems, sealed)
	}
	return sealedItems, nil
}

// insertAll write a batch of sealed items. Keyed items are upserted when replace is set.
func (p *partition) insertAll(
	ctx context.Context,
	dbClient db.Database,
	items []Item,
	sealedItems []db.SealedValue,
	replace bool,
) ([]models.EntryKey, error) {
	keys := make([]models.EntryKey, 0, len(items))
	for idx, sealed := range sealedItems {
		var newEntry models.StoreEntry
		var err error
		if replace && !items[idx].Key.IsZero() {
			newEntry, err = dbClient.PutEntry(ctx, p.name, items[idx].Key, sealed)
		} else {
			newEntry, err = dbClient.AddEntry(ctx, p.name, items[idx].Key, sealed)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert item %d [%w]", idx, err)
		}
		key, err := newEntry.Key()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *partition) BulkAdd(
	ctx context.Context, items []Item, activeDBClient db.Database,
) ([]models.EntryKey, error) {
	sealedItems, err := p.sealAll(ctx, items, activeDBClient)
	if err != nil {
		return nil, err
	}

	var keys []models.EntryKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			keys, err = p.insertAll(dbCtx, dbClient, items, sealedItems, false)
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to bulk add to '%s' [%w]", p.name, dbErr)
	}

	return keys, nil
}

func (p *partition) ReplaceAll(
	ctx context.Context, items []Item, activeDBClient db.Database,
) ([]models.EntryKey, error) {
	sealedItems, err := p.sealAll(ctx, items, activeDBClient)
	if err != nil {
		return nil, err
	}

	var keys []models.EntryKey
	var removed int64
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			removed, err = dbClient.ClearPartition(dbCtx, p.name)
			if err != nil {
				return err
			}
			keys, err = p.insertAll(dbCtx, dbClient, items, sealedItems, true)
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to replace content of '%s' [%w]", p.name, dbErr)
	}

	log.WithFields(p.LogTags).
		WithField("removed", removed).
		WithField("inserted", len(keys)).
		Info("Partition content replaced")
	return keys, nil
}

func (p *partition) Put(ctx context.Context, item Item, activeDBClient db.Database) error {
	if item.Key.IsZero() {
		return fmt.Errorf("put into '%s' requires an entry key", p.name)
	}

	sealed, err := p.seal(ctx, item, activeDBClient)
	if err != nil {
		return err
	}

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			_, err := dbClient.PutEntry(dbCtx, p.name, item.Key, sealed)
			return err
		},
	); dbErr != nil {
		return fmt.Errorf("failed to put '%s' entry %s [%w]", p.name, item.Key, dbErr)
	}
	return nil
}

func (p *partition) Get(
	ctx context.Context, key models.EntryKey, activeDBClient db.Database,
) (*Entry, error) {
	var stored models.StoreEntry
	found := true
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			stored, err = dbClient.GetEntry(dbCtx, p.name, key)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				found = false
				return nil
			}
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to read '%s' entry %s [%w]", p.name, key, dbErr)
	}
	if !found {
		return nil, nil
	}

	entry, err := p.open(ctx, stored, activeDBClient)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// list fetch and decrypt entries matching a filter
func (p *partition) list(
	ctx context.Context, filters db.StoreEntryQueryFilter, activeDBClient db.Database,
) (ListResult, error) {
	var result ListResult
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			entries, err := dbClient.ListEntries(dbCtx, p.name, filters)
			if err != nil {
				return err
			}
			result, err = p.openAll(dbCtx, entries, dbClient)
			return err
		},
	); dbErr != nil {
		return ListResult{}, fmt.Errorf("failed to list '%s' entries [%w]", p.name, dbErr)
	}
	return result, nil
}

func (p *partition) GetAll(ctx context.Context, activeDBClient db.Database) (ListResult, error) {
	return p.list(ctx, db.StoreEntryQueryFilter{}, activeDBClient)
}

func (p *partition) GetAllByIndex(
	ctx context.Context, index string, value string, activeDBClient db.Database,
) (ListResult, error) {
	if !p.indexes[index] {
		return ListResult{}, fmt.Errorf("index '%s' is not declared on partition '%s'", index, p.name)
	}
	return p.list(ctx, db.StoreEntryQueryFilter{IndexName: &index, IndexValue: value}, activeDBClient)
}

func (p *partition) CountByIndex(
	ctx context.Context, index string, value string, activeDBClient db.Database,
) (int64, error) {
	if !p.indexes[index] {
		return 0, fmt.Errorf("index '%s' is not declared on partition '%s'", index, p.name)
	}

	var count int64
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			count, err = dbClient.CountEntries(
				dbCtx, p.name, db.StoreEntryQueryFilter{IndexName: &index, IndexValue: value},
			)
			return err
		},
	); dbErr != nil {
		return 0, fmt.Errorf("failed to count '%s' entries [%w]", p.name, dbErr)
	}
	return count, nil
}

func (p *partition) Delete(
	ctx context.Context, key models.EntryKey, activeDBClient db.Database,
) error {
	_, err := p.DeleteMany(ctx, []models.EntryKey{key}, activeDBClient)
	return err
}

func (p *partition) DeleteMany(
	ctx context.Context, keys []models.EntryKey, activeDBClient db.Database,
) (int64, error) {
	var removed int64
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			removed, err = dbClient.DeleteEntries(dbCtx, p.name, keys)
			return err
		},
	); dbErr != nil {
		return 0, fmt.Errorf("failed to delete '%s' entries [%w]", p.name, dbErr)
	}
	return removed, nil
}

func (p *partition) Clear(ctx context.Context, activeDBClient db.Database) (int64, error) {
	var removed int64
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, p.store.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			removed, err = dbClient.ClearPartition(dbCtx, p.name)
			return err
		},
	); dbErr != nil {
		return 0, fmt.Errorf("failed to clear '%s' [%w]", p.name, dbErr)
	}

	log.WithFields(p.LogTags).WithField("removed", removed).Info("Partition cleared")
	return removed, nil
}
