package db

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// CommonListEntryQueryFilter common query filter when listing data entries
type CommonListEntryQueryFilter struct {
	Limit  *int
	Offset *int
}

// SystemEventQueryFilter audit event query filter conditions
type SystemEventQueryFilter struct {
	CommonListEntryQueryFilter
	// EventTypes the specific event types to query for
	EventTypes []models.SystemEventTypeENUMType
	// EventsAfter filter for events after this timestamp
	EventsAfter *time.Time
	// EventsBefore filter for events before this timestamp
	EventsBefore *time.Time
	// NewestFirst list the newest events first
	NewestFirst bool
}

// StoreEntryQueryFilter partition entry query filter conditions
type StoreEntryQueryFilter struct {
	CommonListEntryQueryFilter
	// IndexName filter on this secondary index
	IndexName *string
	// IndexValue required value of the secondary index
	IndexValue string
}

// SealedValue an encrypted value ready to be persisted into a partition
type SealedValue struct {
	// IndexValues plain text secondary index values
	IndexValues map[string]string
	// EncKeyID the encryption key used
	EncKeyID string
	// CipherText the encrypted value
	CipherText []byte
	// Nonce the encryption nonce used
	Nonce []byte
}

// Database the database handle to interacting with the data base
type Database interface {
	// ------------------------------------------------------------------------------------
	// System audit events

	/*
		ListSystemEvents list captured system events

			@param ctx context.Context - execution context
			@param filters SystemEventQueryFilter - entry listing filter
			@return list of system events
	*/
	ListSystemEvents(
		ctx context.Context, filters SystemEventQueryFilter,
	) ([]models.SystemEventAudit, error)

	/*
		RecordSyncRun record the outcome of one sync run

			@param ctx context.Context - execution context
			@param report models.SyncRunReport - the run summary
			@returns the audit event
	*/
	RecordSyncRun(ctx context.Context, report models.SyncRunReport) (models.SystemEventAudit, error)

	// ------------------------------------------------------------------------------------
	// Encryption keys

	/*
		RecordEncryptionKey record an encrypted symmetric encryption key under a label.

		If a key with the same label already exists, nothing is written and the existing
		entry is returned instead.

			@param ctx context.Context - execution context
			@param label string - key label
			@param encKeyMaterial []byte - encrypted key material
			@returns the persisted key entry, and whether this call created it
	*/
	RecordEncryptionKey(
		ctx context.Context, label string, encKeyMaterial []byte,
	) (models.EncryptionKey, bool, error)

	/*
		GetEncryptionKey fetch one encryption key

			@param ctx context.Context - execution context
			@param keyID string - the encryption key ID
			@return key entry
	*/
	GetEncryptionKey(ctx context.Context, keyID string) (models.EncryptionKey, error)

	/*
		GetEncryptionKeyByLabel fetch one encryption key by its label

			@param ctx context.Context - execution context
			@param label string - the encryption key label
			@return key entry
	*/
	GetEncryptionKeyByLabel(ctx context.Context, label string) (models.EncryptionKey, error)

	// ------------------------------------------------------------------------------------
	// Partition entries

	/*
		AddEntry insert a new entry into a partition. Fails if the key is already in use.

			@param ctx context.Context - execution context
			@param partition string - partition name
			@param key models.EntryKey - entry key; an unset key requests an auto-assigned
			    numeric key
			@param value SealedValue - the encrypted value
			@returns the new entry
	*/
	AddEntry(
		ctx context.Context, partition string, key models.EntryKey, value SealedValue,
	) (models.StoreEntry, error)

	/*
		PutEntry insert or replace the entry at a key

			@param ctx context.Context - execution context
			@param partition string - partition name
			@param key models.EntryKey - entry key
			@param value SealedValue - the encrypted value
			@returns the entry
	*/
	PutEntry(
		ctx context.Context, partition string, key models.EntryKey, value SealedValue,
	) (models.StoreEntry, error)

	/*
		GetEntry fetch one entry. A missing entry returns an error wrapping
		gorm.ErrRecordNotFound.

			@param ctx context.Context - execution context
			@param partition string - partition name
			@param key models.EntryKey - entry key
			@returns the entry
	*/
	GetEntry(
		ctx context.Context, partition string, key models.EntryKey,
	) (models.StoreEntry, error)

	/*
		ListEntries list entries of a partition in insertion order

			@param ctx context.Context - execution context
			@param partition string - partition name
			@param filters StoreEntryQueryFilter - entry listing filter
			@returns the entries
	*/
	ListEntries(
		ctx context.Context, partition string, filters StoreEntryQueryFilter,
	) ([]models.StoreEntry, error)

	/*
		CountEntries count entries of a partition

			@param ctx context.Context - execution context
			@param partition string - partition name
			@param filters StoreEntryQueryFilter - entry listing filter
			@returns number of matching entries
	*/
	CountEntries(
		ctx context.Context, partition string, filters StoreEntryQueryFilter,
	) (int64, error)

	/*
		DeleteEntries delete entries of a partition. Unknown keys are ignored.

			@param ctx context.Context - execution context
			@param partition string - partition name
			@param keys []models.EntryKey - entry keys
			@returns number of entries removed
	*/
	DeleteEntries(ctx context.Context, partition string, keys []models.EntryKey) (int64, error)

	/*
		ClearPartition delete all entries of a partition

			@param ctx context.Context - execution context
			@param partition string - partition name
			@returns number of entries removed
	*/
	ClearPartition(ctx context.Context, partition string) (int64, error)

	// ------------------------------------------------------------------------------------
	// Metadata

	/*
		SetMeta set a metadata value

			@param ctx context.Context - execution context
			@param key string - metadata key
			@param value string - metadata value
	*/
	SetMeta(ctx context.Context, key string, value string) error

	/*
		GetMeta fetch a metadata value. A missing key returns an error wrapping
		gorm.ErrRecordNotFound.

			@param ctx context.Context - execution context
			@param key string - metadata key
			@returns the entry
	*/
	GetMeta(ctx context.Context, key string) (models.MetaEntry, error)

	/*
		ListMeta list all metadata values

			@param ctx context.Context - execution context
			@returns the entries
	*/
	ListMeta(ctx context.Context) ([]models.MetaEntry, error)

	/*
		DeleteMeta delete a metadata value. Unknown keys are ignored.

			@param ctx context.Context - execution context
			@param key string - metadata key
	*/
	DeleteMeta(ctx context.Context, key string) error
}

// databaseImpl implements Database
type databaseImpl struct {
	goutils.Component
	db        *gorm.DB
	validator *validator.Validate
}

// newDatabase define a new database client
func newDatabase(_ context.Context, sqlClient *gorm.DB) (Database, error) {
	logTags := log.Fields{"package": "visitsync", "module": "db", "component": "db-client"}

	instance := &databaseImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db:        sqlClient,
		validator: validator.New(),
	}

	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}
