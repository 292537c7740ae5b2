// Package visit - visit record repository
package visit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/store"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// PartitionName the store partition holding visit records
	PartitionName = "forms"
	// IndexSynced the secondary index on the record sync flag
	IndexSynced = "synced"
	// CheckpointKey the metadata key holding the last successful download time
	CheckpointKey = "lastSyncAt"
)

// MergeOutcome result of applying one remote change to the local collection
type MergeOutcome string

const (
	// MergeInserted the remote record was new locally
	MergeInserted MergeOutcome = "inserted"
	// MergeUpdated the clean local copy was replaced by the remote record
	MergeUpdated MergeOutcome = "updated"
	// MergeSkipped the local copy holds unsynced edits and was kept
	MergeSkipped MergeOutcome = "skipped"
	// MergeDeleted the clean local copy was removed
	MergeDeleted MergeOutcome = "deleted"
	// MergeNoop nothing to do
	MergeNoop MergeOutcome = "noop"
)

// ListResult the readable visit records of a listing
type ListResult struct {
	// Visits the readable records, in insertion order
	Visits []models.Visit
	// Unreadable number of records which could not be decrypted or decoded
	Unreadable int
}

// Repository visit record persistence on top of the encrypted store
type Repository interface {
	/*
		SaveOffline save a new record. The ID is assigned by the store unless the record
		already carries a server issued ID.

			@param ctx context.Context - execution context
			@param record models.Visit - the record
			@returns the record ID
	*/
	SaveOffline(ctx context.Context, record models.Visit) (models.EntryKey, error)

	/*
		GetUnsynced list the records with unsynced local changes

			@param ctx context.Context - execution context
			@returns the records
	*/
	GetUnsynced(ctx context.Context) (ListResult, error)

	/*
		CountUnsynced count the records with unsynced local changes, including ones which
		can not be read

			@param ctx context.Context - execution context
			@returns number of records
	*/
	CountUnsynced(ctx context.Context) (int64, error)

	/*
		GetAll list all records

			@param ctx context.Context - execution context
			@returns the records
	*/
	GetAll(ctx context.Context) (ListResult, error)

	/*
		Get fetch one record. A missing record returns nil without error.

			@param ctx context.Context - execution context
			@param id models.EntryKey - record ID
			@returns the record
	*/
	Get(ctx context.Context, id models.EntryKey) (*models.Visit, error)

	/*
		MarkSynced mark a record as synced. No-op if the record no longer exists.

			@param ctx context.Context - execution context
			@param id models.EntryKey - record ID
	*/
	MarkSynced(ctx context.Context, id models.EntryKey) error

	/*
		UpdateID move a record to a new ID. No-op if the record no longer exists.

			@param ctx context.Context - execution context
			@param oldID models.EntryKey - current record ID
			@param newID models.EntryKey - new record ID
	*/
	UpdateID(ctx context.Context, oldID models.EntryKey, newID models.EntryKey) error

	/*
		SwapToServerID replace a local placeholder record with the same record under its
		server issued ID, marked synced. Both changes commit together.

			@param ctx context.Context - execution context
			@param localID models.EntryKey - the local placeholder ID
			@param serverID models.EntryKey - the server issued ID
			@returns whether the local record still existed
	*/
	SwapToServerID(ctx context.Context, localID models.EntryKey, serverID models.EntryKey) (bool, error)

	/*
		DeleteOne delete one record

			@param ctx context.Context - execution context
			@param id models.EntryKey - record ID
	*/
	DeleteOne(ctx context.Context, id models.EntryKey) error

	/*
		DeleteMany delete many records

			@param ctx context.Context - execution context
			@param ids []models.EntryKey - record IDs
			@returns number of records removed
	*/
	DeleteMany(ctx context.Context, ids []models.EntryKey) (int64, error)

	/*
		ReplaceAll replace the whole collection with server data, each record marked synced

			@param ctx context.Context - execution context
			@param records []models.Visit - the server records
			@returns number of records now stored
	*/
	ReplaceAll(ctx context.Context, records []models.Visit) (int, error)

	/*
		ReplaceAllIfClean replace the whole collection with server records, but only when no
		unsynced record is stored. The check and the replacement share one transaction, so a
		record saved concurrently is either seen by the check or not removed.

			@param ctx context.Context - execution context
			@param records []models.Visit - the server records
			@returns whether the collection was replaced, and the number of records now stored
	*/
	ReplaceAllIfClean(ctx context.Context, records []models.Visit) (bool, int, error)

	/*
		ApplyRemote merge one server record into the collection. Local unsynced edits win.

			@param ctx context.Context - execution context
			@param record models.Visit - the server record
			@returns what was done
	*/
	ApplyRemote(ctx context.Context, record models.Visit) (MergeOutcome, error)

	/*
		ApplyRemoteDeletion apply one server side deletion. Local unsynced edits win.

			@param ctx context.Context - execution context
			@param id models.EntryKey - the deleted record ID
			@returns what was done
	*/
	ApplyRemoteDeletion(ctx context.Context, id models.EntryKey) (MergeOutcome, error)

	/*
		GetCheckpoint fetch the time of the last successful download

			@param ctx context.Context - execution context
			@returns the checkpoint, and whether one is recorded
	*/
	GetCheckpoint(ctx context.Context) (time.Time, bool, error)

	/*
		SetCheckpoint record the time of a successful download. The checkpoint never moves
		backwards; an earlier timestamp leaves the stored one in place.

			@param ctx context.Context - execution context
			@param timestamp time.Time - download time
			@returns the checkpoint now in effect
	*/
	SetCheckpoint(ctx context.Context, timestamp time.Time) (time.Time, error)

	/*
		ClearCheckpoint forget the checkpoint, so the next download is a full fetch

			@param ctx context.Context - execution context
	*/
	ClearCheckpoint(ctx context.Context) error
}

// storedVisit the persisted form of a record; the ID is the store entry key
type storedVisit struct {
	models.VisitDetails
	Synced models.SyncFlag `json:"synced"`
}

// repositoryImpl implements Repository
type repositoryImpl struct {
	goutils.Component
	store     store.EncryptedStore
	forms     store.Partition
	validator *validator.Validate
}

/*
NewRepository define new visit record repository

	@param encStore store.EncryptedStore - the encrypted store
	@returns repository instance
*/
func NewRepository(encStore store.EncryptedStore) (Repository, error) {
	logTags := log.Fields{"module": "visit", "component": "repository"}

	forms, err := encStore.Partition(
		store.PartitionSpec{Name: PartitionName, Indexes: []string{IndexSynced}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to define '%s' partition [%w]", PartitionName, err)
	}

	instance := &repositoryImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		store:     encStore,
		forms:     forms,
		validator: validator.New(),
	}
	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}

// toItem convert a record to its store form
func toItem(key models.EntryKey, details models.VisitDetails, synced models.SyncFlag) (store.Item, error) {
	payload, err := json.Marshal(storedVisit{VisitDetails: details, Synced: synced})
	if err != nil {
		return store.Item{}, fmt.Errorf("failed to serialize visit [%w]", err)
	}
	return store.Item{
		Key:     key,
		Value:   payload,
		Indexes: map[string]string{IndexSynced: strconv.Itoa(int(synced))},
	}, nil
}

// fromEntry convert a store entry back into a record
func fromEntry(entry store.Entry) (models.Visit, error) {
	var parsed storedVisit
	if err := json.Unmarshal(entry.Value, &parsed); err != nil {
		return models.Visit{}, fmt.Errorf("visit %s is not parsable [%w]", entry.Key, err)
	}
	return models.Visit{ID: entry.Key, VisitDetails: parsed.VisitDetails, Synced: parsed.Synced}, nil
}

// fromListing convert a store listing into records, skipping what can not be decoded
func (r *repositoryImpl) fromListing(listing store.ListResult) ListResult {
	result := ListResult{Visits: []models.Visit{}, Unreadable: len(listing.Unreadable)}
	for _, entry := range listing.Entries {
		record, err := fromEntry(entry)
		if err != nil {
			log.WithError(err).WithFields(r.LogTags).Error("Skipping unreadable visit")
			result.Unreadable++
			continue
		}
		result.Visits = append(result.Visits, record)
	}
	return result
}

// readOne fetch one record within a transaction
func (r *repositoryImpl) readOne(
	ctx context.Context, id models.EntryKey, dbClient db.Database,
) (*models.Visit, error) {
	entry, err := r.forms.Get(ctx, id, dbClient)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	record, err := fromEntry(*entry)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repositoryImpl) SaveOffline(
	ctx context.Context, record models.Visit,
) (models.EntryKey, error) {
	if err := r.validator.Struct(&record); err != nil {
		return models.EntryKey{}, fmt.Errorf("visit is not valid [%w]", err)
	}

	if record.ClientRef == "" {
		record.ClientRef = uuid.NewString()
	}

	// Local placeholder IDs are always assigned by the store
	key := record.ID
	if key.IsNumeric() {
		key = models.EntryKey{}
	}

	item, err := toItem(key, record.VisitDetails, record.Synced)
	if err != nil {
		return models.EntryKey{}, err
	}

	newKey, err := r.forms.Add(ctx, item, nil)
	if err != nil {
		return models.EntryKey{}, fmt.Errorf("failed to save visit [%w]", err)
	}

	log.WithFields(r.LogTags).
		WithField("visit", newKey.String()).
		WithField("synced", record.Synced).
		Debug("Saved visit")
	return newKey, nil
}

func (r *repositoryImpl) GetUnsynced(ctx context.Context) (ListResult, error) {
	listing, err := r.forms.GetAllByIndex(
		ctx, IndexSynced, strconv.Itoa(int(models.SyncFlagUnsynced)), nil,
	)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to list unsynced visits [%w]", err)
	}
	return r.fromListing(listing), nil
}

func (r *repositoryImpl) CountUnsynced(ctx context.Context) (int64, error) {
	count, err := r.forms.CountByIndex(
		ctx, IndexSynced, strconv.Itoa(int(models.SyncFlagUnsynced)), nil,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced visits [%w]", err)
	}
	return count, nil
}

func (r *repositoryImpl) GetAll(ctx context.Context) (ListResult, error) {
	listing, err := r.forms.GetAll(ctx, nil)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to list visits [%w]", err)
	}
	return r.fromListing(listing), nil
}

func (r *repositoryImpl) Get(ctx context.Context, id models.EntryKey) (*models.Visit, error) {
	record, err := r.readOne(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read visit %s [%w]", id, err)
	}
	return record, nil
}

func (r *repositoryImpl) MarkSynced(ctx context.Context, id models.EntryKey) error {
	return r.store.InTransaction(ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
		record, err := r.readOne(dbCtx, id, dbClient)
		if err != nil {
			return fmt.Errorf("failed to read visit %s [%w]", id, err)
		}
		if record == nil {
			return nil
		}
		item, err := toItem(id, record.VisitDetails, models.SyncFlagSynced)
		if err != nil {
			return err
		}
		return r.forms.Put(dbCtx, item, dbClient)
	})
}

// moveRecord move a record to a new key within a transaction
func (r *repositoryImpl) moveRecord(
	ctx context.Context,
	oldID, newID models.EntryKey,
	synced *models.SyncFlag,
	dbClient db.Database,
) (bool, error) {
	record, err := r.readOne(ctx, oldID, dbClient)
	if err != nil {
		return false, fmt.Errorf("failed to read visit %s [%w]", oldID, err)
	}
	if record == nil {
		return false, nil
	}

	flag := record.Synced
	if synced != nil {
		flag = *synced
	}

	if err := r.forms.Delete(ctx, oldID, dbClient); err != nil {
		return false, err
	}
	item, err := toItem(newID, record.VisitDetails, flag)
	if err != nil {
		return false, err
	}
	if err := r.forms.Put(ctx, item, dbClient); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repositoryImpl) UpdateID(ctx context.Context, oldID models.EntryKey, newID models.EntryKey) error {
	if oldID == newID {
		return nil
	}
	return r.store.InTransaction(ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
		_, err := r.moveRecord(dbCtx, oldID, newID, nil, dbClient)
		return err
	})
}

func (r *repositoryImpl) SwapToServerID(
	ctx context.Context, localID models.EntryKey, serverID models.EntryKey,
) (bool, error) {
	if serverID.IsZero() {
		return false, fmt.Errorf("swap of visit %s requires a server ID", localID)
	}

	synced := models.SyncFlagSynced
	existed := false
	if err := r.store.InTransaction(
		ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
			if localID == serverID {
				record, err := r.readOne(dbCtx, localID, dbClient)
				if err != nil || record == nil {
					return err
				}
				existed = true
				item, err := toItem(serverID, record.VisitDetails, synced)
				if err != nil {
					return err
				}
				return r.forms.Put(dbCtx, item, dbClient)
			}
			var err error
			existed, err = r.moveRecord(dbCtx, localID, serverID, &synced, dbClient)
			return err
		},
	); err != nil {
		return false, fmt.Errorf("failed to swap visit %s to %s [%w]", localID, serverID, err)
	}

	if !existed {
		log.WithFields(r.LogTags).
			WithField("visit", localID.String()).
			Warn("Visit removed before its server ID was recorded")
	}
	return existed, nil
}

func (r *repositoryImpl) DeleteOne(ctx context.Context, id models.EntryKey) error {
	if err := r.forms.Delete(ctx, id, nil); err != nil {
		return fmt.Errorf("failed to delete visit %s [%w]", id, err)
	}
	return nil
}

func (r *repositoryImpl) DeleteMany(ctx context.Context, ids []models.EntryKey) (int64, error) {
	removed, err := r.forms.DeleteMany(ctx, ids, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to delete visits [%w]", err)
	}
	return removed, nil
}

// syncedItems convert server records into store items tagged as synced
func syncedItems(records []models.Visit) ([]store.Item, error) {
	items := make([]store.Item, 0, len(records))
	for _, record := range records {
		item, err := toItem(record.ID, record.VisitDetails, models.SyncFlagSynced)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// replaceWithin clear the collection and insert the items within a transaction
func (r *repositoryImpl) replaceWithin(
	ctx context.Context, items []store.Item, dbClient db.Database,
) (int, error) {
	if _, err := r.forms.ReplaceAll(ctx, items, dbClient); err != nil {
		return 0, fmt.Errorf("failed to replace visits [%w]", err)
	}

	count, err := r.forms.CountByIndex(
		ctx, IndexSynced, strconv.Itoa(int(models.SyncFlagSynced)), dbClient,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits [%w]", err)
	}
	return int(count), nil
}

func (r *repositoryImpl) ReplaceAll(ctx context.Context, records []models.Visit) (int, error) {
	items, err := syncedItems(records)
	if err != nil {
		return 0, err
	}

	var stored int
	if err := r.store.InTransaction(
		ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
			stored, err = r.replaceWithin(dbCtx, items, dbClient)
			return err
		},
	); err != nil {
		return 0, err
	}
	return stored, nil
}

func (r *repositoryImpl) ReplaceAllIfClean(
	ctx context.Context, records []models.Visit,
) (bool, int, error) {
	items, err := syncedItems(records)
	if err != nil {
		return false, 0, err
	}

	replaced := false
	var stored int
	if err := r.store.InTransaction(
		ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
			dirty, err := r.forms.CountByIndex(
				dbCtx, IndexSynced, strconv.Itoa(int(models.SyncFlagUnsynced)), dbClient,
			)
			if err != nil {
				return fmt.Errorf("failed to count unsynced visits [%w]", err)
			}
			if dirty > 0 {
				log.WithFields(r.LogTags).
					WithField("unsynced", dirty).
					Debug("Unsynced visits present, collection not replaced")
				return nil
			}

			stored, err = r.replaceWithin(dbCtx, items, dbClient)
			if err != nil {
				return err
			}
			replaced = true
			return nil
		},
	); err != nil {
		return false, 0, err
	}
	return replaced, stored, nil
}

func (r *repositoryImpl) ApplyRemote(
	ctx context.Context, record models.Visit,
) (MergeOutcome, error) {
	// Server records without an ID can not be matched; keep them as new records
	if record.ID.IsZero() {
		item, err := toItem(models.EntryKey{}, record.VisitDetails, models.SyncFlagSynced)
		if err != nil {
			return MergeNoop, err
		}
		if _, err := r.forms.Add(ctx, item, nil); err != nil {
			return MergeNoop, fmt.Errorf("failed to insert remote visit [%w]", err)
		}
		return MergeInserted, nil
	}

	outcome := MergeNoop
	if err := r.store.InTransaction(
		ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
			local, err := r.readOne(dbCtx, record.ID, dbClient)
			if err != nil {
				if errors.Is(err, store.ErrUndecryptable) {
					log.WithError(err).
						WithFields(r.LogTags).
						WithField("visit", record.ID.String()).
						Error("Local copy unreadable, keeping it")
					outcome = MergeSkipped
					return nil
				}
				return err
			}

			switch {
			case local == nil:
				outcome = MergeInserted
			case local.IsDirty():
				outcome = MergeSkipped
				return nil
			default:
				outcome = MergeUpdated
			}

			item, err := toItem(record.ID, record.VisitDetails, models.SyncFlagSynced)
			if err != nil {
				return err
			}
			return r.forms.Put(dbCtx, item, dbClient)
		},
	); err != nil {
		return MergeNoop, fmt.Errorf("failed to merge remote visit %s [%w]", record.ID, err)
	}

	return outcome, nil
}

func (r *repositoryImpl) ApplyRemoteDeletion(
	ctx context.Context, id models.EntryKey,
) (MergeOutcome, error) {
	outcome := MergeNoop
	if err := r.store.InTransaction(
		ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
			local, err := r.readOne(dbCtx, id, dbClient)
			if err != nil {
				if errors.Is(err, store.ErrUndecryptable) {
					outcome = MergeSkipped
					return nil
				}
				return err
			}

			switch {
			case local == nil:
				return nil
			case local.IsDirty():
				outcome = MergeSkipped
				return nil
			}

			outcome = MergeDeleted
			return r.forms.Delete(dbCtx, id, dbClient)
		},
	); err != nil {
		return MergeNoop, fmt.Errorf("failed to apply remote deletion of %s [%w]", id, err)
	}

	return outcome, nil
}

// ======================================================================================
// Sync checkpoint

// readCheckpoint parse the stored checkpoint; an unparsable value counts as absent
func (r *repositoryImpl) readCheckpoint(
	ctx context.Context, dbClient db.Database,
) (time.Time, bool, error) {
	raw, found, err := r.store.GetMeta(ctx, CheckpointKey, dbClient)
	if err != nil {
		return time.Time{}, false, err
	}
	if !found {
		return time.Time{}, false, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		log.WithError(err).
			WithFields(r.LogTags).
			WithField("checkpoint", raw).
			Warn("Ignoring unparsable sync checkpoint")
		return time.Time{}, false, nil
	}
	return parsed, true, nil
}

func (r *repositoryImpl) GetCheckpoint(ctx context.Context) (time.Time, bool, error) {
	checkpoint, found, err := r.readCheckpoint(ctx, nil)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read sync checkpoint [%w]", err)
	}
	return checkpoint, found, nil
}

func (r *repositoryImpl) SetCheckpoint(ctx context.Context, timestamp time.Time) (time.Time, error) {
	timestamp = timestamp.UTC().Truncate(time.Second)
	effective := timestamp
	if err := r.store.InTransaction(
		ctx, nil, func(dbCtx context.Context, dbClient db.Database) error {
			current, found, err := r.readCheckpoint(dbCtx, dbClient)
			if err != nil {
				return err
			}
			if found && current.After(timestamp) {
				effective = current
				return nil
			}
			return r.store.SetMeta(dbCtx, CheckpointKey, timestamp.Format(time.RFC3339), dbClient)
		},
	); err != nil {
		return time.Time{}, fmt.Errorf("failed to write sync checkpoint [%w]", err)
	}

	if !effective.Equal(timestamp) {
		log.WithFields(r.LogTags).
			WithField("checkpoint", effective.Format(time.RFC3339)).
			WithField("rejected", timestamp.Format(time.RFC3339)).
			Warn("Sync checkpoint not moved backwards")
	}
	return effective, nil
}

func (r *repositoryImpl) ClearCheckpoint(ctx context.Context) error {
	if err := r.store.DeleteMeta(ctx, CheckpointKey, nil); err != nil {
		return fmt.Errorf("failed to clear sync checkpoint [%w]", err)
	}
	return nil
}
