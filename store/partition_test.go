package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/store"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestPartitionDefinition(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, _, _ := prepareTestStore(t)

	_, err := uut.Partition(store.PartitionSpec{})
	assert.Error(err)
	_, err = uut.Partition(store.PartitionSpec{Name: "forms", Indexes: []string{""}})
	assert.Error(err)

	forms, err := uut.Partition(store.PartitionSpec{Name: "forms", Indexes: []string{"synced"}})
	assert.Nil(err)
	assert.Equal("forms", forms.Name())
}

func TestPartitionAddGetDelete(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, _, _ := prepareTestStore(t)
	forms, err := uut.Partition(store.PartitionSpec{Name: "forms", Indexes: []string{"synced"}})
	assert.Nil(err)
	other, err := uut.Partition(store.PartitionSpec{Name: "other"})
	assert.Nil(err)

	// Case 0: auto assigned keys increase
	key1, err := forms.Add(utCtx, store.Item{
		Value: []byte(`{"a":1}`), Indexes: map[string]string{"synced": "0"},
	}, nil)
	assert.Nil(err)
	assert.True(key1.IsNumeric())
	key2, err := forms.Add(utCtx, store.Item{
		Value: []byte(`{"a":2}`), Indexes: map[string]string{"synced": "1"},
	}, nil)
	assert.Nil(err)
	assert.True(key2.IsNumeric())
	assert.Greater(key2.Numeric(), key1.Numeric())

	// Case 1: explicit key
	serverKey := models.StringKey("srv-1")
	key3, err := forms.Add(utCtx, store.Item{
		Key: serverKey, Value: []byte(`{"a":3}`), Indexes: map[string]string{"synced": "1"},
	}, nil)
	assert.Nil(err)
	assert.Equal(serverKey, key3)

	// Case 2: key already in use
	_, err = forms.Add(utCtx, store.Item{Key: serverKey, Value: []byte(`{}`)}, nil)
	assert.Error(err)

	// Case 3: undeclared index
	_, err = forms.Add(utCtx, store.Item{
		Value: []byte(`{}`), Indexes: map[string]string{"patient": "x"},
	}, nil)
	assert.Error(err)

	// Case 4: read back
	entry, err := forms.Get(utCtx, key1, nil)
	assert.Nil(err)
	assert.NotNil(entry)
	assert.Equal([]byte(`{"a":1}`), entry.Value)
	assert.Equal("0", entry.Indexes["synced"])

	// Case 5: missing key is not an error
	entry, err = forms.Get(utCtx, models.StringKey("unknown"), nil)
	assert.Nil(err)
	assert.Nil(entry)

	// Case 6: partitions are isolated
	entry, err = other.Get(utCtx, key1, nil)
	assert.Nil(err)
	assert.Nil(entry)

	// Case 7: listing in insertion order
	all, err := forms.GetAll(utCtx, nil)
	assert.Nil(err)
	assert.Len(all.Entries, 3)
	assert.Empty(all.Unreadable)
	assert.Equal(key1, all.Entries[0].Key)
	assert.Equal(key2, all.Entries[1].Key)
	assert.Equal(key3, all.Entries[2].Key)

	// Case 8: listing by index
	unsynced, err := forms.GetAllByIndex(utCtx, "synced", "0", nil)
	assert.Nil(err)
	assert.Len(unsynced.Entries, 1)
	assert.Equal(key1, unsynced.Entries[0].Key)
	count, err := forms.CountByIndex(utCtx, "synced", "1", nil)
	assert.Nil(err)
	assert.EqualValues(2, count)
	_, err = forms.GetAllByIndex(utCtx, "patient", "x", nil)
	assert.Error(err)

	// Case 9: delete
	assert.Nil(forms.Delete(utCtx, key1, nil))
	assert.Nil(forms.Delete(utCtx, key1, nil))
	entry, err = forms.Get(utCtx, key1, nil)
	assert.Nil(err)
	assert.Nil(entry)

	removed, err := forms.DeleteMany(utCtx, []models.EntryKey{key2, key3, key1}, nil)
	assert.Nil(err)
	assert.EqualValues(2, removed)
	all, err = forms.GetAll(utCtx, nil)
	assert.Nil(err)
	assert.Empty(all.Entries)
}

func TestPartitionPut(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, _, _ := prepareTestStore(t)
	forms, err := uut.Partition(store.PartitionSpec{Name: "forms", Indexes: []string{"synced"}})
	assert.Nil(err)

	// Case 0: key required
	assert.Error(forms.Put(utCtx, store.Item{Value: []byte(`{}`)}, nil))

	// Case 1: insert then replace
	key := models.StringKey("srv-9")
	assert.Nil(forms.Put(utCtx, store.Item{
		Key: key, Value: []byte(`{"v":1}`), Indexes: map[string]string{"synced": "0"},
	}, nil))
	assert.Nil(forms.Put(utCtx, store.Item{
		Key: key, Value: []byte(`{"v":2}`), Indexes: map[string]string{"synced": "1"},
	}, nil))

	entry, err := forms.Get(utCtx, key, nil)
	assert.Nil(err)
	assert.NotNil(entry)
	assert.Equal([]byte(`{"v":2}`), entry.Value)
	assert.Equal("1", entry.Indexes["synced"])

	count, err := forms.CountByIndex(utCtx, "synced", "0", nil)
	assert.Nil(err)
	assert.EqualValues(0, count)
}

func TestPartitionBulkAddAndClear(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient, _ := prepareTestStore(t)
	forms, err := uut.Partition(store.PartitionSpec{Name: "forms", Indexes: []string{"synced"}})
	assert.Nil(err)

	_, err = forms.Add(utCtx, store.Item{Value: []byte(`{"old":true}`)}, nil)
	assert.Nil(err)

	// Clear and bulk load as one unit
	var keys []models.EntryKey
	err = uut.InTransaction(utCtx, nil, func(ctx context.Context, dbc db.Database) error {
		removed, err := forms.Clear(ctx, dbc)
		if err != nil {
			return err
		}
		assert.EqualValues(1, removed)
		keys, err = forms.BulkAdd(ctx, []store.Item{
			{Key: models.StringKey("a"), Value: []byte(`{"n":"a"}`)},
			{Key: models.StringKey("b"), Value: []byte(`{"n":"b"}`)},
			{Value: []byte(`{"n":"local"}`)},
		}, dbc)
		return err
	})
	assert.Nil(err)
	assert.Len(keys, 3)
	assert.Equal(models.StringKey("a"), keys[0])
	assert.True(keys[2].IsNumeric())

	all, err := forms.GetAll(utCtx, nil)
	assert.Nil(err)
	assert.Len(all.Entries, 3)

	// A failed bulk add leaves nothing behind
	_, err = forms.BulkAdd(utCtx, []store.Item{
		{Key: models.StringKey("c"), Value: []byte(`{}`)},
		{Key: models.StringKey("a"), Value: []byte(`{}`)},
	}, nil)
	assert.Error(err)
	entry, err := forms.Get(utCtx, models.StringKey("c"), nil)
	assert.Nil(err)
	assert.Nil(entry)

	// Clearing is audited
	err = dbClient.UseDatabase(utCtx, func(ctx context.Context, dbc db.Database) error {
		events, err := dbc.ListSystemEvents(ctx, db.SystemEventQueryFilter{
			EventTypes: []models.SystemEventTypeENUMType{models.SystemEventTypeClearPartition},
		})
		assert.Nil(err)
		assert.Len(events, 1)
		return nil
	})
	assert.Nil(err)
}

func TestPartitionUndecryptableEntries(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, dbClient, deviceKey := prepareTestStore(t)
	forms, err := uut.Partition(store.PartitionSpec{Name: "forms", Indexes: []string{"synced"}})
	assert.Nil(err)

	goodKey, err := forms.Add(utCtx, store.Item{Value: []byte(`{"ok":true}`)}, nil)
	assert.Nil(err)

	// Write a corrupted value directly
	badKey := models.StringKey("corrupt")
	err = dbClient.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbc db.Database) error {
		_, err := dbc.AddEntry(ctx, "forms", badKey, db.SealedValue{
			EncKeyID: deviceKey.ID, CipherText: []byte("garbage"), Nonce: []byte("nonce"),
		})
		return err
	})
	assert.Nil(err)

	// Listing skips the corrupt entry
	all, err := forms.GetAll(utCtx, nil)
	assert.Nil(err)
	assert.Len(all.Entries, 1)
	assert.Equal(goodKey, all.Entries[0].Key)
	assert.Equal([]models.EntryKey{badKey}, all.Unreadable)

	// Reading it directly fails
	_, err = forms.Get(utCtx, badKey, nil)
	assert.True(errors.Is(err, store.ErrUndecryptable))
}

func TestPartitionReplaceAll(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, _, _ := prepareTestStore(t)
	forms, err := uut.Partition(store.PartitionSpec{Name: "forms", Indexes: []string{"synced"}})
	assert.Nil(err)

	_, err = forms.Add(utCtx, store.Item{Value: []byte(`{"old":1}`)}, nil)
	assert.Nil(err)
	_, err = forms.Add(utCtx, store.Item{Key: models.StringKey("x"), Value: []byte(`{"old":2}`)}, nil)
	assert.Nil(err)

	keys, err := forms.ReplaceAll(utCtx, []store.Item{
		{Key: models.StringKey("x"), Value: []byte(`{"new":1}`)},
		{Key: models.StringKey("y"), Value: []byte(`{"new":2}`)},
		{Key: models.StringKey("x"), Value: []byte(`{"new":3}`)},
	}, nil)
	assert.Nil(err)
	assert.Len(keys, 3)

	all, err := forms.GetAll(utCtx, nil)
	assert.Nil(err)
	assert.Len(all.Entries, 2)
	byKey := map[string]string{}
	for _, entry := range all.Entries {
		byKey[entry.Key.String()] = string(entry.Value)
	}
	assert.Equal(map[string]string{"x": `{"new":3}`, "y": `{"new":2}`}, byKey)

	// Replace with nothing empties the partition
	_, err = forms.ReplaceAll(utCtx, nil, nil)
	assert.Nil(err)
	all, err = forms.GetAll(utCtx, nil)
	assert.Nil(err)
	assert.Empty(all.Entries)
}
