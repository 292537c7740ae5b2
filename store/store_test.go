package store_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/encryption"
	mockencryption "github.com/alwitt/visitsync/mocks/encryption"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/store"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm/logger"
)

var sealPrefix = []byte("sealed:")

// fakeEncrypt reversible stand-in for AEAD encryption
func fakeEncrypt(
	_ context.Context, _ string, plainText []byte, _ db.Database,
) (encryption.EncryptedData, error) {
	cipherText := append(append([]byte{}, sealPrefix...), plainText...)
	return encryption.EncryptedData{CipherText: cipherText, Nonce: []byte(ulid.Make().String())}, nil
}

// fakeDecrypt stand-in for AEAD decryption; rejects anything fakeEncrypt did not produce
func fakeDecrypt(
	_ context.Context, _ string, encrypted encryption.EncryptedData, _ db.Database,
) ([]byte, error) {
	if !bytes.HasPrefix(encrypted.CipherText, sealPrefix) {
		return nil, fmt.Errorf("%w: bad tag", encryption.ErrDecryptionFailed)
	}
	return append([]byte{}, encrypted.CipherText[len(sealPrefix):]...), nil
}

// prepareTestStore create a temporary sqlite database, and an encrypted store over it
// using a fake cryptography engine
func prepareTestStore(t *testing.T) (store.EncryptedStore, db.Client, models.EncryptionKey) {
	utCtx := context.Background()

	testDB := fmt.Sprintf("/tmp/visitsync_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	dbClient, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(t, err)
	assert.Nil(t, dbClient.RunSQLInTransaction(utCtx, db.DefineTables))
	t.Cleanup(func() { _ = dbClient.Close() })

	var deviceKey models.EncryptionKey
	assert.Nil(t, dbClient.UseDatabaseInTransaction(
		utCtx, func(ctx context.Context, dbc db.Database) error {
			deviceKey, _, err = dbc.RecordEncryptionKey(ctx, models.DeviceKeyLabel, []byte("wrapped"))
			return err
		},
	))

	mockCrypto := mockencryption.NewCryptographyEngine(t)
	mockCrypto.On("GetOrCreateDeviceKey", mock.Anything, mock.Anything).Return(deviceKey, nil).Once()
	mockCrypto.On(
		"EncryptData", mock.Anything, deviceKey.ID, mock.Anything, mock.Anything,
	).Return(fakeEncrypt).Maybe()
	mockCrypto.On(
		"DecryptData", mock.Anything, deviceKey.ID, mock.Anything, mock.Anything,
	).Return(fakeDecrypt).Maybe()

	uut, err := store.NewEncryptedStore(utCtx, dbClient, mockCrypto)
	assert.Nil(t, err)
	return uut, dbClient, deviceKey
}

func TestEncryptedStoreEncryptDecrypt(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, _, deviceKey := prepareTestStore(t)

	sealed, err := uut.Encrypt(utCtx, []byte("hello"), nil)
	assert.Nil(err)
	assert.Equal(deviceKey.ID, sealed.KeyID)
	assert.NotEqual([]byte("hello"), sealed.CipherText)

	plain, err := uut.Decrypt(utCtx, sealed, nil)
	assert.Nil(err)
	assert.Equal([]byte("hello"), plain)

	// Tampered value
	sealed.CipherText[0] ^= 0x01
	_, err = uut.Decrypt(utCtx, sealed, nil)
	assert.True(errors.Is(err, store.ErrUndecryptable))
}

func TestEncryptedStoreInitFailure(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	testDB := fmt.Sprintf("/tmp/visitsync_ut_%s.db", ulid.Make().String())
	dbClient, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(dbClient.RunSQLInTransaction(utCtx, db.DefineTables))
	defer func() { _ = dbClient.Close() }()

	mockCrypto := mockencryption.NewCryptographyEngine(t)
	mockCrypto.On("GetOrCreateDeviceKey", mock.Anything, mock.Anything).
		Return(models.EncryptionKey{}, fmt.Errorf("no RNG")).Once()

	_, err = store.NewEncryptedStore(utCtx, dbClient, mockCrypto)
	assert.Error(err)
}

func TestEncryptedStoreMetadata(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, _, _ := prepareTestStore(t)

	// Case 0: missing key
	value, found, err := uut.GetMeta(utCtx, "lastSyncAt", nil)
	assert.Nil(err)
	assert.False(found)
	assert.Empty(value)

	// Case 1: set and read
	assert.Nil(uut.SetMeta(utCtx, "lastSyncAt", "2025-01-01T10:00:00Z", nil))
	value, found, err = uut.GetMeta(utCtx, "lastSyncAt", nil)
	assert.Nil(err)
	assert.True(found)
	assert.Equal("2025-01-01T10:00:00Z", value)

	// Case 2: list
	assert.Nil(uut.SetMeta(utCtx, "deviceName", "tablet", nil))
	all, err := uut.ListMeta(utCtx, nil)
	assert.Nil(err)
	assert.Equal(map[string]string{
		"lastSyncAt": "2025-01-01T10:00:00Z", "deviceName": "tablet",
	}, all)

	// Case 3: delete
	assert.Nil(uut.DeleteMeta(utCtx, "lastSyncAt", nil))
	assert.Nil(uut.DeleteMeta(utCtx, "lastSyncAt", nil))
	_, found, err = uut.GetMeta(utCtx, "lastSyncAt", nil)
	assert.Nil(err)
	assert.False(found)
}
