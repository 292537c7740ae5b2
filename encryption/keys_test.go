package encryption_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/encryption"
	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestCryptoEngineDeviceKey(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	dbClient := prepareTestDB(t)
	certFile, keyFile := prepareDeviceCert(t)

	params := encryption.CryptographyEngineParams{
		Persistence:       dbClient,
		DeviceRSACertFile: certFile,
		DeviceRSAKeyFile:  keyFile,
	}

	uut1, err := encryption.NewCryptographyEngine(utCtx, params)
	assert.Nil(err)

	// Case 0: first use generates the key
	key1, err := uut1.GetOrCreateDeviceKey(utCtx, nil)
	assert.Nil(err)
	assert.Equal(models.DeviceKeyLabel, key1.Label)
	assert.NotEmpty(key1.EncKeyMaterial)

	// Case 1: repeated call returns the same key
	key2, err := uut1.GetOrCreateDeviceKey(utCtx, nil)
	assert.Nil(err)
	assert.Equal(key1.ID, key2.ID)

	// Case 2: a second engine over the same database loads the persisted key
	uut2, err := encryption.NewCryptographyEngine(utCtx, params)
	assert.Nil(err)
	key3, err := uut2.GetOrCreateDeviceKey(utCtx, nil)
	assert.Nil(err)
	assert.Equal(key1.ID, key3.ID)

	// Case 3: data encrypted by one engine decrypts in the other
	encrypted, err := uut1.EncryptData(utCtx, key1.ID, []byte("visit payload"), nil)
	assert.Nil(err)
	plain, err := uut2.DecryptData(utCtx, key1.ID, encrypted, nil)
	assert.Nil(err)
	assert.Equal([]byte("visit payload"), plain)

	// Case 4: fetch by ID within a transaction
	err = dbClient.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbc db.Database) error {
		entry, err := uut2.GetEncryptionKey(ctx, key1.ID, dbc)
		assert.Nil(err)
		assert.Equal(key1.ID, entry.ID)
		return nil
	})
	assert.Nil(err)

	// Case 5: unknown key
	_, err = uut2.GetEncryptionKey(utCtx, "not-a-key", nil)
	assert.Error(err)
}

func TestCryptoEngineDeviceKeyConcurrent(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	dbClient := prepareTestDB(t)
	certFile, keyFile := prepareDeviceCert(t)

	uut, err := encryption.NewCryptographyEngine(utCtx, encryption.CryptographyEngineParams{
		Persistence:       dbClient,
		DeviceRSACertFile: certFile,
		DeviceRSAKeyFile:  keyFile,
	})
	assert.Nil(err)

	workers := 4
	keyIDs := make([]string, workers)
	errs := make([]error, workers)
	wg := sync.WaitGroup{}
	for idx := 0; idx < workers; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			key, err := uut.GetOrCreateDeviceKey(utCtx, nil)
			keyIDs[idx] = key.ID
			errs[idx] = err
		}(idx)
	}
	wg.Wait()

	for idx := 0; idx < workers; idx++ {
		assert.Nil(errs[idx])
		assert.Equal(keyIDs[0], keyIDs[idx])
	}
}
