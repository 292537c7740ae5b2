package encryption

import (
	"context"
	"errors"
	"fmt"

	cgoCrypto "github.com/alwitt/cgoutils/crypto"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"gorm.io/gorm"
)

// generateKeyMaterial generate a new random symmetric key sized for the AEAD
func (e *cryptoEngine) generateKeyMaterial(ctx context.Context) ([]byte, error) {
	// RNG for generating the key
	rng := e.crypto.GetRNGReader()

	aead, err := e.crypto.GetAEAD(ctx, cgoCrypto.AEADTypeXChaCha20Poly1305)
	if err != nil {
		return nil, fmt.Errorf("unable to define AEAD client [%w]", err)
	}

	keyLen := aead.ExpectedKeyLen()

	newKey := make([]byte, keyLen)
	if n, err := rng.Read(newKey); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes from RNG [%w]", keyLen, err)
	} else if n != keyLen {
		return nil, fmt.Errorf("did not get %d bytes from RNG, only %d", keyLen, n)
	}
	return newKey, nil
}

/*
GetOrCreateDeviceKey fetch the device symmetric encryption key, generating and
persisting it on first use. Concurrent first calls converge on one persisted key.

	@param ctx context.Context - execution context
	@param activeDBClient Database - existing database transaction
	@returns the key entry
*/
func (e *cryptoEngine) GetOrCreateDeviceKey(
	ctx context.Context, activeDBClient db.Database,
) (models.EncryptionKey, error) {
	if keyID := e.cachedDeviceKeyID(); keyID != "" {
		if entry, ok := e.getCachedKey(keyID); ok {
			return entry.EncryptionKey, nil
		}
	}

	e.deviceKeyLock.Lock()
	defer e.deviceKeyLock.Unlock()

	var keyEntry encKeyCacheEntry
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, e.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			existing, err := dbClient.GetEncryptionKeyByLabel(dbCtx, models.DeviceKeyLabel)
			if err == nil {
				keyEntry, err = e.cacheKey(dbCtx, existing)
				return err
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			newKey, err := e.generateKeyMaterial(dbCtx)
			if err != nil {
				return fmt.Errorf("failed to generate device key [%w]", err)
			}

			// Encrypt the key for storage
			newKeyEnc, err := e.crypto.RSAEncrypt(dbCtx, newKey, e.rsaPubKey, nil)
			if err != nil {
				return fmt.Errorf("failed to encrypt symmetric enc key [%w]", err)
			}

			persisted, created, err := dbClient.RecordEncryptionKey(
				dbCtx, models.DeviceKeyLabel, newKeyEnc,
			)
			if err != nil {
				return fmt.Errorf("failed to record device key [%w]", err)
			}

			if created {
				log.WithFields(e.LogTags).
					WithField("key-id", persisted.ID).
					Info("Generated new device encryption key")
				e.writeKeyToCache(persisted, newKey)
				keyEntry = encKeyCacheEntry{EncryptionKey: persisted, plainTextKey: newKey}
				return nil
			}

			// Another process won the race; use its key
			keyEntry, err = e.cacheKey(dbCtx, persisted)
			return err
		},
	); dbErr != nil {
		return models.EncryptionKey{}, fmt.Errorf("failed to prepare device key [%w]", dbErr)
	}

	e.keyCacheLock.Lock()
	e.deviceKeyID = keyEntry.ID
	e.keyCacheLock.Unlock()

	return keyEntry.EncryptionKey, nil
}

// cachedDeviceKeyID the device key ID, if already known
func (e *cryptoEngine) cachedDeviceKeyID() string {
	e.keyCacheLock.RLock()
	defer e.keyCacheLock.RUnlock()
	return e.deviceKeyID
}

// writeKeyToCache write key into cache for use
func (e *cryptoEngine) writeKeyToCache(keyEntry models.EncryptionKey, plainKey []byte) {
	e.keyCacheLock.Lock()
	defer e.keyCacheLock.Unlock()
	e.encKeys[keyEntry.ID] = encKeyCacheEntry{EncryptionKey: keyEntry, plainTextKey: plainKey}
}

// getCachedKey helper function to read a key from cache
func (e *cryptoEngine) getCachedKey(keyID string) (encKeyCacheEntry, bool) {
	e.keyCacheLock.RLock()
	defer e.keyCacheLock.RUnlock()
	entry, ok := e.encKeys[keyID]
	return entry, ok
}

// cacheKey unwrap the key material with the device RSA key, and cache it
func (e *cryptoEngine) cacheKey(
	ctx context.Context, keyEntry models.EncryptionKey,
) (encKeyCacheEntry, error) {
	key, err := e.crypto.RSADecrypt(ctx, keyEntry.EncKeyMaterial, e.rsaKey, nil)
	if err != nil {
		return encKeyCacheEntry{EncryptionKey: keyEntry}, fmt.Errorf(
			"failed to decrypt symmetric key %s [%w]", keyEntry.ID, err,
		)
	}

	e.writeKeyToCache(keyEntry, key)

	return encKeyCacheEntry{EncryptionKey: keyEntry, plainTextKey: key}, nil
}

// getEncryptionKey core function for fetching on encryption key
func (e *cryptoEngine) getEncryptionKey(
	ctx context.Context, keyID string, activeDBClient db.Database,
) (encKeyCacheEntry, error) {
	if entry, cached := e.getCachedKey(keyID); cached {
		return entry, nil
	}

	var keyEntry models.EncryptionKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, e.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			keyEntry, err = dbClient.GetEncryptionKey(dbCtx, keyID)
			return err
		},
	); dbErr != nil {
		return encKeyCacheEntry{}, fmt.Errorf("encryption key %s unknown [%w]", keyID, dbErr)
	}

	plainKey, err := e.cacheKey(ctx, keyEntry)
	if err != nil {
		return encKeyCacheEntry{}, fmt.Errorf("unable to cache encryption key %s [%w]", keyID, err)
	}
	return plainKey, nil
}

/*
GetEncryptionKey fetch one encryption key

	@param ctx context.Context - execution context
	@param keyID string - the encryption key ID
	@param activeDBClient Database - existing database transaction
	@return key entry
*/
func (e *cryptoEngine) GetEncryptionKey(
	ctx context.Context, keyID string, activeDBClient db.Database,
) (models.EncryptionKey, error) {
	keyEntry, err := e.getEncryptionKey(ctx, keyID, activeDBClient)
	return keyEntry.EncryptionKey, err
}
