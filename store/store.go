// Package store - encrypted local object store
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/encryption"
	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// ErrUndecryptable a stored value failed authentication or could not be decrypted
var ErrUndecryptable = errors.New("stored value is undecryptable")

// Sealed an encrypted value along with the key and nonce needed to open it
type Sealed struct {
	// KeyID the encryption key used
	KeyID string
	// CipherText the encrypted value
	CipherText []byte
	// Nonce the encryption nonce used
	Nonce []byte
}

/*
EncryptedStore an encrypted object store with named partitions and a plain text
metadata partition.

Values are encrypted with the device key before they are written, and decrypted and
authenticated on read. Every operation accepts an optional active database transaction
so callers can compose several operations into one atomic unit.
*/
type EncryptedStore interface {
	/*
		Encrypt encrypt a value with the device key and a fresh nonce

			@param ctx context.Context - execution context
			@param plainText []byte - the value
			@param activeDBClient Database - existing database transaction
			@returns the sealed value
	*/
	Encrypt(ctx context.Context, plainText []byte, activeDBClient db.Database) (Sealed, error)

	/*
		Decrypt open a sealed value. Authentication failure returns an error wrapping
		ErrUndecryptable.

			@param ctx context.Context - execution context
			@param sealed Sealed - the sealed value
			@param activeDBClient Database - existing database transaction
			@returns the value
	*/
	Decrypt(ctx context.Context, sealed Sealed, activeDBClient db.Database) ([]byte, error)

	/*
		Partition get a handle on a named partition

			@param spec PartitionSpec - the partition definition
			@returns the partition handle
	*/
	Partition(spec PartitionSpec) (Partition, error)

	/*
		InTransaction run a unit of work within one transaction. Joins the active
		transaction if one is given.

			@param ctx context.Context - execution context
			@param activeDBClient Database - existing database transaction
			@param coreLogic func(ctx context.Context, dbClient db.Database) error - the unit of work
	*/
	InTransaction(
		ctx context.Context,
		activeDBClient db.Database,
		coreLogic func(ctx context.Context, dbClient db.Database) error,
	) error

	/*
		SetMeta set a metadata value

			@param ctx context.Context - execution context
			@param key string - metadata key
			@param value string - metadata value
			@param activeDBClient Database - existing database transaction
	*/
	SetMeta(ctx context.Context, key string, value string, activeDBClient db.Database) error

	/*
		GetMeta fetch a metadata value

			@param ctx context.Context - execution context
			@param key string - metadata key
			@param activeDBClient Database - existing database transaction
			@returns the value, and whether the key exists
	*/
	GetMeta(ctx context.Context, key string, activeDBClient db.Database) (string, bool, error)

	/*
		DeleteMeta delete a metadata value. Deleting an unknown key is not an error.

			@param ctx context.Context - execution context
			@param key string - metadata key
			@param activeDBClient Database - existing database transaction
	*/
	DeleteMeta(ctx context.Context, key string, activeDBClient db.Database) error

	/*
		ListMeta list all metadata values

			@param ctx context.Context - execution context
			@param activeDBClient Database - existing database transaction
			@returns metadata key to value
	*/
	ListMeta(ctx context.Context, activeDBClient db.Database) (map[string]string, error)
}

// encryptedStore implements EncryptedStore
type encryptedStore struct {
	goutils.Component

	persistence db.Client

	cryptoEngine encryption.CryptographyEngine

	validator *validator.Validate

	deviceKey models.EncryptionKey
}

/*
NewEncryptedStore define new encrypted store. The device encryption key is created on
first use.

	@param ctx context.Context - execution context
	@param persistence db.Client - persistence layer client
	@param cryptoEngine encryption.CryptographyEngine - cryptography engine
	@returns store instance
*/
func NewEncryptedStore(
	ctx context.Context, persistence db.Client, cryptoEngine encryption.CryptographyEngine,
) (EncryptedStore, error) {
	logTags := log.Fields{"module": "store", "component": "encrypted-store"}

	instance := &encryptedStore{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence:  persistence,
		cryptoEngine: cryptoEngine,
		validator:    validator.New(),
	}

	// Prepare the device encryption key
	if dbErr := persistence.UseDatabaseInTransaction(
		ctx, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			instance.deviceKey, err = cryptoEngine.GetOrCreateDeviceKey(dbCtx, dbClient)
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to prepare device encryption key [%w]", dbErr)
	}

	log.WithFields(logTags).
		WithField("key-id", instance.deviceKey.ID).
		Debug("Encrypted store ready")

	return instance, nil
}

/*
Encrypt encrypt a value with the device key and a fresh nonce

	@param ctx context.Context - execution context
	@param plainText []byte - the value
	@param activeDBClient Database - existing database transaction
	@returns the sealed value
*/
func (s *encryptedStore) Encrypt(
	ctx context.Context, plainText []byte, activeDBClient db.Database,
) (Sealed, error) {
	encrypted, err := s.cryptoEngine.EncryptData(ctx, s.deviceKey.ID, plainText, activeDBClient)
	if err != nil {
		return Sealed{}, fmt.Errorf("failed to encrypt value [%w]", err)
	}
	return Sealed{
		KeyID: s.deviceKey.ID, CipherText: encrypted.CipherText, Nonce: encrypted.Nonce,
	}, nil
}

/*
Decrypt open a sealed value. Authentication failure returns an error wrapping
ErrUndecryptable.

	@param ctx context.Context - execution context
	@param sealed Sealed - the sealed value
	@param activeDBClient Database - existing database transaction
	@returns the value
*/
func (s *encryptedStore) Decrypt(
	ctx context.Context, sealed Sealed, activeDBClient db.Database,
) ([]byte, error) {
	plainText, err := s.cryptoEngine.DecryptData(
		ctx,
		sealed.KeyID,
		encryption.EncryptedData{CipherText: sealed.CipherText, Nonce: sealed.Nonce},
		activeDBClient,
	)
	if err != nil {
		if errors.Is(err, encryption.ErrDecryptionFailed) {
			return nil, fmt.Errorf("%w [%v]", ErrUndecryptable, err)
		}
		return nil, fmt.Errorf("failed to decrypt value [%w]", err)
	}
	return plainText, nil
}

/*
InTransaction run a unit of work within one transaction. Joins the active transaction
if one is given.

	@param ctx context.Context - execution context
	@param activeDBClient Database - existing database transaction
	@param coreLogic func(ctx context.Context, dbClient db.Database) error - the unit of work
*/
func (s *encryptedStore) InTransaction(
	ctx context.Context,
	activeDBClient db.Database,
	coreLogic func(ctx context.Context, dbClient db.Database) error,
) error {
	return db.ActiveSessionWrapper(ctx, activeDBClient, s.persistence, coreLogic)
}

// ======================================================================================
// Metadata

func (s *encryptedStore) SetMeta(
	ctx context.Context, key string, value string, activeDBClient db.Database,
) error {
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, s.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			return dbClient.SetMeta(dbCtx, key, value)
		},
	); dbErr != nil {
		return fmt.Errorf("failed to set metadata '%s' [%w]", key, dbErr)
	}
	return nil
}

func (s *encryptedStore) GetMeta(
	ctx context.Context, key string, activeDBClient db.Database,
) (string, bool, error) {
	var entry models.MetaEntry
	found := true
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, s.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			entry, err = dbClient.GetMeta(dbCtx, key)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				found = false
				return nil
			}
			return err
		},
	); dbErr != nil {
		return "", false, fmt.Errorf("failed to read metadata '%s' [%w]", key, dbErr)
	}
	if !found {
		return "", false, nil
	}
	return entry.Value, true, nil
}

func (s *encryptedStore) DeleteMeta(
	ctx context.Context, key string, activeDBClient db.Database,
) error {
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, s.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			return dbClient.DeleteMeta(dbCtx, key)
		},
	); dbErr != nil {
		return fmt.Errorf("failed to delete metadata '%s' [%w]", key, dbErr)
	}
	return nil
}

func (s *encryptedStore) ListMeta(
	ctx context.Context, activeDBClient db.Database,
) (map[string]string, error) {
	var entries []models.MetaEntry
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, s.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			entries, err = dbClient.ListMeta(dbCtx)
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to list metadata [%w]", dbErr)
	}

	result := map[string]string{}
	for _, entry := range entries {
		result[entry.Key] = entry.Value
	}
	return result, nil
}
