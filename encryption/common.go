// Package encryption - data encryption processing engine
package encryption

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	cgoCrypto "github.com/alwitt/cgoutils/crypto"
	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// ErrDecryptionFailed the cipher text could not be authenticated or is malformed
var ErrDecryptionFailed = errors.New("decryption failed")

/*
CryptographyEngine the system's cryptography engine. It is solely responsible for all
cryptographic operations in the system, and owns the lifecycle of the device
encryption key.

The rest of the system must not directly interact with the encryption key APIs of the
persistence layer.
*/
type CryptographyEngine interface {
	/*
		GetOrCreateDeviceKey fetch the device symmetric encryption key, generating and
		persisting it on first use. Concurrent first calls converge on one persisted key.

			@param ctx context.Context - execution context
			@param activeDBClient Database - existing database transaction
			@returns the key entry
	*/
	GetOrCreateDeviceKey(ctx context.Context, activeDBClient db.Database) (models.EncryptionKey, error)

	/*
		GetEncryptionKey fetch one encryption key

			@param ctx context.Context - execution context
			@param keyID string - the encryption key ID
			@param activeDBClient Database - existing database transaction
			@return key entry
	*/
	GetEncryptionKey(
		ctx context.Context, keyID string, activeDBClient db.Database,
	) (models.EncryptionKey, error)

	/*
		EncryptData encrypt plain text with a fresh random nonce

			@param ctx context.Context - execution context
			@param keyID string - the encryption key ID
			@param plainText []byte - the plain text to encrypt
			@param activeDBClient Database - existing database transaction
			@return the cipher text and nonce
	*/
	EncryptData(
		ctx context.Context, keyID string, plainText []byte, activeDBClient db.Database,
	) (EncryptedData, error)

	/*
		DecryptData decrypt and authenticate cipher text

			@param ctx context.Context - execution context
			@param keyID string - the encryption key ID
			@param encrypted EncryptedData - the cipher text to decrypt
			@param activeDBClient Database - existing database transaction
			@return the plain text
	*/
	DecryptData(
		ctx context.Context, keyID string, encrypted EncryptedData, activeDBClient db.Database,
	) ([]byte, error)
}

// cryptoEngine implements CryptographyEngine
type cryptoEngine struct {
	goutils.Component

	persistence db.Client
	validator   *validator.Validate

	crypto cgoCrypto.Engine

	rsaKey    *rsa.PrivateKey
	rsaPubKey *rsa.PublicKey

	// deviceKeyLock serializes device key creation within this process
	deviceKeyLock sync.Mutex

	keyCacheLock *sync.RWMutex
	encKeys      map[string]encKeyCacheEntry
	deviceKeyID  string
}

// encKeyCacheEntry system encryption key cache entry
type encKeyCacheEntry struct {
	models.EncryptionKey
	// plainTextKey the decrypted symmetric encryption key
	plainTextKey []byte
}

// CryptographyEngineParams cryptography engine init parameters
//
// The device RSA key pair is used to encrypt and decrypt symmetric encryption keys
type CryptographyEngineParams struct {
	// Persistence persistence layer client
	Persistence db.Client `validate:"required"`
	// DeviceRSACertFile file path to the device RSA certificate PEM
	DeviceRSACertFile string `validate:"required,file"`
	// DeviceRSAKeyFile file path to the device RSA certificate private key PEM
	DeviceRSAKeyFile string `validate:"required,file"`
}

/*
NewCryptographyEngine define new cryptography engine

	@param ctx context.Context - execution context
	@param params CryptographyEngineParams - engine parameters
	@returns engine instance
*/
func NewCryptographyEngine(
	ctx context.Context, params CryptographyEngineParams,
) (CryptographyEngine, error) {
	// Prepare core crypto engine
	engine, err := cgoCrypto.NewEngine(log.Fields{
		"package": "cgoutils", "module": "crypto", "component": "crypto-engine",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare core cryptography [%w]", err)
	}

	logTags := log.Fields{"module": "encryption", "component": "crypto-engine"}

	instance := &cryptoEngine{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence:  params.Persistence,
		validator:    validator.New(),
		crypto:       engine,
		keyCacheLock: &sync.RWMutex{},
		encKeys:      make(map[string]encKeyCacheEntry),
	}
	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	// Load the device RSA certificate and private key
	if err := instance.validator.Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid engine init parameters [%w]", err)
	}
	if err := instance.loadRSAKeyPair(
		ctx, params.DeviceRSACertFile, params.DeviceRSAKeyFile,
	); err != nil {
		return nil, fmt.Errorf("failed to load device RSA key pair [%w]", err)
	}

	return instance, nil
}
