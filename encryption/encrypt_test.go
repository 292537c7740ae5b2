package encryption_test

import (
	"context"
	"errors"
	"testing"

	cgoCrypto "github.com/alwitt/cgoutils/crypto"
	"github.com/alwitt/visitsync/encryption"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestCryptoEngineEncryptData(t *testing.T) {
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

	deviceKey, err := uut.GetOrCreateDeviceKey(utCtx, nil)
	assert.Nil(err)

	plainText := make([]byte, 1024)
	{
		coreCrypto, err := cgoCrypto.NewEngine(log.Fields{
			"package": "cgoutils", "module": "crypto", "component": "crypto-engine",
		})
		assert.Nil(err)
		rng := coreCrypto.GetRNGReader()
		read, err := rng.Read(plainText)
		assert.Nil(err)
		assert.Equal(len(plainText), read)
	}

	// Case 0: round trip
	encrypted, err := uut.EncryptData(utCtx, deviceKey.ID, plainText, nil)
	assert.Nil(err)
	assert.NotEmpty(encrypted.Nonce)
	assert.Greater(len(encrypted.CipherText), len(plainText))
	decrypted, err := uut.DecryptData(utCtx, deviceKey.ID, encrypted, nil)
	assert.Nil(err)
	assert.Equal(plainText, decrypted)

	// Case 1: every encryption uses a fresh nonce
	encrypted2, err := uut.EncryptData(utCtx, deviceKey.ID, plainText, nil)
	assert.Nil(err)
	assert.NotEqual(encrypted.Nonce, encrypted2.Nonce)
	assert.NotEqual(encrypted.CipherText, encrypted2.CipherText)

	// Case 2: tampered cipher text
	{
		tampered := encryption.EncryptedData{
			CipherText: append([]byte{}, encrypted.CipherText...),
			Nonce:      encrypted.Nonce,
		}
		tampered.CipherText[10] ^= 0x01
		_, err := uut.DecryptData(utCtx, deviceKey.ID, tampered, nil)
		assert.True(errors.Is(err, encryption.ErrDecryptionFailed))
	}

	// Case 3: wrong nonce
	{
		_, err := uut.DecryptData(utCtx, deviceKey.ID, encryption.EncryptedData{
			CipherText: encrypted.CipherText, Nonce: encrypted2.Nonce,
		}, nil)
		assert.True(errors.Is(err, encryption.ErrDecryptionFailed))
	}

	// Case 4: missing nonce or truncated cipher text
	{
		_, err := uut.DecryptData(utCtx, deviceKey.ID, encryption.EncryptedData{
			CipherText: encrypted.CipherText,
		}, nil)
		assert.True(errors.Is(err, encryption.ErrDecryptionFailed))
		_, err = uut.DecryptData(utCtx, deviceKey.ID, encryption.EncryptedData{
			CipherText: encrypted.CipherText[:4], Nonce: encrypted.Nonce,
		}, nil)
		assert.True(errors.Is(err, encryption.ErrDecryptionFailed))
	}
}
