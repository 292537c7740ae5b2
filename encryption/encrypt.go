package encryption

import (
	"context"
	"fmt"

	cgoCrypto "github.com/alwitt/cgoutils/crypto"
	"github.com/alwitt/visitsync/db"
)

// EncryptedData cipher text together with the nonce used to produce it
type EncryptedData struct {
	// CipherText the encrypted data including the authentication tag
	CipherText []byte
	// Nonce the nonce used during encryption
	Nonce []byte
}

// secureSlice view into a secure C buffer
type secureSlice interface {
	GetSlice() ([]byte, error)
}

// fillSecureSlice copy content into a secure C buffer of exactly the same length
func fillSecureSlice(buffer secureSlice, content []byte) error {
	core, err := buffer.GetSlice()
	if err != nil {
		return fmt.Errorf("failed to access secure buffer core [%w]", err)
	}
	if len(core) != len(content) {
		return fmt.Errorf("expected %d bytes, got %d", len(core), len(content))
	}
	if copied := copy(core, content); copied != len(content) {
		return fmt.Errorf("failed to fill secure buffer %d =/= %d", copied, len(content))
	}
	return nil
}

// setupAEAD prepare AEAD. An empty nonce requests a fresh random nonce.
func (e *cryptoEngine) setupAEAD(
	ctx context.Context, key []byte, nonce []byte,
) (cgoCrypto.AEAD, error) {
	aead, err := e.crypto.GetAEAD(ctx, cgoCrypto.AEADTypeXChaCha20Poly1305)
	if err != nil {
		return nil, fmt.Errorf("unable to define AEAD client [%w]", err)
	}

	// Set the AEAD encryption key
	keyBuffer, err := e.crypto.AllocateSecureCSlice(aead.ExpectedKeyLen())
	if err != nil {
		return nil, fmt.Errorf("failed to init AEAD key buffer [%w]", err)
	}
	if err := fillSecureSlice(keyBuffer, key); err != nil {
		return nil, fmt.Errorf("failed to fill AEAD key buffer [%w]", err)
	}
	if err := aead.SetKey(keyBuffer); err != nil {
		return nil, fmt.Errorf("failed to install AEAD key [%w]", err)
	}

	// Set the AEAD nonce
	if len(nonce) > 0 {
		nonceBuffer, err := e.crypto.AllocateSecureCSlice(aead.ExpectedNonceLen())
		if err != nil {
			return nil, fmt.Errorf("failed to init AEAD nonce buffer [%w]", err)
		}
		if err := fillSecureSlice(nonceBuffer, nonce); err != nil {
			return nil, fmt.Errorf("failed to fill AEAD nonce buffer [%w]", err)
		}
		if err := aead.SetNonce(nonceBuffer); err != nil {
			return nil, fmt.Errorf("failed to install AEAD nonce [%w]", err)
		}
	} else {
		nonceBuffer, err := e.crypto.GetRandomBuf(ctx, aead.ExpectedNonceLen())
		if err != nil {
			return nil, fmt.Errorf("failed to init AEAD nonce [%w]", err)
		}
		if err := aead.SetNonce(nonceBuffer); err != nil {
			return nil, fmt.Errorf("failed to install AEAD nonce [%w]", err)
		}
	}

	return aead, nil
}

/*
EncryptData encrypt plain text with a fresh random nonce

	@param ctx context.Context - execution context
	@param keyID string - the encryption key ID
	@param plainText []byte - the plain text to encrypt
	@param activeDBClient Database - existing database transaction
	@return the cipher text and nonce
*/
func (e *cryptoEngine) EncryptData(
	ctx context.Context, keyID string, plainText []byte, activeDBClient db.Database,
) (EncryptedData, error) {
	keyEntry, err := e.getEncryptionKey(ctx, keyID, activeDBClient)
	if err != nil {
		return EncryptedData{}, fmt.Errorf("failed to get encryption key %s [%w]", keyID, err)
	}

	aead, err := e.setupAEAD(ctx, keyEntry.plainTextKey, nil)
	if err != nil {
		return EncryptedData{}, fmt.Errorf("failed to setup AEAD client [%w]", err)
	}

	// Grab the nonce
	nonce, err := aead.Nonce().GetSlice()
	if err != nil {
		return EncryptedData{}, fmt.Errorf("failed to get nonce [%w]", err)
	}
	nonceCopy := make([]byte, aead.ExpectedNonceLen())
	if copied := copy(nonceCopy, nonce); copied != aead.ExpectedNonceLen() {
		return EncryptedData{}, fmt.Errorf(
			"failed to copy nonce %d =/= %d", copied, aead.ExpectedNonceLen(),
		)
	}

	cipherText := make([]byte, aead.ExpectedCipherLen(int64(len(plainText))))
	if err := aead.Seal(ctx, 0, plainText, nil, cipherText); err != nil {
		return EncryptedData{}, fmt.Errorf("failed to encrypt plain text [%w]", err)
	}

	return EncryptedData{CipherText: cipherText, Nonce: nonceCopy}, nil
}

/*
DecryptData decrypt and authenticate cipher text

	@param ctx context.Context - execution context
	@param keyID string - the encryption key ID
	@param encrypted EncryptedData - the cipher text to decrypt
	@param activeDBClient Database - existing database transaction
	@return the plain text
*/
func (e *cryptoEngine) DecryptData(
	ctx context.Context, keyID string, encrypted EncryptedData, activeDBClient db.Database,
) ([]byte, error) {
	keyEntry, err := e.getEncryptionKey(ctx, keyID, activeDBClient)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key %s [%w]", keyID, err)
	}

	if len(encrypted.Nonce) == 0 {
		return nil, fmt.Errorf("%w: missing nonce", ErrDecryptionFailed)
	}

	aead, err := e.setupAEAD(ctx, keyEntry.plainTextKey, encrypted.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: AEAD setup failed [%v]", ErrDecryptionFailed, err)
	}

	if int64(len(encrypted.CipherText)) < int64(aead.ExpectedCipherLen(0)) {
		return nil, fmt.Errorf(
			"%w: cipher text of %d bytes is truncated", ErrDecryptionFailed, len(encrypted.CipherText),
		)
	}

	plainText := make([]byte, aead.ExpectedPlainTextLen(int64(len(encrypted.CipherText))))
	if err := aead.Unseal(ctx, 0, encrypted.CipherText, nil, plainText); err != nil {
		return nil, fmt.Errorf("%w [%v]", ErrDecryptionFailed, err)
	}

	return plainText, nil
}
