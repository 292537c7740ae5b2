package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// DeviceRSAKeyBits size of a generated device RSA key
const DeviceRSAKeyBits = 3072

/*
GenerateDeviceRSAKeyPair generate a self-signed device certificate and private key, and
write them as PEM files. Existing files are never overwritten.

	@param certFile string - output certificate PEM file
	@param keyFile string - output private key PEM file
	@param commonName string - certificate subject common name
	@param validFor time.Duration - certificate validity period
*/
func GenerateDeviceRSAKeyPair(
	certFile, keyFile, commonName string, validFor time.Duration,
) error {
	privateKey, err := rsa.GenerateKey(rand.Reader, DeviceRSAKeyBits)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key [%w]", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return fmt.Errorf("failed to generate certificate serial number [%w]", err)
	}

	now := time.Now().UTC()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validFor),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
	}
	certDER, err := x509.CreateCertificate(
		rand.Reader, &template, &template, &privateKey.PublicKey, privateKey,
	)
	if err != nil {
		return fmt.Errorf("failed to sign device certificate [%w]", err)
	}

	keyDER := x509.MarshalPKCS1PrivateKey(privateKey)

	if err := writePEMFile(certFile, "CERTIFICATE", certDER, 0o644); err != nil {
		return err
	}
	if err := writePEMFile(keyFile, "RSA PRIVATE KEY", keyDER, 0o600); err != nil {
		_ = os.Remove(certFile)
		return err
	}
	return nil
}

// writePEMFile write one PEM block into a new file
func writePEMFile(path, blockType string, content []byte, perm os.FileMode) error {
	fileHandle, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("unable to create %s [%w]", path, err)
	}
	if err := pem.Encode(fileHandle, &pem.Block{Type: blockType, Bytes: content}); err != nil {
		_ = fileHandle.Close()
		return fmt.Errorf("failed to write %s [%w]", path, err)
	}
	if err := fileHandle.Close(); err != nil {
		return fmt.Errorf("failed to close %s [%w]", path, err)
	}
	return nil
}
