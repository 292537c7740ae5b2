// Package models - system data models
package models

import "time"

// DeviceKeyLabel label of the per-device symmetric encryption key
const DeviceKeyLabel = "device-key"

// EncryptionKey an encryption key used to encrypt stored values
//
// These encryption keys are meant to be used for symmetric encryption. The key material
// is itself encrypted with the device RSA key pair before it is persisted.
type EncryptionKey struct {
	// ID key ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`

	// Label unique key purpose label
	Label string `json:"label" gorm:"column:label;not null;uniqueIndex" validate:"required"`

	// EncKeyMaterial the encrypted encryption key material
	EncKeyMaterial []byte `json:"enc_key_material" gorm:"column:enc_key_material;not null" validate:"required"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}
