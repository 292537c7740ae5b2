package db

import (
	"context"

	"github.com/alwitt/visitsync/models"
	"gorm.io/gorm"
)

// --------------------------------------------------------------------------------------
// System audit events

// SystemEventAuditDBEntry system audit event DB entry
type SystemEventAuditDBEntry struct {
	models.SystemEventAudit
}

// TableName hard code table name
func (SystemEventAuditDBEntry) TableName() string {
	return "system_audit_events"
}

// --------------------------------------------------------------------------------------
// Encryption keys

// EncryptionKeyDBEntry encryption key DB entry
type EncryptionKeyDBEntry struct {
	models.EncryptionKey
}

// TableName hard code table name
func (EncryptionKeyDBEntry) TableName() string {
	return "encryption_keys"
}

// --------------------------------------------------------------------------------------
// Partition entries

// StoreEntryDBEntry encrypted partition entry DB entry
type StoreEntryDBEntry struct {
	models.StoreEntry
	EncKey EncryptionKeyDBEntry `gorm:"constraint:OnDelete:CASCADE;foreignKey:EncKeyID" validate:"-"`
}

// TableName hard code table name
func (StoreEntryDBEntry) TableName() string {
	return "store_entries"
}

// --------------------------------------------------------------------------------------
// Metadata

// MetaDBEntry plain text metadata DB entry
type MetaDBEntry struct {
	models.MetaEntry
}

// TableName hard code table name
func (MetaDBEntry) TableName() string {
	return "store_meta"
}

/*
DefineTables create or update the tables. Used when opening a local database, and by
unit-tests.

	@param ctx context.Context - execution context
	@param db *gorm.DB - the transaction
*/
func DefineTables(_ context.Context, db *gorm.DB) error {
	return db.AutoMigrate(
		SystemEventAuditDBEntry{},
		EncryptionKeyDBEntry{},
		StoreEntryDBEntry{},
		MetaDBEntry{},
	)
}
