package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// SystemEventTypeENUMType system event type ENUM value type
type SystemEventTypeENUMType string

const (
	// SystemEventTypeNewDeviceKey the device encryption key was generated
	SystemEventTypeNewDeviceKey SystemEventTypeENUMType = "ADD_DEVICE_KEY"

	// SystemEventTypeClearPartition all entries of a partition were removed
	SystemEventTypeClearPartition SystemEventTypeENUMType = "CLEAR_PARTITION"

	// SystemEventTypeSyncSucceeded a sync run completed
	SystemEventTypeSyncSucceeded SystemEventTypeENUMType = "SYNC_SUCCEEDED"

	// SystemEventTypeSyncFailed a sync run ended early on failure
	SystemEventTypeSyncFailed SystemEventTypeENUMType = "SYNC_FAILED"
)

// SystemEventAudit recording of events occurring at the system level
type SystemEventAudit struct {
	// ID audit entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`
	// EventType system event type
	EventType SystemEventTypeENUMType `json:"type" gorm:"column:type;not null" validate:"required,system_event_type"`
	// Metadata a metadata relating to the event
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata;default:null"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseMetadata parse the metadata based on the event type
func (a SystemEventAudit) ParseMetadata(validator *validator.Validate) (interface{}, error) {
	switch a.EventType {
	case SystemEventTypeNewDeviceKey:
		var parsed SystemEventEncKeyRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	case SystemEventTypeClearPartition:
		var parsed SystemEventPartitionRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	case SystemEventTypeSyncSucceeded:
		fallthrough
	case SystemEventTypeSyncFailed:
		var parsed SyncRunReport
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)
	}
	return nil, nil
}

// SystemEventEncKeyRelated system event metadata related to encryption key
type SystemEventEncKeyRelated struct {
	// KeyID the encryption key added
	KeyID string `json:"key_id" validate:"required,uuid_rfc4122"`
	// Label the encryption key label
	Label string `json:"label" validate:"required"`
}

// SystemEventPartitionRelated system event metadata related to a store partition
type SystemEventPartitionRelated struct {
	// Partition the partition name
	Partition string `json:"partition" validate:"required"`
	// Removed number of entries removed
	Removed int64 `json:"removed" validate:"gte=0"`
}
