package models

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
)

/*
RegisterWithValidator register with the validator this custom validation support

	@param v *validator.Validate - the validator to register against
	@return whether successful
*/
func RegisterWithValidator(v *validator.Validate) error {
	if err := v.RegisterValidation(
		"system_event_type", validateSystemEventType,
	); err != nil {
		return err
	}

	if err := v.RegisterValidation(
		"sync_flag", validateSyncFlag,
	); err != nil {
		return err
	}

	if err := v.RegisterValidation(
		"sync_strategy", validateSyncStrategy,
	); err != nil {
		return err
	}

	if err := v.RegisterValidation(
		"visit_timestamp", validateVisitTimestamp,
	); err != nil {
		return err
	}

	return nil
}

func validateSystemEventType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SystemEventTypeENUMType(fl.Field().String()) {
	case SystemEventTypeNewDeviceKey:
		fallthrough
	case SystemEventTypeClearPartition:
		fallthrough
	case SystemEventTypeSyncSucceeded:
		fallthrough
	case SystemEventTypeSyncFailed:
		return true
	}
	return false
}

func validateSyncFlag(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.Int {
		return false
	}
	switch SyncFlag(fl.Field().Int()) {
	case SyncFlagUnsynced:
		fallthrough
	case SyncFlagSynced:
		return true
	}
	return false
}

func validateSyncStrategy(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SyncStrategyENUMType(fl.Field().String()) {
	case SyncStrategyNone:
		fallthrough
	case SyncStrategyReplace:
		fallthrough
	case SyncStrategyInitialMerge:
		fallthrough
	case SyncStrategyIncremental:
		return true
	}
	return false
}

// validateVisitTimestamp empty, or an RFC 3339 timestamp
func validateVisitTimestamp(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}
