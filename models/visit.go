package models

// SyncFlag per-record marker distinguishing server confirmed data from local edits
type SyncFlag int

const (
	// SyncFlagUnsynced created or edited locally, not yet confirmed by the server
	SyncFlagUnsynced SyncFlag = 0
	// SyncFlagSynced the server has this exact version
	SyncFlagSynced SyncFlag = 1
)

// DefaultOrgName organization name stamped on new visits when none is provided
const DefaultOrgName = "organization1"

// VisitDetails the descriptive content of one home visit.
//
// This is the part of a visit record which is submitted to the remote server.
type VisitDetails struct {
	// ClientRef client generated reference, used as the idempotency key when submitting
	ClientRef string `json:"clientRef,omitempty" yaml:"clientRef,omitempty" validate:"omitempty,uuid"`

	// StartedAt visit start (ISO-8601)
	StartedAt string `json:"startedAt,omitempty" yaml:"startedAt,omitempty" validate:"required_with=EndedAt,visit_timestamp"`
	// EndedAt visit end (ISO-8601)
	EndedAt string `json:"endedAt,omitempty" yaml:"endedAt,omitempty" validate:"required_with=StartedAt,visit_timestamp"`
	// SubmittedAt when the visit form was submitted (ISO-8601)
	SubmittedAt string `json:"submittedAt,omitempty" yaml:"submittedAt,omitempty" validate:"visit_timestamp"`

	// PatientName name of the patient visited
	PatientName string `json:"patientName,omitempty" yaml:"patientName,omitempty"`
	// Address visit address
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// OrgName organization the caregiver works for
	OrgName string `json:"orgName,omitempty" yaml:"orgName,omitempty"`
	// ServiceType type of service provided
	ServiceType string `json:"serviceType,omitempty" yaml:"serviceType,omitempty"`
	// Notes free text notes
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty" validate:"max=500"`
}

// Visit one logged home-visit shift
type Visit struct {
	// ID local placeholder (numeric) or server issued (string) identifier
	ID EntryKey `json:"id" yaml:"id"`

	VisitDetails `yaml:",inline"`

	// Synced sync state of the record
	Synced SyncFlag `json:"synced" yaml:"synced" validate:"sync_flag"`
}

// IsDirty whether the record holds local changes not yet confirmed by the server
func (v Visit) IsDirty() bool {
	return v.Synced != SyncFlagSynced
}
