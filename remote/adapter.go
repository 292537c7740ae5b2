package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alwitt/visitsync/models"
)

// serverID record ID as issued by the server; either a JSON string or number
type serverID string

// UnmarshalJSON accept a string, number, or null ID
func (i *serverID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*i = ""
		return nil
	}
	if trimmed[0] == '"' {
		var asString string
		if err := json.Unmarshal(trimmed, &asString); err != nil {
			return err
		}
		*i = serverID(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(trimmed, &asNumber); err != nil {
		return fmt.Errorf("unsupported server ID %s [%w]", string(trimmed), err)
	}
	*i = serverID(asNumber.String())
	return nil
}

// key server IDs are always string keys, so they never collide with local placeholders
func (i serverID) key() models.EntryKey {
	if i == "" {
		return models.EntryKey{}
	}
	return models.StringKey(string(i))
}

// serverPatient patient block of a server visit
type serverPatient struct {
	Name string `json:"name,omitempty"`
}

// serverVisit visit as returned by the server
type serverVisit struct {
	ID          serverID       `json:"id"`
	ClientRef   string         `json:"clientRef,omitempty"`
	StartedAt   string         `json:"startedAt,omitempty"`
	EndedAt     string         `json:"endedAt,omitempty"`
	SubmittedAt string         `json:"submittedAt,omitempty"`
	Patient     *serverPatient `json:"patient,omitempty"`
	PatientName string         `json:"patientName,omitempty"`
	Address     string         `json:"address,omitempty"`
	OrgName     string         `json:"orgName,omitempty"`
	ServiceType string         `json:"serviceType,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}

// toLocal convert a server visit into the local record shape
func (v serverVisit) toLocal() models.Visit {
	patientName := v.PatientName
	if v.Patient != nil && v.Patient.Name != "" {
		patientName = v.Patient.Name
	}
	return models.Visit{
		ID: v.ID.key(),
		VisitDetails: models.VisitDetails{
			ClientRef:   v.ClientRef,
			StartedAt:   v.StartedAt,
			EndedAt:     v.EndedAt,
			SubmittedAt: v.SubmittedAt,
			PatientName: patientName,
			Address:     v.Address,
			OrgName:     v.OrgName,
			ServiceType: v.ServiceType,
			Notes:       v.Notes,
		},
		Synced: models.SyncFlagSynced,
	}
}

// createVisitRequest body of the create call
type createVisitRequest struct {
	Data models.VisitDetails `json:"data"`
}

// createdVisit the create call result
type createdVisit struct {
	ID serverID `json:"id"`
}

// updatedVisits the delta call result
type updatedVisits struct {
	ModifiedVisits []serverVisit `json:"modifiedVisits"`
	DeletedVisits  []serverID    `json:"deletedVisits"`
}

// envelope the standard server response wrapper
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

/*
unwrapEnvelope extract the payload of a server response. Bodies which are not wrapped in
the standard envelope are returned as is.

	@param body []byte - response body
	@returns the payload
*/
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, fmt.Errorf("response is not valid JSON [%w]", err)
	}
	if _, ok := parsed["data"]; !ok {
		return trimmed, nil
	}

	var wrapped envelope
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("response envelope is not parsable [%w]", err)
	}
	if wrapped.Success != nil && !*wrapped.Success {
		return nil, fmt.Errorf("server reported failure: %s", wrapped.Message)
	}
	return wrapped.Data, nil
}

// parseVisitList parse a list of server visits
func parseVisitList(payload json.RawMessage) ([]models.Visit, error) {
	var raw []serverVisit
	if len(payload) > 0 && !bytes.Equal(payload, []byte("null")) {
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("visit list is not parsable [%w]", err)
		}
	}
	result := make([]models.Visit, 0, len(raw))
	for _, entry := range raw {
		result = append(result, entry.toLocal())
	}
	return result, nil
}

// epochSeconds render a checkpoint for the delta endpoint path
func epochSeconds(unix int64) string {
	return strconv.FormatInt(unix, 10)
}
