package visitsync_test

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alwitt/visitsync"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/encryption"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/remote"
	"github.com/alwitt/visitsync/syncer"
	"github.com/apex/log"
	"github.com/jarcoal/httpmock"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

const testBaseURL = "http://visits.example.com/api"

func visitsByID(visits []models.Visit) map[string]models.Visit {
	result := map[string]models.Visit{}
	for _, entry := range visits {
		result[entry.ID.String()] = entry
	}
	return result
}

func TestEngineEndToEnd(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Device key pair
	keyDir := t.TempDir()
	certFile := filepath.Join(keyDir, "device.crt")
	keyFile := filepath.Join(keyDir, "device.key")
	assert.Nil(encryption.GenerateDeviceRSAKeyPair(certFile, keyFile, "unit-test", time.Hour))

	transport := httpmock.NewMockTransport()

	testDB := fmt.Sprintf("/tmp/visitsync_ut_%s.db", ulid.Make().String())
	uut, err := visitsync.NewEngine(utCtx, visitsync.EngineParams{
		DBDialector:       db.GetSqliteDialector(testDB),
		DBLogLevel:        logger.Error,
		PrepareSchema:     true,
		DeviceRSACertFile: certFile,
		DeviceRSAKeyFile:  keyFile,
		Remote: remote.ClientParams{
			BaseURL: testBaseURL, Timeout: time.Second * 5, PingPath: "/",
		},
		HTTPClient: &http.Client{Transport: transport},
		Sync: syncer.OrchestratorParams{
			SettleDelay: time.Millisecond, ProbeTimeout: time.Second,
		},
	})
	assert.Nil(err)
	t.Cleanup(func() { _ = uut.Close(utCtx) })

	newVisit := func(patient string) models.Visit {
		return models.Visit{VisitDetails: models.VisitDetails{
			StartedAt:   "2025-01-02T09:00:00Z",
			EndedAt:     "2025-01-02T10:00:00Z",
			PatientName: patient,
			Notes:       "routine check",
		}}
	}

	// ------------------------------------------------------------------
	// Offline capture

	assert.False(uut.Status().IsOnline)
	offline, err := uut.SubmitVisit(utCtx, newVisit("Alice"))
	assert.Nil(err)
	assert.True(offline.ID.IsNumeric())
	assert.Equal(models.SyncFlagUnsynced, offline.Synced)
	assert.Equal(models.DefaultOrgName, offline.OrgName)
	assert.NotEmpty(offline.ClientRef)
	assert.Equal(0, transport.GetTotalCallCount())

	// ------------------------------------------------------------------
	// First sync: upload, then full fetch replacing the local collection

	transport.RegisterResponder(
		http.MethodHead, testBaseURL+"/", httpmock.NewStringResponder(http.StatusOK, ""),
	)
	transport.RegisterResponder(
		http.MethodPost, testBaseURL+"/visit/create",
		httpmock.NewStringResponder(http.StatusOK, `{"success": true, "data": {"id": "srv-1"}}`),
	)
	transport.RegisterResponder(
		http.MethodGet, testBaseURL+"/visit",
		httpmock.NewStringResponder(http.StatusOK, `{"data": [
			{"id": "srv-1", "patient": {"name": "Alice"}, "orgName": "organization1"},
			{"id": "srv-2", "patient": {"name": "Bob"}, "orgName": "organization1"}
		]}`),
	)

	assert.True(uut.CheckConnectivity(utCtx))
	assert.True(uut.Status().IsOnline)

	report, err := uut.TriggerSync(utCtx)
	assert.Nil(err)
	assert.Equal(1, report.Uploaded)
	assert.Equal(models.SyncStrategyReplace, report.Strategy)
	assert.Equal(2, report.Inserted)

	listed, err := uut.ListVisits(utCtx)
	assert.Nil(err)
	assert.Equal(0, listed.Unreadable)
	assert.Len(listed.Visits, 2)
	byID := visitsByID(listed.Visits)
	assert.Contains(byID, "srv-1")
	assert.Contains(byID, "srv-2")
	assert.Equal("Bob", byID["srv-2"].PatientName)
	for _, entry := range listed.Visits {
		assert.Equal(models.SyncFlagSynced, entry.Synced)
	}

	// ------------------------------------------------------------------
	// Online capture is submitted right away

	transport.RegisterResponder(
		http.MethodPost, testBaseURL+"/visit/create",
		httpmock.NewStringResponder(http.StatusOK, `{"success": true, "data": {"id": "srv-3"}}`),
	)
	online, err := uut.SubmitVisit(utCtx, newVisit("Carol"))
	assert.Nil(err)
	assert.Equal(models.StringKey("srv-3"), online.ID)
	assert.Equal(models.SyncFlagSynced, online.Synced)

	// ------------------------------------------------------------------
	// Second sync: delta fetch

	transport.RegisterResponder(
		http.MethodGet, `=~^`+testBaseURL+`/visit/updated/\d+\z`,
		httpmock.NewStringResponder(http.StatusOK, `{"data": {
			"modifiedVisits": [{"id": "srv-2", "patient": {"name": "Robert"}}],
			"deletedVisits": ["srv-1"]
		}}`),
	)

	report, err = uut.TriggerSync(utCtx)
	assert.Nil(err)
	assert.Equal(0, report.Uploaded)
	assert.Equal(models.SyncStrategyIncremental, report.Strategy)
	assert.Equal(1, report.Updated)
	assert.Equal(1, report.Deleted)

	listed, err = uut.ListVisits(utCtx)
	assert.Nil(err)
	assert.Len(listed.Visits, 2)
	byID = visitsByID(listed.Visits)
	assert.NotContains(byID, "srv-1")
	assert.Equal("Robert", byID["srv-2"].PatientName)
	assert.Equal("Carol", byID["srv-3"].PatientName)

	// ------------------------------------------------------------------
	// A failed immediate submission leaves the visit queued

	transport.RegisterResponder(
		http.MethodPost, testBaseURL+"/visit/create",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "unavailable"),
	)
	queued, err := uut.SubmitVisit(utCtx, newVisit("Dave"))
	assert.Nil(err)
	assert.True(queued.ID.IsNumeric())
	assert.Equal(models.SyncFlagUnsynced, queued.Synced)

	// The upload failure ends the run before the download
	report, err = uut.TriggerSync(utCtx)
	assert.NotNil(err)
	assert.Equal(0, report.Uploaded)
	assert.False(uut.Status().Synced)

	// ------------------------------------------------------------------
	// Run history

	history, err := uut.SyncHistory(utCtx, 0)
	assert.Nil(err)
	assert.Len(history, 3)
	assert.NotEmpty(history[0].Error)
	assert.Equal(models.SyncStrategyIncremental, history[1].Strategy)
	assert.Equal(models.SyncStrategyReplace, history[2].Strategy)

	history, err = uut.SyncHistory(utCtx, 1)
	assert.Nil(err)
	assert.Len(history, 1)
}

func TestEngineParams(t *testing.T) {
	assert := assert.New(t)

	_, err := visitsync.NewEngine(context.Background(), visitsync.EngineParams{})
	assert.Error(err)

	testDB := fmt.Sprintf("/tmp/visitsync_ut_%s.db", ulid.Make().String())
	_, err = visitsync.NewEngine(context.Background(), visitsync.EngineParams{
		DBDialector:       db.GetSqliteDialector(testDB),
		DBLogLevel:        logger.Error,
		PrepareSchema:     true,
		DeviceRSACertFile: "/does/not/exist.crt",
		DeviceRSAKeyFile:  "/does/not/exist.key",
		Remote: remote.ClientParams{
			BaseURL: testBaseURL, Timeout: time.Second, PingPath: "/",
		},
		Sync: syncer.OrchestratorParams{ProbeTimeout: time.Second},
	})
	assert.Error(err)
}
