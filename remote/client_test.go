package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/remote"
	"github.com/apex/log"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

const testBaseURL = "http://visits.example.com/api"

// prepareTestClient define a client whose requests are served by a mock transport
func prepareTestClient(t *testing.T) (remote.Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	uut, err := remote.NewClient(remote.ClientParams{
		BaseURL:  testBaseURL,
		Token:    "secret-token",
		Timeout:  time.Second * 5,
		PingPath: "/",
	}, &http.Client{Transport: transport})
	assert.Nil(t, err)
	return uut, transport
}

func TestClientParams(t *testing.T) {
	assert := assert.New(t)

	_, err := remote.NewClient(remote.ClientParams{}, nil)
	assert.Error(err)
	_, err = remote.NewClient(remote.ClientParams{
		BaseURL: "not a url", Timeout: time.Second, PingPath: "/",
	}, nil)
	assert.Error(err)
	_, err = remote.NewClient(remote.ClientParams{
		BaseURL: testBaseURL, Timeout: time.Second, PingPath: "/",
	}, nil)
	assert.Nil(err)
}

func TestClientCreateVisit(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, transport := prepareTestClient(t)

	details := models.VisitDetails{
		ClientRef:   "7b0c1a34-5f44-4f7c-9a3c-4b5e8f1f7e11",
		StartedAt:   "2025-01-01T09:00:00Z",
		EndedAt:     "2025-01-01T10:00:00Z",
		PatientName: "Jane",
		Notes:       "ok",
	}

	// Case 0: enveloped response
	transport.RegisterResponder(
		http.MethodPost,
		testBaseURL+"/visit/create",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal("Bearer secret-token", req.Header.Get("Authorization"))
			assert.Equal(details.ClientRef, req.Header.Get("Idempotency-Key"))
			body, err := io.ReadAll(req.Body)
			assert.Nil(err)
			var parsed map[string]map[string]interface{}
			assert.Nil(json.Unmarshal(body, &parsed))
			assert.Equal("Jane", parsed["data"]["patientName"])
			_, hasID := parsed["data"]["id"]
			assert.False(hasID)
			_, hasSynced := parsed["data"]["synced"]
			assert.False(hasSynced)
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"success": true, "data": map[string]interface{}{"id": "srv-1"},
			})
		},
	)
	id, err := uut.CreateVisit(utCtx, details)
	assert.Nil(err)
	assert.Equal(models.StringKey("srv-1"), id)

	// Case 1: bare response with a numeric ID
	transport.RegisterResponder(
		http.MethodPost,
		testBaseURL+"/visit/create",
		httpmock.NewStringResponder(http.StatusCreated, `{"id": 42}`),
	)
	id, err = uut.CreateVisit(utCtx, details)
	assert.Nil(err)
	assert.Equal(models.StringKey("42"), id)
	assert.False(id.IsNumeric())

	// Case 2: server error
	transport.RegisterResponder(
		http.MethodPost,
		testBaseURL+"/visit/create",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"success": false}`),
	)
	_, err = uut.CreateVisit(utCtx, details)
	assert.True(errors.Is(err, remote.ErrRequestFailed))

	// Case 3: envelope reports failure
	transport.RegisterResponder(
		http.MethodPost,
		testBaseURL+"/visit/create",
		httpmock.NewStringResponder(
			http.StatusOK, `{"success": false, "data": null, "message": "bad"}`,
		),
	)
	_, err = uut.CreateVisit(utCtx, details)
	assert.True(errors.Is(err, remote.ErrRequestFailed))

	// Case 4: network failure
	transport.RegisterResponder(
		http.MethodPost,
		testBaseURL+"/visit/create",
		httpmock.NewErrorResponder(errors.New("connection refused")),
	)
	_, err = uut.CreateVisit(utCtx, details)
	assert.True(errors.Is(err, remote.ErrRequestFailed))
}

func TestClientFetchAll(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, transport := prepareTestClient(t)

	// Case 0: enveloped, nested patient
	transport.RegisterResponder(
		http.MethodGet,
		testBaseURL+"/visit",
		httpmock.NewStringResponder(http.StatusOK, `{"success": true, "data": [
			{"id": "a", "startedAt": "2025-01-01T09:00:00Z", "patient": {"name": "Ann"}},
			{"id": 7, "patientName": "Bob"},
			{"notes": "no id"}
		]}`),
	)
	visits, err := uut.FetchAll(utCtx)
	assert.Nil(err)
	assert.Len(visits, 3)
	assert.Equal(models.StringKey("a"), visits[0].ID)
	assert.Equal("Ann", visits[0].PatientName)
	assert.Equal(models.SyncFlagSynced, visits[0].Synced)
	assert.Equal(models.StringKey("7"), visits[1].ID)
	assert.Equal("Bob", visits[1].PatientName)
	assert.True(visits[2].ID.IsZero())

	// Case 1: bare list
	transport.RegisterResponder(
		http.MethodGet,
		testBaseURL+"/visit",
		httpmock.NewStringResponder(http.StatusOK, `[{"id": "z"}]`),
	)
	visits, err = uut.FetchAll(utCtx)
	assert.Nil(err)
	assert.Len(visits, 1)

	// Case 2: empty data
	transport.RegisterResponder(
		http.MethodGet,
		testBaseURL+"/visit",
		httpmock.NewStringResponder(http.StatusOK, `{"data": null}`),
	)
	visits, err = uut.FetchAll(utCtx)
	assert.Nil(err)
	assert.Empty(visits)

	// Case 3: unauthorized
	transport.RegisterResponder(
		http.MethodGet,
		testBaseURL+"/visit",
		httpmock.NewStringResponder(http.StatusUnauthorized, ``),
	)
	_, err = uut.FetchAll(utCtx)
	assert.True(errors.Is(err, remote.ErrRequestFailed))
}

func TestClientFetchUpdated(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, transport := prepareTestClient(t)

	since := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	transport.RegisterResponder(
		http.MethodGet,
		testBaseURL+"/visit/updated/1735776000",
		httpmock.NewStringResponder(http.StatusOK, `{"data": {
			"modifiedVisits": [{"id": "m1", "patient": {"name": "Mo"}}],
			"deletedVisits": ["d1", 5, null]
		}}`),
	)
	delta, err := uut.FetchUpdated(utCtx, since)
	assert.Nil(err)
	assert.Len(delta.Modified, 1)
	assert.Equal("Mo", delta.Modified[0].PatientName)
	assert.Equal([]models.EntryKey{models.StringKey("d1"), models.StringKey("5")}, delta.Deleted)
	assert.Equal(1, transport.GetCallCountInfo()["GET "+testBaseURL+"/visit/updated/1735776000"])
}

func TestClientPing(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, transport := prepareTestClient(t)

	// Any response counts as reachable
	transport.RegisterResponder(
		http.MethodHead, testBaseURL+"/", httpmock.NewStringResponder(http.StatusNotFound, ""),
	)
	assert.Nil(uut.Ping(utCtx))

	transport.RegisterResponder(
		http.MethodHead, testBaseURL+"/", httpmock.NewErrorResponder(errors.New("no route")),
	)
	assert.True(errors.Is(uut.Ping(utCtx), remote.ErrRequestFailed))
}
