package syncer_test

import (
	"context"
	"errors"
	"testing"

	mockremote "github.com/alwitt/visitsync/mocks/remote"
	mockvisit "github.com/alwitt/visitsync/mocks/visit"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/remote"
	"github.com/alwitt/visitsync/syncer"
	"github.com/alwitt/visitsync/visit"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testVisit(id models.EntryKey, patient string, synced models.SyncFlag) models.Visit {
	return models.Visit{
		ID: id,
		VisitDetails: models.VisitDetails{
			StartedAt:   "2025-01-02T09:00:00Z",
			EndedAt:     "2025-01-02T10:00:00Z",
			PatientName: patient,
			OrgName:     models.DefaultOrgName,
		},
		Synced: synced,
	}
}

func TestUploadNothingPending(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	mockRepo := mockvisit.NewRepository(t)
	mockClient := mockremote.NewClient(t)
	uut := syncer.NewUploader(mockRepo, mockClient)

	utCtx := context.Background()

	mockRepo.On("GetUnsynced", mock.Anything).
		Return(visit.ListResult{Visits: []models.Visit{}, Unreadable: 2}, nil).Once()

	result := uut.Upload(utCtx)
	assert.Nil(result.Err)
	assert.Equal(0, result.Attempted)
	assert.Equal(0, result.Uploaded)
	assert.Equal(2, result.Unreadable)
	mockClient.AssertNotCalled(t, "CreateVisit", mock.Anything, mock.Anything)
}

func TestUploadSwapsLocalIDs(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	mockRepo := mockvisit.NewRepository(t)
	mockClient := mockremote.NewClient(t)
	uut := syncer.NewUploader(mockRepo, mockClient)

	utCtx := context.Background()

	local := testVisit(models.NumericKey(1), "Alice", models.SyncFlagUnsynced)
	edited := testVisit(models.StringKey("srv-7"), "Bob", models.SyncFlagUnsynced)

	mockRepo.On("GetUnsynced", mock.Anything).
		Return(visit.ListResult{Visits: []models.Visit{local, edited}}, nil).Once()
	mockClient.On("CreateVisit", mock.Anything, local.VisitDetails).
		Return(models.StringKey("srv-1"), nil).Once()
	mockClient.On("CreateVisit", mock.Anything, edited.VisitDetails).
		Return(models.StringKey("srv-8"), nil).Once()
	mockRepo.On("SwapToServerID", mock.Anything, models.NumericKey(1), models.StringKey("srv-1")).
		Return(true, nil).Once()
	mockRepo.On("MarkSynced", mock.Anything, models.StringKey("srv-7")).Return(nil).Once()

	result := uut.Upload(utCtx)
	assert.Nil(result.Err)
	assert.Equal(2, result.Attempted)
	assert.Equal(2, result.Uploaded)
}

func TestUploadStopsAtFirstFailure(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	mockRepo := mockvisit.NewRepository(t)
	mockClient := mockremote.NewClient(t)
	uut := syncer.NewUploader(mockRepo, mockClient)

	utCtx := context.Background()

	first := testVisit(models.NumericKey(1), "Alice", models.SyncFlagUnsynced)
	second := testVisit(models.NumericKey(2), "Bob", models.SyncFlagUnsynced)
	third := testVisit(models.NumericKey(3), "Carol", models.SyncFlagUnsynced)

	mockRepo.On("GetUnsynced", mock.Anything).
		Return(visit.ListResult{Visits: []models.Visit{first, second, third}}, nil).Once()
	mockClient.On("CreateVisit", mock.Anything, first.VisitDetails).
		Return(models.StringKey("srv-1"), nil).Once()
	mockRepo.On("SwapToServerID", mock.Anything, models.NumericKey(1), models.StringKey("srv-1")).
		Return(true, nil).Once()
	mockClient.On("CreateVisit", mock.Anything, second.VisitDetails).
		Return(models.EntryKey{}, remote.ErrRequestFailed).Once()

	result := uut.Upload(utCtx)
	assert.NotNil(result.Err)
	assert.True(errors.Is(result.Err, remote.ErrRequestFailed))
	assert.Equal(2, result.Attempted)
	assert.Equal(1, result.Uploaded)
	mockClient.AssertNotCalled(t, "CreateVisit", mock.Anything, third.VisitDetails)
}

func TestUploadLocalUpdateFailure(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	mockRepo := mockvisit.NewRepository(t)
	mockClient := mockremote.NewClient(t)
	uut := syncer.NewUploader(mockRepo, mockClient)

	utCtx := context.Background()

	first := testVisit(models.NumericKey(1), "Alice", models.SyncFlagUnsynced)

	mockRepo.On("GetUnsynced", mock.Anything).
		Return(visit.ListResult{Visits: []models.Visit{first}}, nil).Once()
	mockClient.On("CreateVisit", mock.Anything, first.VisitDetails).
		Return(models.StringKey("srv-1"), nil).Once()
	mockRepo.On("SwapToServerID", mock.Anything, models.NumericKey(1), models.StringKey("srv-1")).
		Return(false, errors.New("disk full")).Once()

	result := uut.Upload(utCtx)
	assert.NotNil(result.Err)
	assert.Equal(1, result.Attempted)
	assert.Equal(0, result.Uploaded)
}

func TestUploadCancelled(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	mockRepo := mockvisit.NewRepository(t)
	mockClient := mockremote.NewClient(t)
	uut := syncer.NewUploader(mockRepo, mockClient)

	utCtx, cancel := context.WithCancel(context.Background())
	cancel()

	mockRepo.On("GetUnsynced", mock.Anything).
		Return(visit.ListResult{
			Visits: []models.Visit{testVisit(models.NumericKey(1), "Alice", models.SyncFlagUnsynced)},
		}, nil).Once()

	result := uut.Upload(utCtx)
	assert.True(errors.Is(result.Err, context.Canceled))
	assert.Equal(0, result.Attempted)
}

func TestUploadListFailure(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	mockRepo := mockvisit.NewRepository(t)
	mockClient := mockremote.NewClient(t)
	uut := syncer.NewUploader(mockRepo, mockClient)

	mockRepo.On("GetUnsynced", mock.Anything).
		Return(visit.ListResult{}, errors.New("db locked")).Once()

	result := uut.Upload(context.Background())
	assert.NotNil(result.Err)
	assert.Equal(0, result.Attempted)
}
