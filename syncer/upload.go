// Package syncer - offline record synchronization with the remote server
package syncer

import (
	"context"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/remote"
	"github.com/alwitt/visitsync/visit"
	"github.com/apex/log"
)

// UploadResult outcome of one upload phase
type UploadResult struct {
	// Attempted number of records submitted to the server
	Attempted int
	// Uploaded number of records the server accepted
	Uploaded int
	// Unreadable number of unsynced records which could not be read
	Unreadable int
	// Err the failure which ended the phase
	Err error
}

// Uploader pushes locally created records to the server
type Uploader interface {
	/*
		Upload submit every unsynced record, in order, stopping at the first failure.
		Records uploaded before a failure stay synced.

			@param ctx context.Context - execution context
			@returns the outcome
	*/
	Upload(ctx context.Context) UploadResult
}

// uploaderImpl implements Uploader
type uploaderImpl struct {
	goutils.Component
	repo   visit.Repository
	client remote.Client
}

/*
NewUploader define new upload phase

	@param repo visit.Repository - visit records
	@param client remote.Client - REST API client
	@returns uploader
*/
func NewUploader(repo visit.Repository, client remote.Client) Uploader {
	logTags := log.Fields{"module": "syncer", "component": "uploader"}
	return &uploaderImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		repo:   repo,
		client: client,
	}
}

func (u *uploaderImpl) Upload(ctx context.Context) UploadResult {
	result := UploadResult{}

	pending, err := u.repo.GetUnsynced(ctx)
	if err != nil {
		result.Err = fmt.Errorf("failed to list unsynced visits [%w]", err)
		return result
	}
	result.Unreadable = pending.Unreadable

	if len(pending.Visits) == 0 {
		log.WithFields(u.LogTags).Debug("Nothing to upload")
		return result
	}

	for _, record := range pending.Visits {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}

		result.Attempted++
		serverID, err := u.client.CreateVisit(ctx, record.VisitDetails)
		if err != nil {
			log.WithError(err).
				WithFields(u.LogTags).
				WithField("visit", record.ID.String()).
				Warn("Upload failed, stopping")
			result.Err = fmt.Errorf("failed to upload visit %s [%w]", record.ID, err)
			break
		}

		if record.ID.IsNumeric() {
			_, err = u.repo.SwapToServerID(ctx, record.ID, serverID)
		} else {
			err = u.repo.MarkSynced(ctx, record.ID)
		}
		if err != nil {
			result.Err = fmt.Errorf(
				"failed to record upload of visit %s as %s [%w]", record.ID, serverID, err,
			)
			break
		}

		result.Uploaded++
		log.WithFields(u.LogTags).
			WithField("visit", record.ID.String()).
			WithField("server-id", serverID.String()).
			Debug("Uploaded visit")
	}

	log.WithFields(u.LogTags).
		WithField("attempted", result.Attempted).
		WithField("uploaded", result.Uploaded).
		Info("Upload phase complete")
	return result
}
