package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/remote"
	"github.com/alwitt/visitsync/visit"
	"github.com/apex/log"
)

// DownloadResult outcome of one download phase
type DownloadResult struct {
	// Strategy fetch strategy used
	Strategy models.SyncStrategyENUMType
	// Fetched number of records and deletions received from the server
	Fetched int
	// Inserted number of remote records new to the local collection
	Inserted int
	// Updated number of clean local records refreshed
	Updated int
	// Skipped number of remote changes ignored because the local copy is dirty
	Skipped int
	// Deleted number of local records removed
	Deleted int
	// Checkpoint the checkpoint in effect after the phase
	Checkpoint time.Time
	// Err the failure which ended the phase
	Err error
}

// Downloader pulls server changes into the local collection
type Downloader interface {
	/*
		Download fetch the full collection, or the changes since the last checkpoint, and
		merge them into the local collection. Local unsynced edits always win. The
		checkpoint only advances after the merge completes.

			@param ctx context.Context - execution context
			@returns the outcome
	*/
	Download(ctx context.Context) DownloadResult
}

// downloaderImpl implements Downloader
type downloaderImpl struct {
	goutils.Component
	repo   visit.Repository
	client remote.Client
	now    func() time.Time
}

/*
NewDownloader define new download phase

	@param repo visit.Repository - visit records
	@param client remote.Client - REST API client
	@returns downloader
*/
func NewDownloader(repo visit.Repository, client remote.Client) Downloader {
	logTags := log.Fields{"module": "syncer", "component": "downloader"}
	return &downloaderImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		repo:   repo,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// tally count one merge outcome
func (r *DownloadResult) tally(outcome visit.MergeOutcome) {
	switch outcome {
	case visit.MergeInserted:
		r.Inserted++
	case visit.MergeUpdated:
		r.Updated++
	case visit.MergeSkipped:
		r.Skipped++
	case visit.MergeDeleted:
		r.Deleted++
	}
}

// merge apply server changes one at a time
func (d *downloaderImpl) merge(
	ctx context.Context, modified []models.Visit, deleted []models.EntryKey, result *DownloadResult,
) error {
	for _, record := range modified {
		outcome, err := d.repo.ApplyRemote(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to merge remote visit %s [%w]", record.ID, err)
		}
		result.tally(outcome)
	}
	for _, id := range deleted {
		outcome, err := d.repo.ApplyRemoteDeletion(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to apply remote deletion of %s [%w]", id, err)
		}
		result.tally(outcome)
	}
	return nil
}

// initial full fetch
func (d *downloaderImpl) initial(ctx context.Context, result *DownloadResult) error {
	visits, err := d.client.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch visits [%w]", err)
	}
	result.Fetched = len(visits)

	// Replace only while nothing is queued locally
	result.Strategy = models.SyncStrategyReplace
	replaced, stored, err := d.repo.ReplaceAllIfClean(ctx, visits)
	if err != nil {
		return fmt.Errorf("failed to replace local visits [%w]", err)
	}
	if replaced {
		result.Inserted = stored
		return nil
	}

	log.WithFields(d.LogTags).
		Info("Local unsynced visits present, merging instead of replacing")
	result.Strategy = models.SyncStrategyInitialMerge
	return d.merge(ctx, visits, nil, result)
}

// incremental delta fetch
func (d *downloaderImpl) incremental(
	ctx context.Context, since time.Time, result *DownloadResult,
) error {
	result.Strategy = models.SyncStrategyIncremental
	delta, err := d.client.FetchUpdated(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch visit changes since %s [%w]", since.Format(time.RFC3339), err)
	}
	result.Fetched = len(delta.Modified) + len(delta.Deleted)
	return d.merge(ctx, delta.Modified, delta.Deleted, result)
}

func (d *downloaderImpl) Download(ctx context.Context) DownloadResult {
	result := DownloadResult{Strategy: models.SyncStrategyNone}

	checkpoint, found, err := d.repo.GetCheckpoint(ctx)
	if err != nil {
		result.Err = fmt.Errorf("failed to read sync checkpoint [%w]", err)
		return result
	}

	// Changes made on the server while this phase runs are picked up next time
	fetchedAt := d.now()

	if found {
		err = d.incremental(ctx, checkpoint, &result)
	} else {
		err = d.initial(ctx, &result)
	}
	if err != nil {
		result.Err = err
		return result
	}

	result.Checkpoint, err = d.repo.SetCheckpoint(ctx, fetchedAt)
	if err != nil {
		result.Err = fmt.Errorf("failed to advance sync checkpoint [%w]", err)
		return result
	}

	log.WithFields(d.LogTags).
		WithField("strategy", result.Strategy).
		WithField("fetched", result.Fetched).
		WithField("inserted", result.Inserted).
		WithField("updated", result.Updated).
		WithField("skipped", result.Skipped).
		WithField("deleted", result.Deleted).
		Info("Download phase complete")
	return result
}
