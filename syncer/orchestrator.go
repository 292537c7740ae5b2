package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/visit"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// ErrSyncInProgress a sync run is already active; the trigger was dropped
var ErrSyncInProgress = errors.New("sync already in progress")

// Phase orchestrator state
type Phase string

const (
	// PhaseIdle no sync run active
	PhaseIdle Phase = "idle"
	// PhaseUploading upload phase active
	PhaseUploading Phase = "uploading"
	// PhaseDownloading download phase active
	PhaseDownloading Phase = "downloading"
)

// Status orchestrator status snapshot
type Status struct {
	// IsOnline whether the server is believed reachable
	IsOnline bool `json:"isOnline"`
	// IsSyncing whether a sync run is active
	IsSyncing bool `json:"isSyncing"`
	// Synced whether the last finished sync run succeeded
	Synced bool `json:"synced"`
	// Phase the active phase
	Phase Phase `json:"phase"`
	// LastRun summary of the last finished sync run
	LastRun *models.SyncRunReport `json:"lastRun,omitempty"`
}

// Prober checks whether the server is reachable
type Prober interface {
	Ping(ctx context.Context) error
}

// RunRecorder records the outcome of sync runs
type RunRecorder interface {
	RecordSyncRun(ctx context.Context, report models.SyncRunReport) error
}

// dbRunRecorder records sync runs as audit events
type dbRunRecorder struct {
	persistence db.Client
}

/*
NewDBRunRecorder define a RunRecorder writing audit events into the database

	@param persistence db.Client - persistence layer client
	@returns recorder
*/
func NewDBRunRecorder(persistence db.Client) RunRecorder {
	return &dbRunRecorder{persistence: persistence}
}

func (r *dbRunRecorder) RecordSyncRun(ctx context.Context, report models.SyncRunReport) error {
	return r.persistence.UseDatabaseInTransaction(
		ctx, func(dbCtx context.Context, dbClient db.Database) error {
			_, err := dbClient.RecordSyncRun(dbCtx, report)
			return err
		},
	)
}

// OrchestratorParams orchestrator timing parameters
type OrchestratorParams struct {
	// SettleDelay wait after coming online before the automatic sync run
	SettleDelay time.Duration `validate:"gte=0"`
	// ProbeInterval connectivity probe period; zero disables probing
	ProbeInterval time.Duration `validate:"gte=0"`
	// ProbeTimeout per probe timeout
	ProbeTimeout time.Duration `validate:"gt=0"`
	// RefreshInterval periodic sync period while online; zero disables it
	RefreshInterval time.Duration `validate:"gte=0"`
}

// Orchestrator coordinates sync runs
type Orchestrator interface {
	/*
		Start begin connectivity monitoring and automatic sync runs

			@param ctx context.Context - execution context
	*/
	Start(ctx context.Context) error

	/*
		Stop end connectivity monitoring and wait for background work to finish

			@param ctx context.Context - execution context
	*/
	Stop(ctx context.Context) error

	// Status current status snapshot
	Status() Status

	/*
		SetOnline report the connectivity state. An offline to online transition while
		started schedules a sync run after the settle delay.

			@param online bool - whether the server is reachable
	*/
	SetOnline(online bool)

	/*
		TriggerSync run upload then download once. Returns ErrSyncInProgress, without
		side effects, if a run is already active.

			@param ctx context.Context - execution context
			@returns the run summary
	*/
	TriggerSync(ctx context.Context) (models.SyncRunReport, error)

	/*
		TriggerFullSync forget the checkpoint and run, forcing a full fetch

			@param ctx context.Context - execution context
			@returns the run summary
	*/
	TriggerFullSync(ctx context.Context) (models.SyncRunReport, error)

	/*
		WithUploadLock run work which sends records to the server outside of a sync run. The
		work never overlaps the upload phase: an upload started meanwhile waits for it, and
		while an upload is active the work is not run and ErrSyncInProgress is returned.

			@param work func() error - the work to run
	*/
	WithUploadLock(work func() error) error

	/*
		Subscribe receive status updates. Slow readers only see the latest status.

			@returns the update channel, and a function to end the subscription
	*/
	Subscribe() (<-chan Status, func())
}

// orchestratorImpl implements Orchestrator
type orchestratorImpl struct {
	goutils.Component

	params     OrchestratorParams
	uploader   Uploader
	downloader Downloader
	repo       visit.Repository
	prober     Prober
	recorder   RunRecorder

	running    atomic.Bool
	online     atomic.Bool
	uploadLock sync.Mutex

	statusLock sync.RWMutex
	phase      Phase
	synced     bool
	lastRun    *models.SyncRunReport

	subscriberLock sync.Mutex
	subscribers    map[int]chan Status
	nextSubscriber int

	lifecycleLock sync.Mutex
	runCtx        context.Context
	cancelRun     context.CancelFunc
	wg            sync.WaitGroup
}

/*
NewOrchestrator define new sync orchestrator

	@param params OrchestratorParams - timing parameters
	@param uploader Uploader - upload phase
	@param downloader Downloader - download phase
	@param repo visit.Repository - visit records
	@param prober Prober - connectivity probe
	@param recorder RunRecorder - optional sync run recorder
	@returns orchestrator
*/
func NewOrchestrator(
	params OrchestratorParams,
	uploader Uploader,
	downloader Downloader,
	repo visit.Repository,
	prober Prober,
	recorder RunRecorder,
) (Orchestrator, error) {
	if err := validator.New().Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid orchestrator parameters [%w]", err)
	}

	logTags := log.Fields{"module": "syncer", "component": "orchestrator"}
	return &orchestratorImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		params:      params,
		uploader:    uploader,
		downloader:  downloader,
		repo:        repo,
		prober:      prober,
		recorder:    recorder,
		phase:       PhaseIdle,
		subscribers: map[int]chan Status{},
	}, nil
}

func (o *orchestratorImpl) Status() Status {
	o.statusLock.RLock()
	defer o.statusLock.RUnlock()
	status := Status{
		IsOnline:  o.online.Load(),
		IsSyncing: o.running.Load(),
		Synced:    o.synced,
		Phase:     o.phase,
	}
	if o.lastRun != nil {
		lastRun := *o.lastRun
		status.LastRun = &lastRun
	}
	return status
}

// ======================================================================================
// Status notification

func (o *orchestratorImpl) Subscribe() (<-chan Status, func()) {
	o.subscriberLock.Lock()
	defer o.subscriberLock.Unlock()

	id := o.nextSubscriber
	o.nextSubscriber++
	updates := make(chan Status, 1)
	o.subscribers[id] = updates

	var once sync.Once
	return updates, func() {
		once.Do(func() {
			o.subscriberLock.Lock()
			defer o.subscriberLock.Unlock()
			delete(o.subscribers, id)
			close(updates)
		})
	}
}

// notify push the current status to every subscriber, replacing any unread update
func (o *orchestratorImpl) notify() {
	status := o.Status()

	o.subscriberLock.Lock()
	defer o.subscriberLock.Unlock()
	for _, updates := range o.subscribers {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- status:
		default:
		}
	}
}

func (o *orchestratorImpl) setPhase(phase Phase) {
	o.statusLock.Lock()
	o.phase = phase
	o.statusLock.Unlock()
	o.notify()
}

// ======================================================================================
// Sync runs

// runUpload run the upload phase, converting a panic into a failure
func (o *orchestratorImpl) runUpload(ctx context.Context) (result UploadResult) {
	defer func() {
		if r := recover(); r != nil {
			result = UploadResult{Err: fmt.Errorf("upload phase panicked: %v", r)}
		}
	}()
	o.uploadLock.Lock()
	defer o.uploadLock.Unlock()
	return o.uploader.Upload(ctx)
}

func (o *orchestratorImpl) WithUploadLock(work func() error) error {
	if !o.uploadLock.TryLock() {
		return ErrSyncInProgress
	}
	defer o.uploadLock.Unlock()
	return work()
}

// runDownload run the download phase, converting a panic into a failure
func (o *orchestratorImpl) runDownload(ctx context.Context) (result DownloadResult) {
	defer func() {
		if r := recover(); r != nil {
			result = DownloadResult{
				Strategy: models.SyncStrategyNone, Err: fmt.Errorf("download phase panicked: %v", r),
			}
		}
	}()
	return o.downloader.Download(ctx)
}

// runOnce execute one sync run; the caller must hold the running flag
func (o *orchestratorImpl) runOnce(ctx context.Context, full bool) (report models.SyncRunReport, err error) {
	report = models.SyncRunReport{
		Strategy: models.SyncStrategyNone, StartedAt: time.Now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run panicked: %v", r)
		}
		report.FinishedAt = time.Now().UTC()
		if err != nil {
			report.Error = err.Error()
		}
		o.finishRun(ctx, report)
	}()

	if full {
		if err = o.repo.ClearCheckpoint(ctx); err != nil {
			return report, fmt.Errorf("failed to reset sync checkpoint [%w]", err)
		}
	}

	o.setPhase(PhaseUploading)
	uploaded := o.runUpload(ctx)
	report.Uploaded = uploaded.Uploaded
	if uploaded.Err != nil {
		return report, fmt.Errorf("upload phase failed [%w]", uploaded.Err)
	}

	o.setPhase(PhaseDownloading)
	downloaded := o.runDownload(ctx)
	report.Strategy = downloaded.Strategy
	report.Inserted = downloaded.Inserted
	report.Updated = downloaded.Updated
	report.Skipped = downloaded.Skipped
	report.Deleted = downloaded.Deleted
	if downloaded.Err != nil {
		return report, fmt.Errorf("download phase failed [%w]", downloaded.Err)
	}

	return report, nil
}

// finishRun publish the outcome of a sync run
func (o *orchestratorImpl) finishRun(ctx context.Context, report models.SyncRunReport) {
	o.statusLock.Lock()
	o.phase = PhaseIdle
	o.synced = report.Error == ""
	o.lastRun = &report
	o.statusLock.Unlock()

	logger := log.WithFields(o.LogTags).
		WithField("strategy", report.Strategy).
		WithField("uploaded", report.Uploaded).
		WithField("duration", report.FinishedAt.Sub(report.StartedAt).String())
	if report.Error != "" {
		logger.WithField("error", report.Error).Warn("Sync run failed")
	} else {
		logger.Info("Sync run complete")
	}

	if o.recorder != nil {
		// Record even if the run was cancelled
		if err := o.recorder.RecordSyncRun(context.WithoutCancel(ctx), report); err != nil {
			log.WithError(err).WithFields(o.LogTags).Error("Failed to record sync run")
		}
	}
}

// trigger run once unless a run is already active
func (o *orchestratorImpl) trigger(ctx context.Context, full bool) (models.SyncRunReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		log.WithFields(o.LogTags).Debug("Sync already running, trigger dropped")
		return models.SyncRunReport{}, ErrSyncInProgress
	}
	defer func() {
		o.running.Store(false)
		o.notify()
	}()
	o.notify()

	return o.runOnce(ctx, full)
}

func (o *orchestratorImpl) TriggerSync(ctx context.Context) (models.SyncRunReport, error) {
	return o.trigger(ctx, false)
}

func (o *orchestratorImpl) TriggerFullSync(ctx context.Context) (models.SyncRunReport, error) {
	return o.trigger(ctx, true)
}

// ======================================================================================
// Automatic triggers

func (o *orchestratorImpl) SetOnline(online bool) {
	previous := o.online.Swap(online)
	if previous == online {
		return
	}

	log.WithFields(o.LogTags).WithField("online", online).Info("Connectivity changed")
	o.notify()

	if online {
		o.scheduleSync()
	}
}

// scheduleSync run a sync after the settle delay, if still online by then
func (o *orchestratorImpl) scheduleSync() {
	o.lifecycleLock.Lock()
	defer o.lifecycleLock.Unlock()
	if o.runCtx == nil {
		return
	}
	runCtx := o.runCtx

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		timer := time.NewTimer(o.params.SettleDelay)
		defer timer.Stop()
		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
		}
		o.autoSync(runCtx, "reconnect")
	}()
}

// autoSync run an automatic sync if online
func (o *orchestratorImpl) autoSync(ctx context.Context, reason string) {
	if !o.online.Load() {
		return
	}
	if _, err := o.TriggerSync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		log.WithError(err).
			WithFields(o.LogTags).
			WithField("trigger", reason).
			Debug("Automatic sync run failed")
	}
}

// probe check connectivity once
func (o *orchestratorImpl) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, o.params.ProbeTimeout)
	defer cancel()
	err := o.prober.Ping(probeCtx)
	if ctx.Err() != nil {
		return
	}
	o.SetOnline(err == nil)
}

// monitor periodic loop
func (o *orchestratorImpl) monitor(ctx context.Context, period time.Duration, work func()) {
	defer o.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			work()
		}
	}
}

func (o *orchestratorImpl) Start(ctx context.Context) error {
	o.lifecycleLock.Lock()
	if o.runCtx != nil {
		o.lifecycleLock.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.runCtx = runCtx
	o.cancelRun = cancel
	o.lifecycleLock.Unlock()

	wasOnline := o.online.Load()
	if o.params.ProbeInterval > 0 && o.prober != nil {
		// First probe; coming online here is the startup sync trigger
		o.probe(runCtx)
		o.wg.Add(1)
		go o.monitor(runCtx, o.params.ProbeInterval, func() { o.probe(runCtx) })
	}
	// Online before start, so no transition schedules the startup sync
	if wasOnline && o.online.Load() {
		o.scheduleSync()
	}

	if o.params.RefreshInterval > 0 {
		o.wg.Add(1)
		go o.monitor(runCtx, o.params.RefreshInterval, func() { o.autoSync(runCtx, "refresh") })
	}

	log.WithFields(o.LogTags).Info("Sync orchestrator started")
	return nil
}

func (o *orchestratorImpl) Stop(ctx context.Context) error {
	o.lifecycleLock.Lock()
	cancel := o.cancelRun
	o.runCtx = nil
	o.cancelRun = nil
	o.lifecycleLock.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.WithFields(o.LogTags).Info("Sync orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for background sync work [%w]", ctx.Err())
	}
}
