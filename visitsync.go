// Package visitsync - offline-first home visit logging with encrypted local storage and
// server synchronization
package visitsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/config"
	"github.com/alwitt/visitsync/db"
	"github.com/alwitt/visitsync/encryption"
	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/remote"
	"github.com/alwitt/visitsync/store"
	"github.com/alwitt/visitsync/syncer"
	"github.com/alwitt/visitsync/visit"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EngineParams engine parameters
type EngineParams struct {
	// DBDialector GORM dialector of the local database
	DBDialector gorm.Dialector `validate:"required"`
	// DBLogLevel SQL log level
	DBLogLevel logger.LogLevel
	// PrepareSchema create or update the tables when opening the database
	PrepareSchema bool
	// DeviceRSACertFile file path to the device RSA certificate PEM
	DeviceRSACertFile string `validate:"required"`
	// DeviceRSAKeyFile file path to the device RSA certificate private key PEM
	DeviceRSAKeyFile string `validate:"required"`
	// Remote REST client parameters
	Remote remote.ClientParams
	// HTTPClient optional HTTP client for the REST client
	HTTPClient *http.Client `validate:"-"`
	// Sync orchestrator parameters
	Sync syncer.OrchestratorParams
	// OrgName organization stamped on new visits without one
	OrgName string
}

// Engine the offline visit logging engine
type Engine interface {
	/*
		Start begin connectivity monitoring and automatic sync runs

			@param ctx context.Context - execution context
	*/
	Start(ctx context.Context) error

	/*
		Stop end connectivity monitoring and automatic sync runs

			@param ctx context.Context - execution context
	*/
	Stop(ctx context.Context) error

	// Close stop the engine and release the database
	Close(ctx context.Context) error

	// Status current sync status
	Status() syncer.Status

	// Subscribe receive sync status updates
	Subscribe() (<-chan syncer.Status, func())

	/*
		SetOnline report the connectivity state, for hosts which track it themselves

			@param online bool - whether the server is reachable
	*/
	SetOnline(online bool)

	/*
		CheckConnectivity probe the server once and update the connectivity state

			@param ctx context.Context - execution context
			@returns whether the server is reachable
	*/
	CheckConnectivity(ctx context.Context) bool

	/*
		TriggerSync run upload then download once

			@param ctx context.Context - execution context
			@returns the run summary
	*/
	TriggerSync(ctx context.Context) (models.SyncRunReport, error)

	/*
		TriggerFullSync forget the checkpoint, then run upload and a full download

			@param ctx context.Context - execution context
			@returns the run summary
	*/
	TriggerFullSync(ctx context.Context) (models.SyncRunReport, error)

	/*
		SubmitVisit save a new visit offline. When online, it is also submitted right away;
		a failed submission leaves the visit for the next sync run.

			@param ctx context.Context - execution context
			@param record models.Visit - the new visit
			@returns the stored visit
	*/
	SubmitVisit(ctx context.Context, record models.Visit) (models.Visit, error)

	/*
		ListVisits list all stored visits

			@param ctx context.Context - execution context
			@returns the visits
	*/
	ListVisits(ctx context.Context) (visit.ListResult, error)

	/*
		SyncHistory list recorded sync runs, newest first

			@param ctx context.Context - execution context
			@param limit int - max number of runs to return; zero means no limit
			@returns the run summaries
	*/
	SyncHistory(ctx context.Context, limit int) ([]models.SyncRunReport, error)
}

// engineImpl implements Engine
type engineImpl struct {
	goutils.Component
	persistence  db.Client
	repo         visit.Repository
	client       remote.Client
	orchestrator syncer.Orchestrator
	validator    *validator.Validate
	orgName      string
}

/*
NewEngine initialize the visit logging engine

	@param ctx context.Context - execution context
	@param params EngineParams - engine parameters
	@returns new engine
*/
func NewEngine(ctx context.Context, params EngineParams) (Engine, error) {
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid engine parameters [%w]", err)
	}
	if err := models.RegisterWithValidator(validate); err != nil {
		return nil, fmt.Errorf("failed to register custom validators [%w]", err)
	}

	// Prepare persistence
	persistence, err := db.NewConnection(params.DBDialector, params.DBLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized persistence client [%w]", err)
	}
	if params.PrepareSchema {
		if err := persistence.RunSQLInTransaction(ctx, db.DefineTables); err != nil {
			_ = persistence.Close()
			return nil, fmt.Errorf("failed to prepare database tables [%w]", err)
		}
	}

	instance, err := buildEngine(ctx, persistence, params, validate)
	if err != nil {
		_ = persistence.Close()
		return nil, err
	}
	return instance, nil
}

// buildEngine wire the components on top of an open database
func buildEngine(
	ctx context.Context, persistence db.Client, params EngineParams, validate *validator.Validate,
) (*engineImpl, error) {
	// Prepare cryptography engine
	cryptoEngine, err := encryption.NewCryptographyEngine(ctx, encryption.CryptographyEngineParams{
		Persistence:       persistence,
		DeviceRSACertFile: params.DeviceRSACertFile,
		DeviceRSAKeyFile:  params.DeviceRSAKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialized cryptography engine [%w]", err)
	}

	encStore, err := store.NewEncryptedStore(ctx, persistence, cryptoEngine)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized encrypted store [%w]", err)
	}

	repo, err := visit.NewRepository(encStore)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized visit repository [%w]", err)
	}

	client, err := remote.NewClient(params.Remote, params.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized REST client [%w]", err)
	}

	orchestrator, err := syncer.NewOrchestrator(
		params.Sync,
		syncer.NewUploader(repo, client),
		syncer.NewDownloader(repo, client),
		repo,
		client,
		syncer.NewDBRunRecorder(persistence),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized sync orchestrator [%w]", err)
	}

	orgName := params.OrgName
	if orgName == "" {
		orgName = models.DefaultOrgName
	}

	logTags := log.Fields{"module": "visitsync", "component": "engine"}
	return &engineImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence:  persistence,
		repo:         repo,
		client:       client,
		orchestrator: orchestrator,
		validator:    validate,
		orgName:      orgName,
	}, nil
}

/*
NewEngineFromConfig initialize the visit logging engine from application configuration

	@param ctx context.Context - execution context
	@param cfg config.Config - application configuration
	@returns new engine
*/
func NewEngineFromConfig(ctx context.Context, cfg config.Config) (Engine, error) {
	return NewEngine(ctx, EngineParams{
		DBDialector:       db.GetSqliteDialector(cfg.DB.File),
		DBLogLevel:        cfg.DB.GORMLogLevel(),
		PrepareSchema:     true,
		DeviceRSACertFile: cfg.Crypto.CertFile,
		DeviceRSAKeyFile:  cfg.Crypto.KeyFile,
		Remote: remote.ClientParams{
			BaseURL:  cfg.Remote.BaseURL,
			Token:    cfg.Remote.Token,
			Timeout:  cfg.Remote.Timeout,
			PingPath: cfg.Remote.PingPath,
		},
		Sync: syncer.OrchestratorParams{
			SettleDelay:     cfg.Sync.SettleDelay,
			ProbeInterval:   cfg.Sync.ProbeInterval,
			ProbeTimeout:    cfg.Sync.ProbeTimeout,
			RefreshInterval: cfg.Sync.RefreshInterval,
		},
		OrgName: cfg.Visit.OrgName,
	})
}

func (e *engineImpl) Start(ctx context.Context) error {
	return e.orchestrator.Start(ctx)
}

func (e *engineImpl) Stop(ctx context.Context) error {
	return e.orchestrator.Stop(ctx)
}

func (e *engineImpl) Close(ctx context.Context) error {
	if err := e.orchestrator.Stop(ctx); err != nil {
		log.WithError(err).WithFields(e.LogTags).Error("Sync orchestrator did not stop cleanly")
	}
	return e.persistence.Close()
}

func (e *engineImpl) Status() syncer.Status {
	return e.orchestrator.Status()
}

func (e *engineImpl) Subscribe() (<-chan syncer.Status, func()) {
	return e.orchestrator.Subscribe()
}

func (e *engineImpl) SetOnline(online bool) {
	e.orchestrator.SetOnline(online)
}

func (e *engineImpl) CheckConnectivity(ctx context.Context) bool {
	err := e.client.Ping(ctx)
	if err != nil {
		log.WithError(err).WithFields(e.LogTags).Debug("Server unreachable")
	}
	e.orchestrator.SetOnline(err == nil)
	return err == nil
}

func (e *engineImpl) TriggerSync(ctx context.Context) (models.SyncRunReport, error) {
	return e.orchestrator.TriggerSync(ctx)
}

func (e *engineImpl) TriggerFullSync(ctx context.Context) (models.SyncRunReport, error) {
	return e.orchestrator.TriggerFullSync(ctx)
}

func (e *engineImpl) SubmitVisit(ctx context.Context, record models.Visit) (models.Visit, error) {
	record.Synced = models.SyncFlagUnsynced
	if record.OrgName == "" {
		record.OrgName = e.orgName
	}

	localID, err := e.repo.SaveOffline(ctx, record)
	if err != nil {
		return models.Visit{}, fmt.Errorf("failed to save visit [%w]", err)
	}
	saved, err := e.repo.Get(ctx, localID)
	if err != nil {
		return models.Visit{}, fmt.Errorf("failed to read back visit %s [%w]", localID, err)
	}
	if saved == nil {
		return models.Visit{}, fmt.Errorf("visit %s vanished after save", localID)
	}

	logger := log.WithFields(e.LogTags).WithField("visit", localID.String())
	if !e.orchestrator.Status().IsOnline {
		logger.Info("Offline, visit queued for the next sync")
		return *saved, nil
	}

	// The POST and the local ID swap must not interleave with an upload phase
	submitted := false
	err = e.orchestrator.WithUploadLock(func() error {
		serverID, err := e.client.CreateVisit(ctx, saved.VisitDetails)
		if err != nil {
			return fmt.Errorf("immediate submission failed [%w]", err)
		}

		if localID.IsNumeric() {
			swapped, err := e.repo.SwapToServerID(ctx, localID, serverID)
			if err != nil {
				return fmt.Errorf("failed to record immediate submission [%w]", err)
			}
			if !swapped {
				// Another process already uploaded it
				return nil
			}
		} else if err := e.repo.MarkSynced(ctx, localID); err != nil {
			return fmt.Errorf("failed to record immediate submission [%w]", err)
		}

		saved.ID = serverID
		saved.Synced = models.SyncFlagSynced
		submitted = true
		return nil
	})

	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		logger.Info("Upload in progress, visit queued for the next sync")
	case err != nil:
		logger.WithError(err).Warn("Visit queued for the next sync")
	case submitted:
		logger.WithField("server-id", saved.ID.String()).Info("Visit submitted")
	}
	return *saved, nil
}

func (e *engineImpl) ListVisits(ctx context.Context) (visit.ListResult, error) {
	return e.repo.GetAll(ctx)
}

func (e *engineImpl) SyncHistory(ctx context.Context, limit int) ([]models.SyncRunReport, error) {
	filter := db.SystemEventQueryFilter{
		EventTypes: []models.SystemEventTypeENUMType{
			models.SystemEventTypeSyncSucceeded, models.SystemEventTypeSyncFailed,
		},
		NewestFirst: true,
	}
	if limit > 0 {
		filter.Limit = &limit
	}

	var events []models.SystemEventAudit
	if err := e.persistence.UseDatabase(
		ctx, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			events, err = dbClient.ListSystemEvents(dbCtx, filter)
			return err
		},
	); err != nil {
		return nil, fmt.Errorf("failed to list sync runs [%w]", err)
	}

	result := make([]models.SyncRunReport, 0, len(events))
	for _, event := range events {
		parsed, err := event.ParseMetadata(e.validator)
		if err != nil {
			log.WithError(err).
				WithFields(e.LogTags).
				WithField("event", event.ID).
				Warn("Skipping malformed sync run event")
			continue
		}
		if report, ok := parsed.(models.SyncRunReport); ok {
			result = append(result, report)
		}
	}
	return result, nil
}
