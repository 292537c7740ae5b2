// Package remote - visit REST API client
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alwitt/goutils"
	"github.com/alwitt/visitsync/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
)

// ErrRequestFailed the server could not be reached, or rejected the request
var ErrRequestFailed = errors.New("remote request failed")

// Delta server side changes since a checkpoint
type Delta struct {
	// Modified records created or changed since the checkpoint
	Modified []models.Visit
	// Deleted IDs of records deleted since the checkpoint
	Deleted []models.EntryKey
}

// Client visit REST API client
type Client interface {
	/*
		CreateVisit submit a new visit

			@param ctx context.Context - execution context
			@param details models.VisitDetails - the visit content, without local ID or sync flag
			@returns the server issued ID
	*/
	CreateVisit(ctx context.Context, details models.VisitDetails) (models.EntryKey, error)

	/*
		FetchAll fetch every visit

			@param ctx context.Context - execution context
			@returns the visits
	*/
	FetchAll(ctx context.Context) ([]models.Visit, error)

	/*
		FetchUpdated fetch the changes since a checkpoint

			@param ctx context.Context - execution context
			@param since time.Time - the checkpoint
			@returns the changes
	*/
	FetchUpdated(ctx context.Context, since time.Time) (Delta, error)

	/*
		Ping check whether the server is reachable. Any HTTP response counts as reachable.

			@param ctx context.Context - execution context
	*/
	Ping(ctx context.Context) error
}

// ClientParams REST client parameters
type ClientParams struct {
	// BaseURL API base URL, e.g. https://example.com/api
	BaseURL string `validate:"required,url"`
	// Token optional bearer token
	Token string
	// Timeout per request timeout
	Timeout time.Duration `validate:"gt=0"`
	// PingPath path probed by Ping
	PingPath string `validate:"required"`
}

// restClient implements Client
type restClient struct {
	goutils.Component
	client   *resty.Client
	pingPath string
}

/*
NewClient define a new visit REST API client

	@param params ClientParams - client parameters
	@param httpClient *http.Client - optional underlying HTTP client
	@returns client
*/
func NewClient(params ClientParams, httpClient *http.Client) (Client, error) {
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid REST client parameters [%w]", err)
	}

	logTags := log.Fields{"module": "remote", "component": "rest-client"}

	var client *resty.Client
	if httpClient != nil {
		client = resty.NewWithClient(httpClient)
	} else {
		client = resty.New()
	}
	client.
		SetBaseURL(params.BaseURL).
		SetTimeout(params.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(log.WithFields(logTags))
	if params.Token != "" {
		client.SetAuthToken(params.Token)
	}

	return &restClient{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		client:   client,
		pingPath: params.PingPath,
	}, nil
}

// checkResponse convert transport errors and non-2XX responses into ErrRequestFailed
func checkResponse(method, path string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s %s [%v]", ErrRequestFailed, method, path, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf(
			"%w: %s %s returned %d", ErrRequestFailed, method, path, resp.StatusCode(),
		)
	}
	return nil
}

func (c *restClient) CreateVisit(
	ctx context.Context, details models.VisitDetails,
) (models.EntryKey, error) {
	const path = "/visit/create"

	request := c.client.R().SetContext(ctx).SetBody(createVisitRequest{Data: details})
	if details.ClientRef != "" {
		request.SetHeader("Idempotency-Key", details.ClientRef)
	}

	resp, err := request.Post(path)
	if err := checkResponse(http.MethodPost, path, resp, err); err != nil {
		return models.EntryKey{}, err
	}

	payload, err := unwrapEnvelope(resp.Body())
	if err != nil {
		return models.EntryKey{}, fmt.Errorf("%w: %s %s [%v]", ErrRequestFailed, http.MethodPost, path, err)
	}

	var created createdVisit
	if err := json.Unmarshal(payload, &created); err != nil {
		return models.EntryKey{}, fmt.Errorf("create response is not parsable [%w]", err)
	}
	if created.ID == "" {
		return models.EntryKey{}, fmt.Errorf("%w: create response carried no ID", ErrRequestFailed)
	}

	log.WithFields(c.LogTags).WithField("server-id", string(created.ID)).Debug("Created visit")
	return created.ID.key(), nil
}

func (c *restClient) FetchAll(ctx context.Context) ([]models.Visit, error) {
	const path = "/visit"

	resp, err := c.client.R().SetContext(ctx).Get(path)
	if err := checkResponse(http.MethodGet, path, resp, err); err != nil {
		return nil, err
	}

	payload, err := unwrapEnvelope(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s [%v]", ErrRequestFailed, http.MethodGet, path, err)
	}

	return parseVisitList(payload)
}

func (c *restClient) FetchUpdated(ctx context.Context, since time.Time) (Delta, error) {
	path := "/visit/updated/" + epochSeconds(since.Unix())

	resp, err := c.client.R().SetContext(ctx).Get(path)
	if err := checkResponse(http.MethodGet, path, resp, err); err != nil {
		return Delta{}, err
	}

	payload, err := unwrapEnvelope(resp.Body())
	if err != nil {
		return Delta{}, fmt.Errorf("%w: %s %s [%v]", ErrRequestFailed, http.MethodGet, path, err)
	}

	var changes updatedVisits
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &changes); err != nil {
			return Delta{}, fmt.Errorf("delta response is not parsable [%w]", err)
		}
	}

	result := Delta{
		Modified: make([]models.Visit, 0, len(changes.ModifiedVisits)),
		Deleted:  make([]models.EntryKey, 0, len(changes.DeletedVisits)),
	}
	for _, entry := range changes.ModifiedVisits {
		result.Modified = append(result.Modified, entry.toLocal())
	}
	for _, id := range changes.DeletedVisits {
		if id != "" {
			result.Deleted = append(result.Deleted, id.key())
		}
	}
	return result, nil
}

func (c *restClient) Ping(ctx context.Context) error {
	_, err := c.client.R().SetContext(ctx).Head(c.pingPath)
	if err != nil {
		return fmt.Errorf("%w: server unreachable [%v]", ErrRequestFailed, err)
	}
	return nil
}
