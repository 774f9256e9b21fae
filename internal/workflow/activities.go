package workflow

import (
	"context"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/apperr"
	"github.com/appraisement/appraisal-engine/internal/appraise"
	"github.com/appraisement/appraisal-engine/internal/cache"
	"github.com/appraisement/appraisal-engine/internal/config"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/internal/store"
	"github.com/appraisement/appraisal-engine/pkg/assessor"
	"github.com/appraisement/appraisal-engine/pkg/firecrawl"
	"github.com/appraisement/appraisal-engine/pkg/geocode"
	"github.com/appraisement/appraisal-engine/pkg/notify"
)

// Valuer runs the sales comparison analysis for a subject and its comps.
// *appraise.Appraiser is the production implementation.
type Valuer interface {
	Run(ctx context.Context, in appraise.Input) (*model.AppraisalPayload, string, error)
}

// Activities bundles the pipeline's side-effecting steps. Every method is a
// Temporal activity: safe to retry, with all durable state in the store.
type Activities struct {
	Store     store.Store
	Cache     *cache.Cache
	Geocoder  geocode.Client
	Assessor  assessor.Client
	Firecrawl firecrawl.Client
	Appraiser Valuer
	Notifier  notify.Notifier
	Cfg       *config.Config
}

// NewActivities wires the pipeline activities.
func NewActivities(
	s store.Store,
	c *cache.Cache,
	geo geocode.Client,
	asr assessor.Client,
	fc firecrawl.Client,
	ap Valuer,
	n notify.Notifier,
	cfg *config.Config,
) *Activities {
	return &Activities{
		Store:     s,
		Cache:     c,
		Geocoder:  geo,
		Assessor:  asr,
		Firecrawl: fc,
		Appraiser: ap,
		Notifier:  n,
		Cfg:       cfg,
	}
}

// SetStatus commits a pipeline step transition.
func (a *Activities) SetStatus(ctx context.Context, requestID, status string) error {
	return a.Store.UpdateRequestStatus(ctx, requestID, model.RequestStatus(status))
}

// CompleteInput finalizes a request.
type CompleteInput struct {
	RequestID  string  `json:"request_id"`
	FinalValue float64 `json:"final_value"`
}

// CompleteRequest marks a request done with its final value opinion.
func (a *Activities) CompleteRequest(ctx context.Context, in CompleteInput) error {
	return a.Store.CompleteRequest(ctx, in.RequestID, in.FinalValue)
}

// FailInput records a terminal failure.
type FailInput struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// MarkFailed moves a request to the failed state with a human-readable cause.
func (a *Activities) MarkFailed(ctx context.Context, in FailInput) error {
	zap.L().Warn("appraisal request failed",
		zap.String("request_id", in.RequestID),
		zap.String("message", in.Message))
	return a.Store.MarkFailed(ctx, in.RequestID, in.Message)
}

// classify converts a connector error into a typed Temporal application error
// so the retry policy can treat deterministic failures as final.
func classify(kind apperr.Kind, err error, msg string) error {
	ae := apperr.Wrap(kind, err, msg)
	if apperr.NonRetryable(ae) {
		return temporal.NewNonRetryableApplicationError(ae.Error(), string(kind), err)
	}
	return temporal.NewApplicationError(ae.Error(), string(kind))
}
