// Package engine is the entry point for appraisal runs. It owns request
// creation, dedup by normalized address, and handing the request to the
// workflow runtime.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/address"
	"github.com/appraisement/appraisal-engine/internal/config"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/internal/store"
	"github.com/appraisement/appraisal-engine/internal/workflow"
)

// WorkflowStarter is the slice of the Temporal client the engine needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Engine coordinates the store and the workflow runtime.
type Engine struct {
	store   store.Store
	starter WorkflowStarter
	cfg     *config.Config
}

// New creates an Engine.
func New(s store.Store, starter WorkflowStarter, cfg *config.Config) *Engine {
	return &Engine{store: s, starter: starter, cfg: cfg}
}

// StartInput are the caller-supplied parameters for a run.
type StartInput struct {
	Address  string `json:"address"`
	AsOfDate string `json:"as_of_date,omitempty"`
	// Force bypasses cached step results inside the run. It does not bypass
	// dedup of an already-active request for the same address.
	Force bool `json:"force,omitempty"`
}

// Start begins an appraisal for an address. If a non-terminal request already
// exists for the same normalized address, that request is returned and no new
// workflow is started; the second return value reports whether a run started.
func (e *Engine) Start(ctx context.Context, in StartInput) (*model.AppraisalRequest, bool, error) {
	normalized := address.Normalize(in.Address)
	if normalized == "" {
		return nil, false, eris.New("engine: address is required")
	}

	existing, err := e.store.FindActiveRequest(ctx, normalized)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		zap.L().Info("request already active for address",
			zap.String("request_id", existing.ID),
			zap.String("normalized", normalized))
		return existing, false, nil
	}

	req, err := e.store.CreateRequest(ctx, in.Address, normalized)
	if err != nil {
		return nil, false, err
	}

	// The workflow ID is derived from the normalized address, so two requests
	// that race past the dedup check still collapse onto one execution.
	run, err := e.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       WorkflowID(normalized),
		TaskQueue:                e.cfg.Temporal.TaskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
		WorkflowRunTimeout:       time.Hour,
	}, workflow.TypeName, workflow.WorkflowInput{
		RequestID: req.ID,
		Address:   in.Address,
		AsOfDate:  in.AsOfDate,
		Force:     in.Force,
	})
	if err != nil {
		if markErr := e.store.MarkFailed(ctx, req.ID, "workflow start failed"); markErr != nil {
			zap.L().Error("could not mark request failed",
				zap.String("request_id", req.ID), zap.Error(markErr))
		}
		return nil, false, eris.Wrap(err, "engine: start workflow")
	}

	if err := e.store.LinkWorkflow(ctx, req.ID, run.GetID()); err != nil {
		return nil, false, err
	}
	wfID := run.GetID()
	req.WorkflowID = &wfID

	zap.L().Info("appraisal started",
		zap.String("request_id", req.ID),
		zap.String("workflow_id", wfID))
	return req, true, nil
}

// GetStatus returns the request row, or (nil, nil) when unknown.
func (e *Engine) GetStatus(ctx context.Context, requestID string) (*model.AppraisalRequest, error) {
	return e.store.GetRequest(ctx, requestID)
}

// GetAppraisal returns the latest persisted result for a request, or
// (nil, nil) when none exists yet.
func (e *Engine) GetAppraisal(ctx context.Context, requestID string) (*model.AppraisalResult, error) {
	return e.store.GetLatestResult(ctx, requestID)
}

// ListRequests lists requests matching the filter, newest first.
func (e *Engine) ListRequests(ctx context.Context, filter store.RequestFilter) ([]model.AppraisalRequest, error) {
	return e.store.ListRequests(ctx, filter)
}

// WorkflowID derives the deterministic workflow ID for a normalized address.
func WorkflowID(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return "appraisal-" + hex.EncodeToString(sum[:8])
}
