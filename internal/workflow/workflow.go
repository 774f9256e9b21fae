// Package workflow implements the durable appraisal pipeline on Temporal.
// Each step is an activity whose effects land in the store, so a crashed
// worker resumes from the last completed step instead of starting over.
package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/appraisement/appraisal-engine/internal/apperr"
	"github.com/appraisement/appraisal-engine/internal/model"
)

// TypeName is the registered workflow type.
const TypeName = "AppraisalWorkflow"

// WorkflowInput starts one appraisal run.
type WorkflowInput struct {
	RequestID string `json:"request_id"`
	Address   string `json:"address"`
	AsOfDate  string `json:"as_of_date,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// WorkflowResult is the workflow's return value.
type WorkflowResult struct {
	RequestID  string  `json:"request_id"`
	FinalValue float64 `json:"final_value"`
}

// AppraisalWorkflow walks a request through geocoding, comparable search,
// account lookup, enrichment, and appraisal. Any step error moves the request
// to failed; comp-level lookup failures degrade to null accounts instead.
func AppraisalWorkflow(ctx workflow.Context, in WorkflowInput) (*WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    4,
			NonRetryableErrorTypes: []string{
				string(apperr.KindConfiguration),
				string(apperr.KindGeocoding),
				string(apperr.KindAddressSearch),
			},
		},
	})

	var a *Activities
	final, err := runPipeline(ctx, a, in)
	if err != nil {
		// Record the failure on a disconnected context so cancellation of the
		// workflow cannot lose the terminal state.
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		failErr := workflow.ExecuteActivity(dctx, a.MarkFailed, FailInput{
			RequestID: in.RequestID,
			Message:   failureMessage(err),
		}).Get(dctx, nil)
		if failErr != nil {
			logger.Error("could not record failure", "request_id", in.RequestID, "error", failErr)
		}
		return nil, err
	}

	return &WorkflowResult{RequestID: in.RequestID, FinalValue: final}, nil
}

func runPipeline(ctx workflow.Context, a *Activities, in WorkflowInput) (float64, error) {
	logger := workflow.GetLogger(ctx)

	// Step 1: geocode the subject address.
	if err := setStatus(ctx, a, in.RequestID, model.StatusAddressStart); err != nil {
		return 0, err
	}
	var subject SubjectResult
	if err := workflow.ExecuteActivity(ctx, a.GeocodeSubject, GeocodeInput{
		RequestID: in.RequestID,
		Address:   in.Address,
	}).Get(ctx, &subject); err != nil {
		return 0, err
	}

	// Step 2: the lookup phase opens with the candidate search, so the status
	// is committed before the search runs.
	if err := setStatus(ctx, a, in.RequestID, model.StatusLookupStart); err != nil {
		return 0, err
	}
	var comps []CompCandidate
	if err := workflow.ExecuteActivity(ctx, a.FindComparables, ComparablesInput{
		RequestID: in.RequestID,
		SubjectID: subject.PropertyID,
	}).Get(ctx, &comps); err != nil {
		return 0, err
	}

	// Step 3: resolve assessor accounts, subject included, in parallel. A
	// failed lookup leaves that property without an account; the run goes on.
	lookups := make([]LookupInput, 0, len(comps)+1)
	lookups = append(lookups, LookupInput{PropertyID: subject.PropertyID, Street: subject.Line1})
	for _, c := range comps {
		lookups = append(lookups, LookupInput{PropertyID: c.PropertyID, Street: c.Street})
	}

	futures := make([]workflow.Future, len(lookups))
	for i, lu := range lookups {
		futures[i] = workflow.ExecuteActivity(ctx, a.LookupAccount, lu)
	}
	resolved := 0
	for i, f := range futures {
		var res LookupResult
		if err := f.Get(ctx, &res); err != nil {
			logger.Warn("account lookup failed, continuing without account",
				"property_id", lookups[i].PropertyID, "error", err)
			continue
		}
		if res.AccountNumber != nil {
			resolved++
		}
	}
	logger.Info("account lookups complete", "total", len(lookups), "resolved", resolved)

	// Step 4: scrape detail pages and enrich.
	if err := setStatus(ctx, a, in.RequestID, model.StatusScrapeStart); err != nil {
		return 0, err
	}
	var stats EnrichStats
	if err := workflow.ExecuteActivity(ctx, a.EnrichComparables, EnrichInput{
		RequestID: in.RequestID,
	}).Get(ctx, &stats); err != nil {
		return 0, err
	}

	// Step 5: appraise.
	if err := setStatus(ctx, a, in.RequestID, model.StatusAppraiseStart); err != nil {
		return 0, err
	}
	var result AppraiseResult
	if err := workflow.ExecuteActivity(ctx, a.Appraise, AppraiseInput{
		RequestID: in.RequestID,
		AsOfDate:  in.AsOfDate,
		Force:     in.Force,
	}).Get(ctx, &result); err != nil {
		return 0, err
	}

	if err := workflow.ExecuteActivity(ctx, a.CompleteRequest, CompleteInput{
		RequestID:  in.RequestID,
		FinalValue: result.FinalValue,
	}).Get(ctx, nil); err != nil {
		return 0, err
	}

	// Step 6: notify. Delivery problems never undo a finished appraisal.
	if err := workflow.ExecuteActivity(ctx, a.Notify, NotifyInput{
		RequestID: in.RequestID,
	}).Get(ctx, nil); err != nil {
		logger.Warn("result notification failed", "request_id", in.RequestID, "error", err)
	}

	return result.FinalValue, nil
}

func setStatus(ctx workflow.Context, a *Activities, requestID string, status model.RequestStatus) error {
	return workflow.ExecuteActivity(ctx, a.SetStatus, requestID, string(status)).Get(ctx, nil)
}

// failureMessage extracts the human-readable cause for the failed request row.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
