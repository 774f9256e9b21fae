package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/apperr"
	"github.com/appraisement/appraisal-engine/internal/appraise"
	"github.com/appraisement/appraisal-engine/internal/cache"
	"github.com/appraisement/appraisal-engine/internal/config"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/pkg/notify"
)

// AppraiseInput identifies the request to value.
type AppraiseInput struct {
	RequestID string `json:"request_id"`
	AsOfDate  string `json:"as_of_date"`
	Force     bool   `json:"force"`
}

// AppraiseResult carries the final value back to the workflow.
type AppraiseResult struct {
	FinalValue float64 `json:"final_value"`
}

// appraiseArgs keys the appraisal cache by the valuation inputs rather than
// the request, so a re-run over the same subject, comps, date, and rates hits
// the cached outcome.
type appraiseArgs struct {
	SubjectID string             `json:"subject_id"`
	AsOfDate  string             `json:"as_of_date"`
	CompIDs   []string           `json:"comp_ids"`
	Rates     config.RatesConfig `json:"rates"`
}

type appraiseOutcome struct {
	Payload   model.AppraisalPayload `json:"payload"`
	Narrative string                 `json:"narrative"`
}

// Appraise runs the sales comparison analysis over the enriched properties
// and persists the result.
func (a *Activities) Appraise(ctx context.Context, in AppraiseInput) (*AppraiseResult, error) {
	subject, err := a.Store.GetSubjectProperty(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, fmt.Errorf("subject property not found for request %s", in.RequestID)
	}
	comps, err := a.Store.ListComparables(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	sales := make(map[string][]model.SaleRecord, len(comps))
	compIDs := make([]string, 0, len(comps))
	for _, c := range comps {
		compIDs = append(compIDs, c.ID)
		history, err := a.Store.ListSalesHistory(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		sales[c.ID] = history
	}

	asOf := in.AsOfDate
	if asOf == "" {
		asOf = time.Now().UTC().Format("2006-01-02")
	}

	outcome, cached, err := cache.Fetch(ctx, a.Cache, "appraisal.appraise",
		appraiseArgs{SubjectID: subject.ID, AsOfDate: asOf, CompIDs: compIDs, Rates: a.Cfg.Rates},
		cache.Options{TTL: ttlDays(a.Cfg.Cache.AppraisalTTLDays), Force: in.Force},
		func(ctx context.Context) (appraiseOutcome, error) {
			payload, narrative, err := a.Appraiser.Run(ctx, appraise.Input{
				Subject:  *subject,
				Comps:    comps,
				Sales:    sales,
				Rates:    a.Cfg.Rates,
				AsOfDate: asOf,
			})
			if err != nil {
				return appraiseOutcome{}, err
			}
			return appraiseOutcome{Payload: *payload, Narrative: narrative}, nil
		})
	if err != nil {
		return nil, classify(apperr.KindSchema, err, "appraisal failed")
	}
	zap.L().Info("appraisal complete",
		zap.String("request_id", in.RequestID),
		zap.Bool("cached", cached))

	if _, err := a.Store.SaveResult(ctx, &model.AppraisalResult{
		RequestID: in.RequestID,
		Payload:   outcome.Payload,
		Narrative: outcome.Narrative,
	}); err != nil {
		return nil, err
	}

	return &AppraiseResult{FinalValue: outcome.Payload.Reconciliation.FinalValue}, nil
}

// NotifyInput identifies the completed request to announce.
type NotifyInput struct {
	RequestID string `json:"request_id"`
}

// Notify emails the latest result to the configured recipient. With no
// recipient configured the step is a no-op.
func (a *Activities) Notify(ctx context.Context, in NotifyInput) error {
	to := a.Cfg.Resend.To
	if to == "" || a.Notifier == nil {
		zap.L().Debug("notification skipped, no recipient configured",
			zap.String("request_id", in.RequestID))
		return nil
	}

	result, err := a.Store.GetLatestResult(ctx, in.RequestID)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("no appraisal result for request %s", in.RequestID)
	}

	comps := make([]notify.CompLine, 0, len(result.Payload.Comps))
	for _, c := range result.Payload.Comps {
		comps = append(comps, notify.CompLine{
			Address:       c.ID,
			SaleDate:      c.SaleDate,
			AdjustedPrice: c.AdjustedPrice,
		})
	}

	return a.Notifier.SendResult(ctx, to, notify.ResultEmail{
		Address:    result.Payload.Subject.Address,
		FinalValue: result.Payload.Reconciliation.FinalValue,
		RangeLow:   result.Payload.Reconciliation.IndicatedRange.Low,
		RangeHigh:  result.Payload.Reconciliation.IndicatedRange.High,
		Narrative:  result.Narrative,
		Comps:      comps,
	})
}
