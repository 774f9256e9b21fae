// Package appraise runs the sales comparison analysis through an LLM and
// guards the single JSON boundary where model output re-enters typed code.
package appraise

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/config"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/pkg/anthropic"
)

// Appraiser produces an appraisal payload for a subject and its comps.
type Appraiser struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates an Appraiser.
func New(client anthropic.Client, modelID string, maxTokens int64) *Appraiser {
	return &Appraiser{client: client, model: modelID, maxTokens: maxTokens}
}

// output is the wire shape the model is asked to produce.
type output struct {
	Appraisal model.AppraisalPayload `json:"appraisal"`
	Narrative string                 `json:"narrative"`
}

// Run executes the appraisal and validates the returned payload. The narrative
// accompanies the payload for notification use.
func (a *Appraiser) Run(ctx context.Context, in Input) (*model.AppraisalPayload, string, error) {
	if len(in.Comps) == 0 {
		return nil, "", eris.New("appraise: no comparables to analyze")
	}

	temp := 0.2
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(SystemPrompt()),
		Messages:    []anthropic.Message{{Role: "user", Content: UserPrompt(in)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, "", eris.Wrap(err, "appraise: create message")
	}
	resp.Usage.LogCost(a.model, "appraise")

	text := joinTextBlocks(resp.Content)
	payload, narrative, err := parseOutput(text)
	if err != nil {
		return nil, "", err
	}
	if err := verifyAssumptions(payload.Assumptions, in.Rates); err != nil {
		return nil, "", err
	}

	zap.L().Info("appraisal produced",
		zap.String("subject", payload.Subject.Address),
		zap.Int("comps", len(payload.Comps)),
		zap.Float64("final_value", payload.Reconciliation.FinalValue))
	return payload, narrative, nil
}

// parseOutput is the only place model text becomes a typed payload. It strips
// wrapping, unmarshals, and enforces the payload invariants before anything
// downstream sees the result.
func parseOutput(text string) (*model.AppraisalPayload, string, error) {
	var out output
	if err := json.Unmarshal([]byte(cleanJSON(text)), &out); err != nil {
		return nil, "", eris.Wrap(err, "appraise: parse output")
	}
	if err := out.Appraisal.Validate(); err != nil {
		return nil, "", eris.Wrap(err, "appraise: invalid payload")
	}
	return &out.Appraisal, out.Narrative, nil
}

// verifyAssumptions checks that the model echoed the configured starting
// rates instead of inventing its own; per-comp deviations belong in the
// adjustment line items, not here.
func verifyAssumptions(got model.Assumptions, rates config.RatesConfig) error {
	if got.GLARatePerSqft != rates.GLARateStart ||
		got.BedroomRate != rates.BedroomStart ||
		got.BathFullRate != rates.BathFullStart ||
		got.BathHalfRate != rates.BathHalfStart ||
		got.BasementFinishedRate != rates.BasementFinishedStart ||
		got.GarageRatePerSqft != rates.GarageRateStart {
		return eris.New("appraise: assumptions do not echo the configured rates")
	}
	if got.LotAdjustmentMethod != rates.LotMethod {
		return eris.Errorf("appraise: lot_adjustment_method %q does not echo configured %q",
			got.LotAdjustmentMethod, rates.LotMethod)
	}
	if got.TimeAdjustmentMonthlyPct == nil || *got.TimeAdjustmentMonthlyPct != rates.TimeAdjMonthlyStart {
		return eris.New("appraise: time_adjustment_monthly_rate does not echo the configured rate")
	}
	return nil
}

func joinTextBlocks(blocks []anthropic.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
