package appraise

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/appraisement/appraisal-engine/internal/config"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/pkg/anthropic"
)

const validOutput = `{
	"appraisal": {
		"subject": {"address": "5756 Westchester Farm Dr, Weldon Spring, MO 63304", "as_of_date": "2026-08-01", "summary": "Two-story SFR."},
		"assumptions": {
			"gla_rate_per_sqft": 90, "bath_full_rate": 5000, "bath_half_rate": 2500,
			"bedroom_rate": 4000, "basement_finished_rate": 35, "garage_rate_per_sqft": 20,
			"lot_adjustment_method": "lump_sum", "time_adjustment_monthly_rate": 0.004,
			"location_adjustments_note": "Same subdivision; no location adjustment."
		},
		"comps": [{
			"id": "C1", "sale_date": "2026-02-15", "unadjusted_price": 450000,
			"price_per_sqft": 180, "differences": {},
			"adjustments": [{"feature": "gla", "amount": -9000, "rationale": "Comp 100 sqft larger at $90/sqft."}],
			"time_adjustment": 5400, "net_adjustment": -9000, "adjusted_price": 446400, "weight": 1
		}],
		"reconciliation": {
			"indicated_range": {"low": 440000, "high": 455000},
			"central_tendency": {"mean": 446400, "median": 446400},
			"weighted_value": 446400, "final_value_opinion": 446400,
			"reasoning": "Single well-matched comp from the same subdivision."
		},
		"risks": ["Only one comparable sale available."]
	},
	"narrative": "The subject is valued at $446,400."
}`

func testInput() Input {
	gla := 2500.0
	return Input{
		Subject: model.Property{
			FullAddress: "5756 Westchester Farm Dr, Weldon Spring, MO 63304",
			Attributes:  model.PropertyAttributes{TotalAreaSqft: &gla},
		},
		Comps: []model.Property{
			{ID: "p-c1", FullAddress: "5750 Westchester Farm Dr, Weldon Spring, MO 63304"},
		},
		Sales: map[string][]model.SaleRecord{
			"p-c1": {{SaleDate: strPtr("2026-02-15"), SalePrice: f64Ptr(450000)}},
		},
		Rates: config.RatesConfig{
			GLARateStart: 90, BedroomStart: 4000, BathFullStart: 5000, BathHalfStart: 2500,
			BasementFinishedStart: 35, GarageRateStart: 20, LotMethod: "lump_sum", TimeAdjMonthlyStart: 0.004,
		},
		AsOfDate: "2026-08-01",
	}
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func TestRunParsesValidOutput(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.System) == 1 && len(req.Messages) == 1
	})).Return(textResponse("```json\n"+validOutput+"\n```"), nil)

	a := New(client, "claude-sonnet-4-5-20250929", 8192)
	payload, narrative, err := a.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 446400.0, payload.Reconciliation.FinalValue)
	assert.Len(t, payload.Comps, 1)
	assert.Equal(t, "The subject is valued at $446,400.", narrative)
	client.AssertExpectations(t)
}

func TestRunRejectsInvalidJSON(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I could not produce an analysis."), nil)

	a := New(client, "claude-sonnet-4-5-20250929", 8192)
	_, _, err := a.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse output")
}

func TestRunRejectsRangeViolation(t *testing.T) {
	// Final value pushed outside the indicated range.
	bad := strings.Replace(validOutput, `"final_value_opinion": 446400`, `"final_value_opinion": 500000`, 1)

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(bad), nil)

	a := New(client, "claude-sonnet-4-5-20250929", 8192)
	_, _, err := a.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid payload")
}

func TestRunRejectsMismatchedAssumptions(t *testing.T) {
	// Assumptions that do not echo the configured rates are not auditable.
	bad := strings.Replace(validOutput, `"gla_rate_per_sqft": 90`, `"gla_rate_per_sqft": 125`, 1)

	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(bad), nil)

	a := New(client, "claude-sonnet-4-5-20250929", 8192)
	_, _, err := a.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not echo the configured rates")

	bad = strings.Replace(validOutput, `"time_adjustment_monthly_rate": 0.004`, `"time_adjustment_monthly_rate": 0.02`, 1)
	client = new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(bad), nil)

	a = New(client, "claude-sonnet-4-5-20250929", 8192)
	_, _, err = a.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time_adjustment_monthly_rate")
}

func TestRunRequiresComps(t *testing.T) {
	a := New(new(mockAnthropicClient), "claude-sonnet-4-5-20250929", 8192)
	in := testInput()
	in.Comps = nil
	_, _, err := a.Run(context.Background(), in)
	assert.ErrorContains(t, err, "no comparables")
}

func TestUserPromptCarriesInputs(t *testing.T) {
	prompt := UserPrompt(testInput())
	assert.Contains(t, prompt, "5756 Westchester Farm Dr")
	assert.Contains(t, prompt, "5750 Westchester Farm Dr")
	assert.Contains(t, prompt, `"gla_rate_per_sqft": 90`)
	assert.Contains(t, prompt, "2026-08-01")
}

func TestSystemPromptIsStatic(t *testing.T) {
	// The system prompt must not vary per request or prompt caching is useless.
	assert.Equal(t, SystemPrompt(), SystemPrompt())
	assert.Contains(t, SystemPrompt(), "sales comparison")
	assert.Contains(t, SystemPrompt(), "final_value_opinion")
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		"Here you go: {\"a\":1} done.": `{"a":1}`,
		`{"a":1}`:                      `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanJSON(in))
	}
}

func TestSafeStringifyTruncates(t *testing.T) {
	long := make([]string, 1000)
	for i := range long {
		long[i] = "x"
	}
	out := safeStringify(long, 100)
	assert.Contains(t, out, "(truncated)")
	assert.LessOrEqual(t, len(out), 130)
}
