package appraise

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/appraisement/appraisal-engine/internal/config"
	"github.com/appraisement/appraisal-engine/internal/model"
)

// The system prompt is static so it can sit in the provider's prompt cache;
// everything request-specific travels in the user message.

const promptRole = `You are a residential real estate appraiser preparing a sales comparison
analysis. You value a single subject property using recently sold comparable
properties from the same market area.`

const promptConstraints = `Constraints:
- Use only the data provided in the inputs. Never invent sale prices, dates,
  or property characteristics.
- When a field is missing for the subject or a comp, skip the corresponding
  adjustment and note the gap in the reconciliation reasoning.
- Express all adjustments from the comp toward the subject: if a comp is
  superior, adjust its price down; if inferior, adjust up.
- The final value opinion must fall inside the indicated range.
- Output strictly valid JSON matching the requested format. No prose outside
  the JSON object.`

const promptAdjustmentGuidelines = `Adjustment guidelines:
- Start from the rates given in the inputs (GLA per sqft, bedroom, full bath,
  half bath, finished basement per sqft, garage per sqft, monthly time
  adjustment). Echo those starting rates verbatim in the assumptions object.
  When the data clearly supports deviating for a specific comp, express the
  deviation in that adjustment's amount and explain it in the rationale.
- Apply the time adjustment first: adjust each comp's sale price from its sale
  date to the as-of date using the monthly rate, compounded monthly.
- Then apply feature adjustments for measurable differences (GLA, bed and bath
  count, basement finish, garage area, lot).
- adjusted_price must equal unadjusted_price plus time_adjustment plus
  net_adjustment.
- Weight comps by similarity and recency; weights must sum to 1.`

const promptProcess = `Process:
1. Summarize the subject from its attributes.
2. For each comp, compute the time adjustment, then each feature adjustment
   with a one-line rationale.
3. Reconcile: derive the indicated range from the adjusted prices, compute
   mean, median, and the weighted value, and state a final value opinion.
4. Write a short narrative suitable for a client email.`

const promptOutputFormat = `Output format: a single JSON object
{
  "appraisal": {
    "subject": {"address": string, "as_of_date": string, "summary": string},
    "assumptions": {
      "gla_rate_per_sqft": number, "bath_full_rate": number,
      "bath_half_rate": number, "bedroom_rate": number,
      "basement_finished_rate": number, "garage_rate_per_sqft": number,
      "lot_adjustment_method": "lump_sum" | "per_sqft" | "none",
      "time_adjustment_monthly_rate": number,
      "location_adjustments_note": string
    },
    "comps": [{
      "id": string, "sale_date": string, "unadjusted_price": number,
      "price_per_sqft": number,
      "differences": object,
      "adjustments": [{"feature": string, "amount": number, "rationale": string}],
      "time_adjustment": number, "net_adjustment": number,
      "adjusted_price": number, "weight": number
    }],
    "reconciliation": {
      "indicated_range": {"low": number, "high": number},
      "central_tendency": {"mean": number, "median": number},
      "weighted_value": number, "final_value_opinion": number,
      "reasoning": string
    },
    "risks": [string]
  },
  "narrative": string
}`

// SystemPrompt returns the static portion of the appraisal prompt.
func SystemPrompt() string {
	return strings.Join([]string{
		promptRole,
		promptConstraints,
		promptAdjustmentGuidelines,
		promptProcess,
		promptOutputFormat,
	}, "\n\n")
}

// compInput pairs a comp with its sales history for the prompt.
type compInput struct {
	ID       string                   `json:"id"`
	Address  string                   `json:"address"`
	Account  *string                  `json:"account_number,omitempty"`
	Attrs    model.PropertyAttributes `json:"attributes"`
	Sales    []model.SaleRecord       `json:"sales_history,omitempty"`
	Distance *float64                 `json:"distance_miles,omitempty"`
}

// UserPrompt renders the request-specific inputs section.
func UserPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Appraise the subject property as of %s.\n\n", in.AsOfDate)

	b.WriteString("Subject property:\n")
	b.WriteString(safeStringify(struct {
		Address string                   `json:"address"`
		Attrs   model.PropertyAttributes `json:"attributes"`
	}{Address: in.Subject.FullAddress, Attrs: in.Subject.Attributes}, 8000))
	b.WriteString("\n\n")

	comps := make([]compInput, 0, len(in.Comps))
	for i, c := range in.Comps {
		ci := compInput{
			ID:      fmt.Sprintf("C%d", i+1),
			Address: c.FullAddress,
			Account: c.AccountNumber,
			Attrs:   c.Attributes,
		}
		if in.Sales != nil {
			ci.Sales = in.Sales[c.ID]
		}
		comps = append(comps, ci)
	}
	b.WriteString("Comparable sales:\n")
	b.WriteString(safeStringify(comps, 24000))
	b.WriteString("\n\n")

	b.WriteString("Starting adjustment rates:\n")
	b.WriteString(safeStringify(map[string]any{
		"gla_rate_per_sqft":            in.Rates.GLARateStart,
		"bedroom_rate":                 in.Rates.BedroomStart,
		"bath_full_rate":               in.Rates.BathFullStart,
		"bath_half_rate":               in.Rates.BathHalfStart,
		"basement_finished_rate":       in.Rates.BasementFinishedStart,
		"garage_rate_per_sqft":         in.Rates.GarageRateStart,
		"lot_adjustment_method":        in.Rates.LotMethod,
		"time_adjustment_monthly_rate": in.Rates.TimeAdjMonthlyStart,
	}, 2000))

	return b.String()
}

// Input collects everything the appraise step feeds into the prompt.
type Input struct {
	Subject  model.Property
	Comps    []model.Property
	Sales    map[string][]model.SaleRecord // keyed by property ID
	Rates    config.RatesConfig
	AsOfDate string
}

// safeStringify renders a value as indented JSON, bounded to max bytes so a
// pathological record cannot blow up the prompt.
func safeStringify(v any, max int) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	if len(data) > max {
		return string(data[:max]) + "\n... (truncated)"
	}
	return string(data)
}
