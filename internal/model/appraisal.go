package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// AppraisalResult is the structured output of the valuation step. Rows are
// append-only: a re-run inserts a new result rather than mutating the old one.
type AppraisalResult struct {
	ID        string           `json:"id"`
	RequestID string           `json:"request_id"`
	Payload   AppraisalPayload `json:"payload"`
	Narrative string           `json:"narrative"`
	CreatedAt time.Time        `json:"created_at"`
}

// AppraisalPayload is the AppraisalJSON schema the LLM must produce.
type AppraisalPayload struct {
	Subject        AppraisalSubject `json:"subject"`
	Assumptions    Assumptions      `json:"assumptions"`
	Comps          []CompAnalysis   `json:"comps"`
	Reconciliation Reconciliation   `json:"reconciliation"`
	Risks          []string         `json:"risks"`
}

// AppraisalSubject summarizes the subject property in the result.
type AppraisalSubject struct {
	Address  string `json:"address"`
	AsOfDate string `json:"as_of_date"`
	Summary  string `json:"summary"`
}

// Assumptions echoes the adjustment rates used, for auditability.
type Assumptions struct {
	GLARatePerSqft           float64  `json:"gla_rate_per_sqft"`
	BathFullRate             float64  `json:"bath_full_rate"`
	BathHalfRate             float64  `json:"bath_half_rate"`
	BedroomRate              float64  `json:"bedroom_rate"`
	BasementFinishedRate     float64  `json:"basement_finished_rate"`
	GarageRatePerSqft        float64  `json:"garage_rate_per_sqft"`
	LotAdjustmentMethod      string   `json:"lot_adjustment_method"`
	TimeAdjustmentMonthlyPct *float64 `json:"time_adjustment_monthly_rate"`
	LocationAdjustmentsNote  string   `json:"location_adjustments_note"`
}

// CompAnalysis is the per-comparable adjustment breakdown.
type CompAnalysis struct {
	ID              string          `json:"id"`
	SaleDate        string          `json:"sale_date"`
	UnadjustedPrice float64         `json:"unadjusted_price"`
	PricePerSqft    *float64        `json:"price_per_sqft"`
	Differences     CompDifferences `json:"differences"`
	Adjustments     []Adjustment    `json:"adjustments"`
	TimeAdjustment  float64         `json:"time_adjustment"`
	NetAdjustment   float64         `json:"net_adjustment"`
	AdjustedPrice   float64         `json:"adjusted_price"`
	Weight          float64         `json:"weight"`
}

// CompDifferences captures the feature gaps between a comp and the subject.
type CompDifferences struct {
	GLASqft                  *float64 `json:"gla_sqft"`
	BedsDiff                 *float64 `json:"beds_diff"`
	BathsFullDiff            *float64 `json:"baths_full_diff"`
	BathsHalfDiff            *float64 `json:"baths_half_diff"`
	BasementFinishedSqftDiff *float64 `json:"basement_finished_sqft_diff"`
	GarageSqftDiff           *float64 `json:"garage_sqft_diff"`
	LotDiffDescriptor        *string  `json:"lot_diff_descriptor"`
	QualityDiffDescriptor    *string  `json:"quality_diff_descriptor"`
	LocationDiffDescriptor   *string  `json:"location_diff_descriptor"`
	AgeDiffYears             *float64 `json:"age_diff_years"`
}

// Adjustment is one line-item correction applied to a comp's sale price.
type Adjustment struct {
	Feature   string  `json:"feature"`
	Amount    float64 `json:"amount"`
	Rationale string  `json:"rationale"`
}

// Reconciliation combines the adjusted comp values into a final opinion.
type Reconciliation struct {
	IndicatedRange  ValueRange      `json:"indicated_range"`
	CentralTendency CentralTendency `json:"central_tendency"`
	WeightedValue   float64         `json:"weighted_value"`
	FinalValue      float64         `json:"final_value_opinion"`
	Reasoning       string          `json:"reasoning"`
}

// ValueRange is a low/high dollar bracket.
type ValueRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// CentralTendency holds the unweighted mean and median of adjusted values.
type CentralTendency struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Validate enforces the structural invariants of the schema. Coercion is
// never attempted: a violation fails the appraise step.
func (p *AppraisalPayload) Validate() error {
	if p.Subject.Address == "" {
		return eris.New("appraisal: subject.address is required")
	}
	if p.Assumptions.LotAdjustmentMethod != "lump_sum" &&
		p.Assumptions.LotAdjustmentMethod != "per_sqft" &&
		p.Assumptions.LotAdjustmentMethod != "none" {
		return eris.Errorf("appraisal: invalid lot_adjustment_method %q", p.Assumptions.LotAdjustmentMethod)
	}
	if len(p.Comps) == 0 {
		return eris.New("appraisal: at least one comp is required")
	}
	for i, c := range p.Comps {
		if c.ID == "" {
			return eris.Errorf("appraisal: comps[%d].id is required", i)
		}
		if c.UnadjustedPrice <= 0 {
			return eris.Errorf("appraisal: comps[%d].unadjusted_price must be positive", i)
		}
	}
	r := p.Reconciliation
	if r.IndicatedRange.Low > r.IndicatedRange.High {
		return eris.Errorf("appraisal: indicated_range low %.0f exceeds high %.0f",
			r.IndicatedRange.Low, r.IndicatedRange.High)
	}
	if r.FinalValue < r.IndicatedRange.Low || r.FinalValue > r.IndicatedRange.High {
		return eris.Errorf("appraisal: final_value_opinion %.0f outside indicated range [%.0f, %.0f]",
			r.FinalValue, r.IndicatedRange.Low, r.IndicatedRange.High)
	}
	return nil
}

// CacheEntry is one persisted memoized result, keyed by a hash of
// (function identity, serialized args).
type CacheEntry struct {
	Key        string    `json:"key"`
	FunctionID string    `json:"function_id"`
	Payload    []byte    `json:"payload"`
	CachedAt   time.Time `json:"cached_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
