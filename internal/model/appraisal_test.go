package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPayload() AppraisalPayload {
	return AppraisalPayload{
		Subject: AppraisalSubject{
			Address:  "5756 Westchester Farm Dr, Weldon Spring, MO 63304",
			AsOfDate: "2026-08-01",
			Summary:  "Two-story single family residence.",
		},
		Assumptions: Assumptions{
			GLARatePerSqft:      90,
			BathFullRate:        5000,
			BathHalfRate:        2500,
			BedroomRate:         4000,
			LotAdjustmentMethod: "lump_sum",
		},
		Comps: []CompAnalysis{
			{
				ID:              "C1",
				SaleDate:        "2026-02-15",
				UnadjustedPrice: 450000,
				TimeAdjustment:  5400,
				NetAdjustment:   -9000,
				AdjustedPrice:   446400,
				Weight:          1,
			},
		},
		Reconciliation: Reconciliation{
			IndicatedRange:  ValueRange{Low: 440000, High: 455000},
			CentralTendency: CentralTendency{Mean: 446400, Median: 446400},
			WeightedValue:   446400,
			FinalValue:      446400,
			Reasoning:       "Single well-matched comp.",
		},
	}
}

func TestValidateOK(t *testing.T) {
	p := validPayload()
	assert.NoError(t, p.Validate())
}

func TestValidateRangeInvariant(t *testing.T) {
	p := validPayload()
	p.Reconciliation.FinalValue = 500000
	assert.ErrorContains(t, p.Validate(), "outside indicated range")

	p = validPayload()
	p.Reconciliation.IndicatedRange = ValueRange{Low: 460000, High: 450000}
	assert.ErrorContains(t, p.Validate(), "exceeds high")
}

func TestValidateRejectsEmptyComps(t *testing.T) {
	p := validPayload()
	p.Comps = nil
	assert.ErrorContains(t, p.Validate(), "at least one comp")
}

func TestValidateRejectsBadLotMethod(t *testing.T) {
	p := validPayload()
	p.Assumptions.LotAdjustmentMethod = "sliding_scale"
	assert.ErrorContains(t, p.Validate(), "lot_adjustment_method")
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	p := validPayload()
	p.Subject.Address = ""
	assert.ErrorContains(t, p.Validate(), "subject.address")
}

func TestFillFromNeverOverwrites(t *testing.T) {
	four := 4.0
	three := 3.0
	sub := "Westchester Farms"
	a := PropertyAttributes{Bedrooms: &four}
	n := a.FillFrom(PropertyAttributes{Bedrooms: &three, Subdivision: &sub})

	assert.Equal(t, 1, n)
	assert.Equal(t, 4.0, *a.Bedrooms) // populated field untouched
	assert.Equal(t, "Westchester Farms", *a.Subdivision)
}

func TestFillFromCountsOnlyNewFields(t *testing.T) {
	two := 2.0
	yr := 1998.0
	a := PropertyAttributes{}
	n := a.FillFrom(PropertyAttributes{Bathrooms: &two, YearBuilt: &yr})
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, a.FillFrom(PropertyAttributes{Bathrooms: &two, YearBuilt: &yr}))
}
