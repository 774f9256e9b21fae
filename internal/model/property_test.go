package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromKeepsPopulatedFields(t *testing.T) {
	sqft := 2400.0
	beds := 4.0
	existing := PropertyAttributes{TotalAreaSqft: &sqft}

	newSqft := 9999.0
	yearBuilt := 1998.0
	filled := existing.FillFrom(PropertyAttributes{
		TotalAreaSqft: &newSqft,
		Bedrooms:      &beds,
		YearBuilt:     &yearBuilt,
	})

	assert.Equal(t, 2, filled)
	assert.Equal(t, 2400.0, *existing.TotalAreaSqft)
	assert.Equal(t, 4.0, *existing.Bedrooms)
	assert.Equal(t, 1998.0, *existing.YearBuilt)
}

func TestFillFromNilSourceFieldsAreSkipped(t *testing.T) {
	var attrs PropertyAttributes
	assert.Equal(t, 0, attrs.FillFrom(PropertyAttributes{}))
}
