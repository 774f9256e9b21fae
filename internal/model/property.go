package model

import "time"

// PropertyRole distinguishes the parcel under appraisal from its evidence set.
type PropertyRole string

const (
	RoleSubject    PropertyRole = "subject"
	RoleComparable PropertyRole = "comparable"
)

// Property is one real-world parcel. Address fields come from geocoding;
// everything in Attributes stays nil until assessor enrichment fills it.
type Property struct {
	ID            string       `json:"id"`
	RequestID     *string      `json:"request_id,omitempty"`
	Role          PropertyRole `json:"role"`
	Line1         *string      `json:"line1"`
	FullAddress   string       `json:"full_address"`
	City          *string      `json:"city"`
	State         *string      `json:"state"`
	PostalCode    *string      `json:"postal_code"`
	CountryCode   *string      `json:"country_code"`
	Longitude     *float64     `json:"longitude"`
	Latitude      *float64     `json:"latitude"`
	AccountNumber *string      `json:"account_number"`
	ParcelID      *string      `json:"parcel_id"`

	Attributes PropertyAttributes `json:"attributes"`

	SalesHistory []SaleRecord `json:"sales_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PropertyAttributes holds the assessor-sourced physical and financial
// fields. Every field is nullable; the scrape tolerates partial records.
type PropertyAttributes struct {
	Bedrooms                 *float64 `json:"bedrooms"`
	Bathrooms                *float64 `json:"bathrooms"`
	HalfBathrooms            *float64 `json:"half_bathrooms"`
	Fireplaces               *float64 `json:"fireplaces"`
	TotalRooms               *float64 `json:"total_rooms"`
	YearBuilt                *float64 `json:"year_built"`
	LotSize                  *string  `json:"lot_size"`
	Subdivision              *string  `json:"subdivision"`
	SchoolDistrict           *string  `json:"school_district"`
	FireDistrict             *string  `json:"fire_district"`
	NeighborhoodCode         *string  `json:"neighborhood_code"`
	PropertyType             *string  `json:"property_type"`
	QualityCode              *string  `json:"quality_code"`
	ArchitecturalType        *string  `json:"architectural_type"`
	ExteriorWalls            *string  `json:"exterior_walls"`
	OwnerName                *string  `json:"owner_name"`
	LegalDescription         *string  `json:"legal_description"`
	AsOfDate                 *string  `json:"as_of_date"`
	TotalAreaSqft            *float64 `json:"total_area_sqft"`
	BaseAreaSqft             *float64 `json:"base_area_sqft"`
	BasementAreaSqft         *float64 `json:"basement_area_sqft"`
	FinishedBasementAreaSqft *float64 `json:"finished_basement_area_sqft"`
	ParkingAreaSqft          *float64 `json:"parking_area_sqft"`
	LandValueUSD             *float64 `json:"land_value_usd"`
	ResidentialValueUSD      *float64 `json:"residential_value_usd"`
	CommercialValueUSD       *float64 `json:"commercial_value_usd"`
	AgricultureValueUSD      *float64 `json:"agriculture_value_usd"`
	TotalMarketValueUSD      *float64 `json:"total_market_value_usd"`
}

// FillFrom copies values from src into attributes that are still nil.
// Populated fields are never overwritten; re-enrichment is an explicit
// separate path. Returns the number of fields filled.
func (a *PropertyAttributes) FillFrom(src PropertyAttributes) int {
	filled := 0
	fillF := func(dst **float64, v *float64) {
		if *dst == nil && v != nil {
			*dst = v
			filled++
		}
	}
	fillS := func(dst **string, v *string) {
		if *dst == nil && v != nil {
			*dst = v
			filled++
		}
	}
	fillF(&a.Bedrooms, src.Bedrooms)
	fillF(&a.Bathrooms, src.Bathrooms)
	fillF(&a.HalfBathrooms, src.HalfBathrooms)
	fillF(&a.Fireplaces, src.Fireplaces)
	fillF(&a.TotalRooms, src.TotalRooms)
	fillF(&a.YearBuilt, src.YearBuilt)
	fillS(&a.LotSize, src.LotSize)
	fillS(&a.Subdivision, src.Subdivision)
	fillS(&a.SchoolDistrict, src.SchoolDistrict)
	fillS(&a.FireDistrict, src.FireDistrict)
	fillS(&a.NeighborhoodCode, src.NeighborhoodCode)
	fillS(&a.PropertyType, src.PropertyType)
	fillS(&a.QualityCode, src.QualityCode)
	fillS(&a.ArchitecturalType, src.ArchitecturalType)
	fillS(&a.ExteriorWalls, src.ExteriorWalls)
	fillS(&a.OwnerName, src.OwnerName)
	fillS(&a.LegalDescription, src.LegalDescription)
	fillS(&a.AsOfDate, src.AsOfDate)
	fillF(&a.TotalAreaSqft, src.TotalAreaSqft)
	fillF(&a.BaseAreaSqft, src.BaseAreaSqft)
	fillF(&a.BasementAreaSqft, src.BasementAreaSqft)
	fillF(&a.FinishedBasementAreaSqft, src.FinishedBasementAreaSqft)
	fillF(&a.ParkingAreaSqft, src.ParkingAreaSqft)
	fillF(&a.LandValueUSD, src.LandValueUSD)
	fillF(&a.ResidentialValueUSD, src.ResidentialValueUSD)
	fillF(&a.CommercialValueUSD, src.CommercialValueUSD)
	fillF(&a.AgricultureValueUSD, src.AgricultureValueUSD)
	fillF(&a.TotalMarketValueUSD, src.TotalMarketValueUSD)
	return filled
}

// SaleRecord is one historical sale of a property. Rows are immutable once
// written.
type SaleRecord struct {
	ID            string    `json:"id"`
	PropertyID    string    `json:"property_id"`
	PreviousOwner *string   `json:"previous_owner"`
	SaleDate      *string   `json:"sale_date"`
	SalePrice     *float64  `json:"sale_price"`
	AdjustedPrice *float64  `json:"adjusted_price"`
	UnitPrice     *float64  `json:"unit_price"`
	CreatedAt     time.Time `json:"created_at"`
}
