package workflow

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/apperr"
	"github.com/appraisement/appraisal-engine/internal/cache"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/pkg/firecrawl"
)

// LookupInput identifies one property whose assessor account to resolve.
type LookupInput struct {
	PropertyID string `json:"property_id"`
	Street     string `json:"street"`
}

// LookupResult reports the resolved account, nil when the assessor has no
// matching parcel.
type LookupResult struct {
	PropertyID    string  `json:"property_id"`
	AccountNumber *string `json:"account_number"`
}

// LookupAccount resolves a property's assessor account number. A miss is a
// valid outcome: the property simply carries no account and is later skipped
// by enrichment.
func (a *Activities) LookupAccount(ctx context.Context, in LookupInput) (*LookupResult, error) {
	account, err := a.Assessor.LookupAccount(ctx, in.Street)
	if err != nil {
		return nil, classify(apperr.KindExternalAPI, err, "assessor lookup failed")
	}

	if err := a.Store.SetAccountNumber(ctx, in.PropertyID, account); err != nil {
		return nil, err
	}
	if account == nil {
		zap.L().Info("no assessor account for property",
			zap.String("property_id", in.PropertyID),
			zap.String("street", in.Street))
	}
	return &LookupResult{PropertyID: in.PropertyID, AccountNumber: account}, nil
}

// EnrichInput drives the detail scrape for a request's properties.
type EnrichInput struct {
	RequestID string `json:"request_id"`
}

// EnrichStats summarizes a scrape pass.
type EnrichStats struct {
	Scraped      int `json:"scraped"`
	Enriched     int `json:"enriched"`
	FieldsFilled int `json:"fields_filled"`
	SalesAdded   int `json:"sales_added"`
}

type scrapeArgs struct {
	URLs []string `json:"urls"`
}

type scrapedSale struct {
	PreviousOwner *string  `json:"previous_owner"`
	SaleDate      *string  `json:"sale_date"`
	SalePrice     *float64 `json:"sale_price"`
}

// scrapedDetail is the extraction target for one assessor detail page.
type scrapedDetail struct {
	model.PropertyAttributes
	Sales []scrapedSale `json:"sales_history"`
}

// detailSchema mirrors PropertyAttributes plus the sales table. Every field
// is optional so a sparse parcel record extracts cleanly.
var detailSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"bedrooms":                    map[string]any{"type": "number"},
		"bathrooms":                   map[string]any{"type": "number"},
		"half_bathrooms":              map[string]any{"type": "number"},
		"fireplaces":                  map[string]any{"type": "number"},
		"total_rooms":                 map[string]any{"type": "number"},
		"year_built":                  map[string]any{"type": "number"},
		"lot_size":                    map[string]any{"type": "string"},
		"subdivision":                 map[string]any{"type": "string"},
		"school_district":             map[string]any{"type": "string"},
		"fire_district":               map[string]any{"type": "string"},
		"neighborhood_code":           map[string]any{"type": "string"},
		"property_type":               map[string]any{"type": "string"},
		"quality_code":                map[string]any{"type": "string"},
		"architectural_type":          map[string]any{"type": "string"},
		"exterior_walls":              map[string]any{"type": "string"},
		"owner_name":                  map[string]any{"type": "string"},
		"legal_description":           map[string]any{"type": "string"},
		"as_of_date":                  map[string]any{"type": "string"},
		"total_area_sqft":             map[string]any{"type": "number"},
		"base_area_sqft":              map[string]any{"type": "number"},
		"basement_area_sqft":          map[string]any{"type": "number"},
		"finished_basement_area_sqft": map[string]any{"type": "number"},
		"parking_area_sqft":           map[string]any{"type": "number"},
		"land_value_usd":              map[string]any{"type": "number"},
		"residential_value_usd":       map[string]any{"type": "number"},
		"commercial_value_usd":        map[string]any{"type": "number"},
		"agriculture_value_usd":       map[string]any{"type": "number"},
		"total_market_value_usd":      map[string]any{"type": "number"},
		"sales_history": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"previous_owner": map[string]any{"type": "string"},
					"sale_date":      map[string]any{"type": "string"},
					"sale_price":     map[string]any{"type": "number"},
				},
			},
		},
	},
}

const detailPrompt = "Extract the parcel's physical characteristics, assessed values, " +
	"and the full sales history table from this assessor detail page. Dates as YYYY-MM-DD, " +
	"prices and areas as plain numbers."

// EnrichComparables scrapes the assessor detail page for every property on
// the request that has an account number, fills still-null attributes, and
// records sales history. A failed or empty extraction for one property does
// not fail the pass.
func (a *Activities) EnrichComparables(ctx context.Context, in EnrichInput) (*EnrichStats, error) {
	props, err := a.propertiesForRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	urlToProperty := make(map[string]*model.Property)
	var urls []string
	for i := range props {
		p := &props[i]
		if p.AccountNumber == nil || *p.AccountNumber == "" {
			continue
		}
		u := a.Assessor.DetailsURL(*p.AccountNumber)
		urlToProperty[u] = p
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		zap.L().Warn("no properties with account numbers to enrich",
			zap.String("request_id", in.RequestID))
		return &EnrichStats{}, nil
	}
	sort.Strings(urls) // stable cache key

	pages, cached, err := cache.Fetch(ctx, a.Cache, "appraisal.scrape",
		scrapeArgs{URLs: urls},
		cache.Options{TTL: ttlDays(a.Cfg.Cache.ScrapeTTLDays)},
		func(ctx context.Context) ([]firecrawl.PageData, error) {
			started, err := a.Firecrawl.BatchScrape(ctx, firecrawl.BatchScrapeRequest{
				URLs:    urls,
				Formats: []firecrawl.JSONFormat{firecrawl.NewJSONFormat(detailSchema, detailPrompt)},
			})
			if err != nil {
				return nil, err
			}
			status, err := firecrawl.PollBatchScrape(ctx, a.Firecrawl, started.ID)
			if err != nil {
				return nil, err
			}
			return status.Data, nil
		})
	if err != nil {
		return nil, classify(apperr.KindExternalAPI, err, "detail scrape failed")
	}

	stats := EnrichStats{Scraped: len(pages)}
	zap.L().Info("detail scrape complete",
		zap.String("request_id", in.RequestID),
		zap.Int("pages", len(pages)),
		zap.Bool("cached", cached))

	for _, page := range pages {
		prop := matchPage(page, urlToProperty)
		if prop == nil {
			continue
		}
		var detail scrapedDetail
		if err := json.Unmarshal(page.JSON, &detail); err != nil {
			zap.L().Warn("unparseable detail extraction",
				zap.String("property_id", prop.ID),
				zap.Error(err))
			continue
		}

		filled, err := a.Store.EnrichProperty(ctx, prop.ID, detail.PropertyAttributes)
		if err != nil {
			return nil, err
		}
		if filled > 0 {
			stats.Enriched++
			stats.FieldsFilled += filled
		}

		if len(detail.Sales) > 0 {
			sales := make([]model.SaleRecord, 0, len(detail.Sales))
			for _, s := range detail.Sales {
				sales = append(sales, model.SaleRecord{
					PreviousOwner: s.PreviousOwner,
					SaleDate:      s.SaleDate,
					SalePrice:     s.SalePrice,
				})
			}
			if err := a.Store.AddSalesHistory(ctx, prop.ID, sales); err != nil {
				return nil, err
			}
			stats.SalesAdded += len(sales)
		}
	}

	return &stats, nil
}

// propertiesForRequest returns the subject and all attached comparables.
func (a *Activities) propertiesForRequest(ctx context.Context, requestID string) ([]model.Property, error) {
	var props []model.Property
	subject, err := a.Store.GetSubjectProperty(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if subject != nil {
		props = append(props, *subject)
	}
	comps, err := a.Store.ListComparables(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return append(props, comps...), nil
}

func matchPage(page firecrawl.PageData, byURL map[string]*model.Property) *model.Property {
	if p, ok := byURL[page.URL]; ok {
		return p
	}
	if page.Metadata != nil {
		if p, ok := byURL[page.Metadata.SourceURL]; ok {
			return p
		}
	}
	return nil
}
