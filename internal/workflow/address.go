package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appraisement/appraisal-engine/internal/address"
	"github.com/appraisement/appraisal-engine/internal/apperr"
	"github.com/appraisement/appraisal-engine/internal/cache"
	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/pkg/firecrawl"
	"github.com/appraisement/appraisal-engine/pkg/geocode"
)

// maxComparables caps how many candidate properties a search can fan out to.
const maxComparables = 8

// GeocodeInput identifies the subject address to resolve.
type GeocodeInput struct {
	RequestID string `json:"request_id"`
	Address   string `json:"address"`
}

// SubjectResult is the persisted subject property after geocoding.
type SubjectResult struct {
	PropertyID  string `json:"property_id"`
	FullAddress string `json:"full_address"`
	Line1       string `json:"line1"`
}

type geocodeArgs struct {
	Address string `json:"address"`
}

// GeocodeSubject resolves the request's free-form address and persists the
// subject property. A geocoder miss is deterministic and fails the request.
func (a *Activities) GeocodeSubject(ctx context.Context, in GeocodeInput) (*SubjectResult, error) {
	addr, cached, err := cache.Fetch(ctx, a.Cache, "appraisal.geocode",
		geocodeArgs{Address: address.Normalize(in.Address)},
		cache.Options{TTL: ttlDays(a.Cfg.Cache.GeocodeTTLDays)},
		func(ctx context.Context) (geocode.Address, error) {
			got, err := a.Geocoder.Forward(ctx, in.Address)
			if err != nil {
				return geocode.Address{}, err
			}
			return *got, nil
		})
	if err != nil {
		if errors.Is(err, geocode.ErrNoMatch) {
			return nil, classify(apperr.KindGeocoding, err, "unable to geocode address")
		}
		return nil, classify(apperr.KindExternalAPI, err, "geocode request failed")
	}
	if addr.Longitude == nil || addr.Latitude == nil {
		// A match without coordinates cannot anchor a comparable search.
		return nil, classify(apperr.KindGeocoding, nil, "geocoder returned no coordinates for address")
	}
	zap.L().Info("subject geocoded",
		zap.String("request_id", in.RequestID),
		zap.String("full_address", addr.FullAddress),
		zap.Bool("cached", cached))

	subject, err := a.Store.UpsertProperty(ctx, &model.Property{
		RequestID:   &in.RequestID,
		Role:        model.RoleSubject,
		Line1:       &addr.Line1,
		FullAddress: addr.FullAddress,
		City:        addr.City,
		State:       addr.State,
		PostalCode:  addr.PostalCode,
		CountryCode: addr.CountryCode,
		Longitude:   addr.Longitude,
		Latitude:    addr.Latitude,
	})
	if err != nil {
		return nil, err
	}

	return &SubjectResult{
		PropertyID:  subject.ID,
		FullAddress: subject.FullAddress,
		Line1:       addr.Line1,
	}, nil
}

// ComparablesInput drives the candidate search around the subject.
type ComparablesInput struct {
	RequestID string `json:"request_id"`
	SubjectID string `json:"subject_id"`
}

// CompCandidate is one persisted comparable produced by the search.
type CompCandidate struct {
	PropertyID  string `json:"property_id"`
	FullAddress string `json:"full_address"`
	Street      string `json:"street"`
	Position    int    `json:"position"`
}

type addressSearchArgs struct {
	Street string `json:"street"`
}

// addressSearchSchema asks the extractor for every street address visible in
// the assessor's results table.
var addressSearchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"addresses": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"addresses"},
}

// FindComparables searches the assessor tool for neighboring parcels on the
// subject's street, persists them as comparables, and attaches them to the
// request in search order.
func (a *Activities) FindComparables(ctx context.Context, in ComparablesInput) ([]CompCandidate, error) {
	prop, err := a.Store.GetProperty(ctx, in.SubjectID)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, fmt.Errorf("subject property %s not found for request %s", in.SubjectID, in.RequestID)
	}

	street := address.StreetName(deref(prop.Line1))
	searchURL := a.Cfg.Assessor.SearchURL + "?SitusName=" + strings.ReplaceAll(street, " ", "+")

	found, cached, err := cache.Fetch(ctx, a.Cache, "appraisal.addressSearch",
		addressSearchArgs{Street: street},
		cache.Options{TTL: ttlDays(a.Cfg.Cache.AddressSearchTTLDays)},
		func(ctx context.Context) ([]string, error) {
			resp, err := a.Firecrawl.Scrape(ctx, firecrawl.ScrapeRequest{
				URL: searchURL,
				Formats: []firecrawl.JSONFormat{firecrawl.NewJSONFormat(
					addressSearchSchema,
					"Extract every street address listed in the property search results table.",
				)},
				OnlyMainContent: true,
			})
			if err != nil {
				return nil, err
			}
			var extracted struct {
				Addresses []string `json:"addresses"`
			}
			if err := json.Unmarshal(resp.Data.JSON, &extracted); err != nil {
				return nil, err
			}
			return extracted.Addresses, nil
		})
	if err != nil {
		return nil, classify(apperr.KindExternalAPI, err, "address search scrape failed")
	}
	if len(found) == 0 {
		return nil, classify(apperr.KindAddressSearch, nil, "no addresses found")
	}
	zap.L().Info("address search complete",
		zap.String("request_id", in.RequestID),
		zap.Int("candidates", len(found)),
		zap.Bool("cached", cached))

	subjectLine := strings.ToLower(address.Normalize(deref(prop.Line1)))
	var lines []string
	for _, raw := range found {
		line := address.Normalize(raw)
		if strings.ToLower(line) == subjectLine {
			continue // the subject is not its own comp
		}
		if len(lines) >= maxComparables {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, classify(apperr.KindAddressSearch, nil, "no comparable candidates besides the subject")
	}

	resolved := a.geocodeCandidates(ctx, lines, prop)

	out := make([]CompCandidate, 0, len(lines))
	for i, line := range lines {
		comp := &model.Property{
			Role:        model.RoleComparable,
			Line1:       &line,
			FullAddress: composeFullAddress(line, prop),
			City:        prop.City,
			State:       prop.State,
			PostalCode:  prop.PostalCode,
			CountryCode: prop.CountryCode,
		}
		if addr := resolved[i]; addr != nil {
			line1 := addr.Line1
			comp.Line1 = &line1
			comp.FullAddress = addr.FullAddress
			comp.City = addr.City
			comp.State = addr.State
			comp.PostalCode = addr.PostalCode
			comp.CountryCode = addr.CountryCode
			comp.Longitude = addr.Longitude
			comp.Latitude = addr.Latitude
		}

		stored, err := a.Store.UpsertProperty(ctx, comp)
		if err != nil {
			return nil, err
		}
		if err := a.Store.AttachComparable(ctx, in.RequestID, stored.ID, i); err != nil {
			return nil, err
		}
		out = append(out, CompCandidate{
			PropertyID:  stored.ID,
			FullAddress: stored.FullAddress,
			Street:      deref(comp.Line1),
			Position:    i,
		})
	}

	return out, nil
}

// geocodeCandidates resolves candidate lines in parallel, bounded by the
// lookup concurrency setting. The join is all-settled: a failed member stays
// nil and the caller keeps the raw candidate address instead.
func (a *Activities) geocodeCandidates(ctx context.Context, lines []string, subject *model.Property) []*geocode.Address {
	limit := a.Cfg.Lookup.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}

	resolved := make([]*geocode.Address, len(lines))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, line := range lines {
		g.Go(func() error {
			query := composeFullAddress(line, subject)
			addr, _, err := cache.Fetch(ctx, a.Cache, "appraisal.geocode",
				geocodeArgs{Address: query},
				cache.Options{TTL: ttlDays(a.Cfg.Cache.GeocodeTTLDays)},
				func(ctx context.Context) (geocode.Address, error) {
					got, err := a.Geocoder.Forward(ctx, query)
					if err != nil {
						return geocode.Address{}, err
					}
					return *got, nil
				})
			if err != nil {
				zap.L().Warn("candidate geocode failed, keeping raw address",
					zap.String("candidate", line),
					zap.Error(err))
				return nil
			}
			resolved[i] = &addr
			return nil
		})
	}
	_ = g.Wait()
	return resolved
}

// composeFullAddress extends a street line with the subject's locality; comps
// from the same search share the subject's city, state, and zip.
func composeFullAddress(line string, subject *model.Property) string {
	parts := []string{line}
	if v := deref(subject.City); v != "" {
		parts = append(parts, v)
	}
	locality := ""
	if v := deref(subject.State); v != "" {
		locality = v
	}
	if v := deref(subject.PostalCode); v != "" {
		if locality != "" {
			locality += " " + v
		} else {
			locality = v
		}
	}
	if locality != "" {
		parts = append(parts, locality)
	}
	return strings.Join(parts, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ttlDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
