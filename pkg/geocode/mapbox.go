package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

// forwardResponse is the Mapbox Geocoding v6 forward response, reduced to the
// fields we read.
type forwardResponse struct {
	Features []struct {
		Properties struct {
			Name           string `json:"name"`
			NamePreferred  string `json:"name_preferred"`
			FullAddress    string `json:"full_address"`
			PlaceFormatted string `json:"place_formatted"`
			// Pointer fields so a feature without coordinates stays nil
			// instead of reading as a point at (0, 0).
			Coordinates struct {
				Longitude *float64 `json:"longitude"`
				Latitude  *float64 `json:"latitude"`
			} `json:"coordinates"`
			Context struct {
				Place struct {
					Name string `json:"name"`
				} `json:"place"`
				Region struct {
					RegionCode string `json:"region_code"`
				} `json:"region"`
				Postcode struct {
					Name string `json:"name"`
				} `json:"postcode"`
				Country struct {
					CountryCode string `json:"country_code"`
				} `json:"country"`
			} `json:"context"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *client) Forward(ctx context.Context, query string) (*Address, error) {
	if c.token == "" {
		return nil, eris.New("geocode: missing api token")
	}

	params := url.Values{
		"q":            {query},
		"access_token": {c.token},
		"types":        {"address"},
		"autocomplete": {"false"},
		"limit":        {strconv.Itoa(c.limit)},
	}
	if c.country != "" {
		params.Set("country", c.country)
	}

	reqURL := c.baseURL + "/forward?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var fwd forwardResponse
	if err := json.Unmarshal(body, &fwd); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(fwd.Features) == 0 {
		return nil, ErrNoMatch
	}

	props := fwd.Features[0].Properties
	addr := &Address{
		Line1:       props.Name,
		FullAddress: fullAddress(props.FullAddress, props.NamePreferred, props.PlaceFormatted, props.Name),
	}
	if v := props.Context.Place.Name; v != "" {
		addr.City = &v
	}
	if v := props.Context.Region.RegionCode; v != "" {
		addr.State = &v
	}
	if v := props.Context.Postcode.Name; v != "" {
		addr.PostalCode = &v
	}
	if v := props.Context.Country.CountryCode; v != "" {
		addr.CountryCode = &v
	}
	addr.Longitude = props.Coordinates.Longitude
	addr.Latitude = props.Coordinates.Latitude

	return addr, nil
}

// fullAddress picks the best display address the feature carries:
// full_address, then name_preferred + place_formatted, then the bare name.
func fullAddress(full, preferred, placeFormatted, name string) string {
	if full != "" {
		return full
	}
	if preferred != "" && placeFormatted != "" {
		return preferred + ", " + placeFormatted
	}
	if preferred != "" {
		return preferred
	}
	return name
}
