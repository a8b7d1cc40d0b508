// Package geocode resolves street addresses to coordinates at signup and
// profile-update time. Delivery logic only ever consumes the stored lat/lng.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Location struct {
	Lat   float64
	Lng   float64
	City  string
	State string
	Zip   string
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

func (c *Client) Geocode(ctx context.Context, address string) (*Location, error) {
	u := fmt.Sprintf("%s?address=%s&key=%s", c.BaseURL, url.QueryEscape(address), url.QueryEscape(c.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("geocode: returned %d: %s", resp.StatusCode, body)
	}

	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("geocode: decoding response: %w", err)
	}
	if out.Status != "OK" || len(out.Results) == 0 {
		return nil, fmt.Errorf("geocode: no result for %q (status %s)", address, out.Status)
	}

	r := out.Results[0]
	loc := &Location{
		Lat: r.Geometry.Location.Lat,
		Lng: r.Geometry.Location.Lng,
	}
	for _, comp := range r.AddressComponents {
		for _, typ := range comp.Types {
			switch typ {
			case "locality":
				loc.City = comp.LongName
			case "administrative_area_level_1":
				loc.State = comp.ShortName
			case "postal_code":
				loc.Zip = comp.LongName
			}
		}
	}
	return loc, nil
}
