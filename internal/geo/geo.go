// Package geo implements the reverse-geocode collaborator against a
// Nominatim-compatible endpoint. Lookups carry a short timeout and a
// failure returns an empty address rather than an error the import pipeline
// would have to unwind.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const lookupTimeout = 4 * time.Second

// Address is the reverse-geocoded street address for a coordinate pair.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Postal  string `json:"postal"`
}

// Empty reports whether the lookup produced nothing usable.
func (a Address) Empty() bool {
	return a == Address{}
}

// Client queries a Nominatim-style /reverse endpoint.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{base: base, http: &http.Client{Timeout: lookupTimeout}}
}

type reverseResponse struct {
	Address struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Country     string `json:"country"`
		Postcode    string `json:"postcode"`
	} `json:"address"`
}

// ReverseGeocode resolves a coordinate pair to address parts.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon string) (Address, error) {
	if c == nil || c.base == "" {
		return Address{}, nil
	}
	query := url.Values{}
	query.Set("lat", lat)
	query.Set("lon", lon)
	query.Set("format", "jsonv2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return Address{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Address{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Address{}, fmt.Errorf("reverse geocode: unexpected status %d", resp.StatusCode)
	}
	var decoded reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Address{}, err
	}

	addr := Address{
		Street:  decoded.Address.Road,
		City:    decoded.Address.City,
		Region:  decoded.Address.State,
		Country: decoded.Address.Country,
		Postal:  decoded.Address.Postcode,
	}
	if decoded.Address.HouseNumber != "" && addr.Street != "" {
		addr.Street = decoded.Address.HouseNumber + " " + addr.Street
	}
	if addr.City == "" {
		addr.City = decoded.Address.Town
	}
	if addr.City == "" {
		addr.City = decoded.Address.Village
	}
	return addr, nil
}
