// Package basisregisters geocodes Flemish addresses and retrieves building
// outlines with the Basisregisters Vlaanderen API. Coordinates are in
// Belgian Lambert 72.
package basisregisters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/twpayne/go-chm"
)

const DefaultBaseURL = "https://api.basisregisters.vlaanderen.be/v1"

var (
	ErrAddressNotFound = errors.New("address not found")
	ErrNoBuilding      = errors.New("no building at address")
)

// A Client is a Basisregisters Vlaanderen API client. It implements
// chm.Geocoder.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// An Option sets an option on a Client.
type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient returns a new Client.
func NewClient(options ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

type addressMatchResponse struct {
	AddressMatches []struct {
		AddressPosition struct {
			Point struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"point"`
		} `json:"adresPositie"`
		AddressableObjects []struct {
			ObjectType string `json:"objectType"`
			Detail     string `json:"detail"`
		} `json:"adresseerbareObjecten"`
	} `json:"adresMatches"`
	Warnings []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"warnings"`
}

type buildingUnitResponse struct {
	Building struct {
		Detail string `json:"detail"`
	} `json:"gebouw"`
}

type buildingResponse struct {
	GeometryPolygon struct {
		Polygon json.RawMessage `json:"polygon"`
	} `json:"geometriePolygoon"`
}

// Geocode returns the position of address and the outline of the building
// of its first addressable object.
func (c *Client) Geocode(ctx context.Context, address chm.Address) (*chm.Location, error) {
	query := url.Values{
		"straatnaam":   []string{address.Street},
		"huisnummer":   []string{address.Number},
		"postcode":     []string{address.PostalCode},
		"gemeentenaam": []string{address.Town},
	}
	var addressMatch addressMatchResponse
	if err := c.getJSON(ctx, c.baseURL+"/adresmatch?"+query.Encode(), &addressMatch); err != nil {
		return nil, err
	}
	for _, warning := range addressMatch.Warnings {
		// Unknown street names and towns are reported as warnings such as
		// "Onbekende straatnaam".
		if strings.Contains(strings.ToLower(warning.Message), "onbekende") {
			return nil, fmt.Errorf("%w: %s", ErrAddressNotFound, warning.Message)
		}
	}
	if len(addressMatch.AddressMatches) == 0 {
		return nil, ErrAddressNotFound
	}
	match := addressMatch.AddressMatches[0]
	coordinates := match.AddressPosition.Point.Coordinates
	if len(coordinates) < 2 {
		return nil, fmt.Errorf("%w: no position", ErrAddressNotFound)
	}
	point := orb.Point{coordinates[0], coordinates[1]}

	if len(match.AddressableObjects) == 0 {
		return nil, ErrNoBuilding
	}
	var buildingUnit buildingUnitResponse
	if err := c.getJSON(ctx, match.AddressableObjects[0].Detail, &buildingUnit); err != nil {
		return nil, err
	}
	if buildingUnit.Building.Detail == "" {
		return nil, ErrNoBuilding
	}

	var building buildingResponse
	if err := c.getJSON(ctx, buildingUnit.Building.Detail, &building); err != nil {
		return nil, err
	}
	footprint, err := decodePolygon(building.GeometryPolygon.Polygon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", buildingUnit.Building.Detail, err)
	}

	return &chm.Location{
		Point:     point,
		Footprint: footprint,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, value any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %s", rawURL, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(value); err != nil {
		return fmt.Errorf("%s: %w", rawURL, err)
	}
	return nil
}

// decodePolygon decodes a GeoJSON polygon.
func decodePolygon(data []byte) (orb.Polygon, error) {
	if len(data) == 0 {
		return nil, ErrNoBuilding
	}
	geometry, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	switch g := geometry.Geometry().(type) {
	case orb.Polygon:
		return g, nil
	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, ErrNoBuilding
		}
		return g[0], nil
	default:
		return nil, fmt.Errorf("%s: unsupported geometry type", geometry.Type)
	}
}
