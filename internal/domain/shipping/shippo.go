// internal/domain/shipping/shippo.go
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const shippoBaseURL = "https://api.goshippo.com"

// ShippoClient is a minimal HTTP client for the Goshippo rates API
type ShippoClient struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// NewShippoClient creates a Shippo API client
func NewShippoClient(apiToken string) *ShippoClient {
	return &ShippoClient{
		apiToken: apiToken,
		baseURL:  shippoBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsConfigured reports whether an API token is present
func (c *ShippoClient) IsConfigured() bool {
	return c.apiToken != ""
}

// shippoAddress is the address shape the Shippo API expects
type shippoAddress struct {
	Name    string `json:"name"`
	Street1 string `json:"street1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type shippoParcel struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

type shippoShipmentRequest struct {
	AddressFrom shippoAddress  `json:"address_from"`
	AddressTo   shippoAddress  `json:"address_to"`
	Parcels     []shippoParcel `json:"parcels"`
	Async       bool           `json:"async"`
}

type shippoRate struct {
	ObjectID     string `json:"object_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Provider     string `json:"provider"`
	ServiceLevel struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	} `json:"servicelevel"`
	EstimatedDays int `json:"estimated_days"`
}

type shippoShipmentResponse struct {
	ObjectID string       `json:"object_id"`
	Status   string       `json:"status"`
	Rates    []shippoRate `json:"rates"`
}

// GetRates creates a synchronous shipment on Shippo and returns its rates
func (c *ShippoClient) GetRates(ctx context.Context, from, to Address, weightGrams float64) ([]shippoRate, error) {
	reqBody := shippoShipmentRequest{
		AddressFrom: toShippoAddress(from),
		AddressTo:   toShippoAddress(to),
		Parcels: []shippoParcel{{
			Length:       "20",
			Width:        "20",
			Height:       "10",
			DistanceUnit: "cm",
			Weight:       fmt.Sprintf("%.0f", weightGrams),
			MassUnit:     "g",
		}},
		Async: false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shipment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "ShippoToken "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shippo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read shippo response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("shippo API error %d: %s", resp.StatusCode, string(body))
	}

	var shipment shippoShipmentResponse
	if err := json.Unmarshal(body, &shipment); err != nil {
		return nil, fmt.Errorf("failed to decode shippo response: %w", err)
	}

	if len(shipment.Rates) == 0 {
		return nil, fmt.Errorf("shippo returned no rates for shipment %s", shipment.ObjectID)
	}

	return shipment.Rates, nil
}

func toShippoAddress(a Address) shippoAddress {
	return shippoAddress{
		Name:    a.Name,
		Street1: a.Street,
		City:    a.City,
		State:   a.State,
		Zip:     a.PostalCode,
		Country: a.Country,
	}
}
