// internal/domain/shipping/service.go
package shipping

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrMethodNotFound is returned when a requested method id is not
// offered for the destination
var ErrMethodNotFound = errors.New("shipping method not available")

// Address is the destination used for rate lookups
type Address struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country" binding:"required"`
}

// Method represents an available shipping option with its cost
type Method struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Cost          int64  `json:"cost"` // Cost in cents
	EstimatedDays string `json:"estimated_days"`
	Provider      string `json:"provider"`
}

// Static fallback rates, used when Shippo is not configured or unreachable
const (
	freeShippingThreshold = 10000 // $100
	standardRate          = 599
	expressRate           = 1599
)

// Warehouse origin for rate lookups
var originAddress = Address{
	Name:       "Pasargad Prints",
	Street:     "2450 Industrial Way",
	City:       "Portland",
	State:      "OR",
	PostalCode: "97210",
	Country:    "US",
}

// Service resolves shipping methods for a destination and cart
type Service struct {
	shippo *ShippoClient
	config *config.Config
	logger *logrus.Logger
}

// NewService creates a new shipping service
func NewService(cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		shippo: NewShippoClient(cfg.External.Shippo.APIToken),
		config: cfg,
		logger: logger,
	}
}

// GetMethods returns the shipping options for a destination. Live Shippo
// rates are preferred; the static table is the fallback so checkout never
// blocks on the rates provider.
func (s *Service) GetMethods(ctx context.Context, to Address, weightGrams float64, subtotal int64) []Method {
	if s.shippo.IsConfigured() {
		methods, err := s.liveMethods(ctx, to, weightGrams)
		if err == nil {
			return methods
		}
		s.logger.WithError(err).WithField("country", to.Country).
			Warn("Shippo rate lookup failed, falling back to static rates")
	}

	return s.staticMethods(subtotal)
}

// GetMethod resolves a single method by id against the same lookup
func (s *Service) GetMethod(ctx context.Context, methodID string, to Address, weightGrams float64, subtotal int64) (*Method, error) {
	for _, m := range s.GetMethods(ctx, to, weightGrams, subtotal) {
		if m.ID == methodID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, methodID)
}

func (s *Service) liveMethods(ctx context.Context, to Address, weightGrams float64) ([]Method, error) {
	if weightGrams <= 0 {
		weightGrams = 100
	}

	rates, err := s.shippo.GetRates(ctx, originAddress, to, weightGrams)
	if err != nil {
		return nil, err
	}

	methods := make([]Method, 0, len(rates))
	for _, rate := range rates {
		amount, err := strconv.ParseFloat(rate.Amount, 64)
		if err != nil {
			continue
		}
		estimate := "varies"
		if rate.EstimatedDays > 0 {
			estimate = fmt.Sprintf("%d days", rate.EstimatedDays)
		}
		methods = append(methods, Method{
			ID:            rate.ObjectID,
			Name:          fmt.Sprintf("%s %s", rate.Provider, rate.ServiceLevel.Name),
			Cost:          int64(math.Round(amount * 100)),
			EstimatedDays: estimate,
			Provider:      rate.Provider,
		})
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable rates returned")
	}
	return methods, nil
}

func (s *Service) staticMethods(subtotal int64) []Method {
	standard := Method{
		ID:            "standard",
		Name:          "Standard Shipping",
		Description:   "Tracked ground shipping",
		Cost:          standardRate,
		EstimatedDays: "5-7 days",
		Provider:      "flat",
	}
	if subtotal >= freeShippingThreshold {
		standard.Cost = 0
		standard.Description = "Free standard shipping"
	}

	return []Method{
		standard,
		{
			ID:            "express",
			Name:          "Express Shipping",
			Description:   "Priority air shipping",
			Cost:          expressRate,
			EstimatedDays: "1-2 days",
			Provider:      "flat",
		},
	}
}
