package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasargadprints/ecommerce-backend/internal/config"
)

func newTestService(shippoToken string) *Service {
	cfg := &config.Config{}
	cfg.External.Shippo.APIToken = shippoToken
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewService(cfg, log)
}

func TestStaticMethods_FreeShippingThreshold(t *testing.T) {
	svc := newTestService("")
	ctx := context.Background()
	dest := Address{Country: "US"}

	methods := svc.GetMethods(ctx, dest, 500, 4500)
	require.Len(t, methods, 2)
	assert.Equal(t, "standard", methods[0].ID)
	assert.Equal(t, int64(standardRate), methods[0].Cost)
	assert.Equal(t, int64(expressRate), methods[1].Cost)

	methods = svc.GetMethods(ctx, dest, 500, freeShippingThreshold)
	assert.Equal(t, int64(0), methods[0].Cost)
	// Express is never free
	assert.Equal(t, int64(expressRate), methods[1].Cost)
}

func TestGetMethod_UnknownID(t *testing.T) {
	svc := newTestService("")

	_, err := svc.GetMethod(context.Background(), "overnight", Address{Country: "US"}, 500, 1000)
	assert.Error(t, err)
}

func TestLiveRates_FromShippo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments/", r.URL.Path)
		assert.Equal(t, "ShippoToken test-token", r.Header.Get("Authorization"))

		var req shippoShipmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Async)
		assert.Equal(t, "US", req.AddressTo.Country)

		json.NewEncoder(w).Encode(shippoShipmentResponse{
			ObjectID: "ship_1",
			Status:   "SUCCESS",
			Rates: []shippoRate{
				{
					ObjectID:      "rate_a",
					Amount:        "7.25",
					Currency:      "USD",
					Provider:      "USPS",
					EstimatedDays: 3,
				},
			},
		})
	}))
	defer server.Close()

	svc := newTestService("test-token")
	svc.shippo.baseURL = server.URL

	methods := svc.GetMethods(context.Background(), Address{Country: "US"}, 250, 1000)
	require.Len(t, methods, 1)
	assert.Equal(t, "rate_a", methods[0].ID)
	assert.Equal(t, int64(725), methods[0].Cost)
	assert.Equal(t, "3 days", methods[0].EstimatedDays)
}

func TestLiveRates_FallbackOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	svc := newTestService("bad-token")
	svc.shippo.baseURL = server.URL

	methods := svc.GetMethods(context.Background(), Address{Country: "US"}, 250, 1000)
	require.Len(t, methods, 2)
	assert.Equal(t, "standard", methods[0].ID)
}
