// internal/domain/payment/stripe_client.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeClient is an HTTP client for the Stripe checkout API
type StripeClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewStripeClient creates a Stripe API client
func NewStripeClient(secretKey string) *StripeClient {
	return NewStripeClientWithBaseURL(secretKey, stripeBaseURL)
}

// NewStripeClientWithBaseURL creates a client against a non-default API
// host, used with stub servers in tests.
func NewStripeClientWithBaseURL(secretKey, baseURL string) *StripeClient {
	return &StripeClient{
		secretKey: secretKey,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CheckoutLineItem is one line on the hosted checkout page
type CheckoutLineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int
}

// CheckoutSessionParams describes the hosted session to create
type CheckoutSessionParams struct {
	LineItems      []CheckoutLineItem
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	DiscountAmount int64 // Applied as a one-off coupon when > 0
	ClientRef      string
}

// CheckoutSession is the subset of the Stripe session object we consume
type CheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"` // paid, unpaid, no_payment_required
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"` // open, complete, expired
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email"`
}

type stripeCoupon struct {
	ID string `json:"id"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession creates a hosted checkout session
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	if params.ClientRef != "" {
		form.Set("client_reference_id", params.ClientRef)
	}

	currency := strings.ToLower(params.Currency)
	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
	}

	if params.DiscountAmount > 0 {
		coupon, err := c.createOneOffCoupon(ctx, params.DiscountAmount, currency)
		if err != nil {
			return nil, err
		}
		form.Set("discounts[0][coupon]", coupon.ID)
	}

	var session CheckoutSession
	if err := c.call(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid
func (c *StripeClient) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodPost, "/checkout/sessions/"+url.PathEscape(sessionID)+"/expire", url.Values{}, nil)
}

// GetCheckoutSession fetches a session by id
func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.call(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *StripeClient) createOneOffCoupon(ctx context.Context, amountOff int64, currency string) (*stripeCoupon, error) {
	form := url.Values{}
	form.Set("amount_off", strconv.FormatInt(amountOff, 10))
	form.Set("currency", currency)
	form.Set("duration", "once")
	form.Set("max_redemptions", "1")

	var coupon stripeCoupon
	if err := c.call(ctx, http.MethodPost, "/coupons", form, &coupon); err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (c *StripeClient) call(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr stripeErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe API error %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe API error %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode stripe response: %w", err)
		}
	}
	return nil
}
