package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrPaymentNotFound = errors.New("payment not found at provider")

// MercadoPagoClient talks to the Mercado Pago payments API.
type MercadoPagoClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewMercadoPagoClient(baseURL, token string) *MercadoPagoClient {
	if baseURL == "" {
		baseURL = "https://api.mercadopago.com"
	}
	return &MercadoPagoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (ProviderPayment, error) {
	if c.token == "" {
		return ProviderPayment{}, errors.New("mercado pago access token not configured")
	}
	url := c.baseURL + "/v1/payments/" + paymentID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProviderPayment{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return ProviderPayment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ProviderPayment{}, ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ProviderPayment{}, fmt.Errorf("mercado pago returned status %d", resp.StatusCode)
	}

	var body struct {
		ID                json.Number    `json:"id"`
		Status            string         `json:"status"`
		StatusDetail      string         `json:"status_detail"`
		ExternalReference string         `json:"external_reference"`
		PaymentMethodID   string         `json:"payment_method_id"`
		PaymentTypeID     string         `json:"payment_type_id"`
		Metadata          map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return ProviderPayment{}, err
	}
	return ProviderPayment{
		ID:                body.ID.String(),
		Status:            body.Status,
		StatusDetail:      body.StatusDetail,
		ExternalReference: body.ExternalReference,
		PaymentMethodID:   body.PaymentMethodID,
		PaymentTypeID:     body.PaymentTypeID,
		Metadata:          body.Metadata,
	}, nil
}
