package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// BatchStatus is the bank's answer to a batch status query. StateCode is
// nil when the payload omits the requisition state.
type BatchStatus struct {
	StateCode   *int
	ValidCount  int
	ValidAmount float64
	Items       []BatchItemStatus
}

// BatchItemStatus is one item entry inside a batch status response.
type BatchItemStatus struct {
	PaymentIdentifier string
	State             string
}

// ItemStatus is the bank's answer to an individual payment status query.
type ItemStatus struct {
	State  string
	PaidAt *time.Time
}

type batchStatusResponse struct {
	BatchRequestState *int                   `json:"estadoRequisicao"`
	ValidCount        int                    `json:"quantidadeLancamentosValidos"`
	ValidAmount       float64                `json:"valorLancamentosValidos"`
	Items             []batchItemStatusEntry `json:"lancamentos"`
}

type batchItemStatusEntry struct {
	PaymentIdentifier string `json:"identificadorPagamento"`
	State             string `json:"estadoPagamento"`
}

type itemStatusResponse struct {
	State  string  `json:"estadoPagamento"`
	PaidAt *string `json:"dataPagamento"`
}

// Client talks to the bank's batch-payment status APIs. The token source is
// a field of the client constructed once at startup; oauth2 caches and
// refreshes the token under its TTL.
type Client struct {
	baseURL     string
	appKey      string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

func NewClient(baseURL, tokenURL, clientID, clientSecret, appKey string) *Client {
	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &Client{
		baseURL: baseURL,
		appKey:  appKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokenSource: creds.TokenSource(context.Background()),
	}
}

// QueryBatchStatus fetches the current requisition state of a batch.
func (c *Client) QueryBatchStatus(ctx context.Context, batchRequestNumber, accountID string) (*BatchStatus, error) {
	endpoint := fmt.Sprintf("%s/lotes-pagamentos/%s/solicitacao", c.baseURL, url.PathEscape(batchRequestNumber))

	var payload batchStatusResponse
	if err := c.get(ctx, endpoint, accountID, &payload); err != nil {
		return nil, fmt.Errorf("failed to query batch status: %w", err)
	}

	status := &BatchStatus{
		StateCode:   payload.BatchRequestState,
		ValidCount:  payload.ValidCount,
		ValidAmount: payload.ValidAmount,
	}
	for _, entry := range payload.Items {
		status.Items = append(status.Items, BatchItemStatus{
			PaymentIdentifier: entry.PaymentIdentifier,
			State:             entry.State,
		})
	}
	return status, nil
}

// QueryItemStatus fetches the individual state of one payment.
func (c *Client) QueryItemStatus(ctx context.Context, paymentIdentifier, accountID string) (*ItemStatus, error) {
	endpoint := fmt.Sprintf("%s/pagamentos/%s", c.baseURL, url.PathEscape(paymentIdentifier))

	var payload itemStatusResponse
	if err := c.get(ctx, endpoint, accountID, &payload); err != nil {
		return nil, fmt.Errorf("failed to query item status: %w", err)
	}

	status := &ItemStatus{State: payload.State}
	if payload.PaidAt != nil && *payload.PaidAt != "" {
		if paidAt, err := time.Parse("2006-01-02", *payload.PaidAt); err == nil {
			status.PaidAt = &paidAt
		}
	}
	return status, nil
}

func (c *Client) get(ctx context.Context, endpoint, accountID string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if c.appKey != "" {
		req.Header.Set("gw-dev-app-key", c.appKey)
	}
	if accountID != "" {
		req.Header.Set("x-account-id", accountID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bank API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
