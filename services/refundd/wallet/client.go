package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"refundkeeper/native/lovelace"
)

const unitLovelace = "lovelace"

// ClientConfig configures the cardano-wallet REST client.
type ClientConfig struct {
	Endpoint  string
	WalletID  string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client talks to a cardano-wallet server over its v2 REST API.
type Client struct {
	baseURL  string
	walletID string
	http     *http.Client
}

// APIError is returned when the wallet server answers with a non-success status.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("wallet: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("wallet: status %d: %s: %s", e.Status, e.Code, e.Message)
}

type quantity struct {
	Quantity int64  `json:"quantity"`
	Unit     string `json:"unit"`
}

type walletResponse struct {
	ID      string `json:"id"`
	Balance struct {
		Available quantity `json:"available"`
		Total     quantity `json:"total"`
	} `json:"balance"`
}

type paymentRequest struct {
	Passphrase string          `json:"passphrase"`
	Payments   []paymentOutput `json:"payments"`
}

type paymentOutput struct {
	Address string   `json:"address"`
	Amount  quantity `json:"amount"`
}

type paymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// NewClient constructs a wallet client for the configured wallet id.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("wallet: endpoint required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("wallet: parse endpoint: %w", err)
	}
	walletID := strings.TrimSpace(cfg.WalletID)
	if walletID == "" {
		return nil, fmt.Errorf("wallet: wallet id required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		baseURL:  endpoint,
		walletID: walletID,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
	}, nil
}

// Balance fetches the wallet's current balances.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	var resp walletResponse
	if err := c.do(ctx, http.MethodGet, c.walletPath(""), nil, &resp); err != nil {
		return Balance{}, err
	}
	return Balance{
		Available: lovelace.Lovelace(resp.Balance.Available.Quantity),
		Total:     lovelace.Lovelace(resp.Balance.Total.Quantity),
	}, nil
}

// AvailableBalance returns the funds the wallet can spend right now.
func (c *Client) AvailableBalance(ctx context.Context) (lovelace.Lovelace, error) {
	balance, err := c.Balance(ctx)
	return balance.Available, err
}

// TotalBalance returns the wallet's total funds, including pending change.
func (c *Client) TotalBalance(ctx context.Context) (lovelace.Lovelace, error) {
	balance, err := c.Balance(ctx)
	return balance.Total, err
}

// SendPayment submits a single transaction carrying every output in order.
// Input selection and fees are left to the wallet.
func (c *Client) SendPayment(ctx context.Context, passphrase string, outputs []Output) (Payment, error) {
	if len(outputs) == 0 {
		return Payment{}, fmt.Errorf("wallet: at least one output required")
	}
	body := paymentRequest{Passphrase: passphrase, Payments: make([]paymentOutput, 0, len(outputs))}
	for _, out := range outputs {
		body.Payments = append(body.Payments, paymentOutput{
			Address: out.Address,
			Amount:  quantity{Quantity: out.Amount.Int64(), Unit: unitLovelace},
		})
	}
	var resp paymentResponse
	if err := c.do(ctx, http.MethodPost, c.walletPath("/transactions"), body, &resp); err != nil {
		return Payment{}, err
	}
	return Payment{ID: strings.TrimSpace(resp.ID)}, nil
}

func (c *Client) walletPath(suffix string) string {
	return c.baseURL + "/v2/wallets/" + url.PathEscape(c.walletID) + suffix
}

func (c *Client) do(ctx context.Context, method, target string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("wallet: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("wallet: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wallet: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(payload, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wallet: decode response: %w", err)
	}
	return nil
}
