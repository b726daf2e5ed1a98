package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"refundkeeper/native/lovelace"
)

const unitLovelace = "lovelace"

var errNotFound = errors.New("ledger: not found")

// ClientConfig configures the indexer client.
type ClientConfig struct {
	Endpoint          string
	ProjectID         string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Transport         http.RoundTripper
}

// Client resolves address totals against a Blockfrost-compatible indexer.
type Client struct {
	baseURL   string
	projectID string
	limiter   *rate.Limiter
	http      *http.Client
}

type amount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type addressTotal struct {
	Address     string   `json:"address"`
	ReceivedSum []amount `json:"received_sum"`
	TxCount     int      `json:"tx_count"`
}

type addressTransaction struct {
	TxHash string `json:"tx_hash"`
}

type txUTXOs struct {
	Hash   string `json:"hash"`
	Inputs []struct {
		Address string `json:"address"`
	} `json:"inputs"`
	Outputs []struct {
		Address     string `json:"address"`
		OutputIndex uint32 `json:"output_index"`
	} `json:"outputs"`
}

// NewClient constructs a rate limited indexer client.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("ledger: endpoint required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("ledger: parse endpoint: %w", err)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		baseURL:   endpoint,
		projectID: strings.TrimSpace(cfg.ProjectID),
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
	}, nil
}

// Lookup returns the lovelace received by paymentAddress and the address that
// funded it. An address the indexer has never seen reports zero payments.
func (c *Client) Lookup(ctx context.Context, paymentAddress string) (Totals, error) {
	address := strings.TrimSpace(paymentAddress)
	if address == "" {
		return Totals{}, fmt.Errorf("ledger: payment address required")
	}
	var total addressTotal
	err := c.get(ctx, "/addresses/"+url.PathEscape(address)+"/total", nil, &total)
	if errors.Is(err, errNotFound) {
		return Totals{}, nil
	}
	if err != nil {
		return Totals{}, err
	}
	received, err := lovelaceOf(total.ReceivedSum)
	if err != nil {
		return Totals{}, err
	}
	result := Totals{TotalPayments: received}
	if received == 0 {
		return result, nil
	}
	ret, err := c.returnAddress(ctx, address)
	if err != nil {
		return Totals{}, err
	}
	result.ReturnAddress = ret
	return result, nil
}

// returnAddress picks the first input of the earliest transaction paying the
// address. A nil result means the ledger could not attribute a sender.
func (c *Client) returnAddress(ctx context.Context, address string) (*ReturnAddress, error) {
	query := url.Values{}
	query.Set("order", "asc")
	query.Set("count", "1")
	var txs []addressTransaction
	if err := c.get(ctx, "/addresses/"+url.PathEscape(address)+"/transactions", query, &txs); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(txs) == 0 || strings.TrimSpace(txs[0].TxHash) == "" {
		return nil, nil
	}
	hash := strings.TrimSpace(txs[0].TxHash)
	var utxos txUTXOs
	if err := c.get(ctx, "/txs/"+url.PathEscape(hash)+"/utxos", nil, &utxos); err != nil {
		return nil, err
	}
	if len(utxos.Inputs) == 0 || strings.TrimSpace(utxos.Inputs[0].Address) == "" {
		return nil, nil
	}
	ret := &ReturnAddress{Address: strings.TrimSpace(utxos.Inputs[0].Address), TxHash: hash}
	for _, out := range utxos.Outputs {
		if out.Address == address {
			ret.OutputIndex = out.OutputIndex
			break
		}
	}
	return ret, nil
}

func lovelaceOf(amounts []amount) (lovelace.Lovelace, error) {
	for _, a := range amounts {
		if a.Unit != unitLovelace {
			continue
		}
		value, err := lovelace.Parse(a.Quantity)
		if err != nil {
			return 0, fmt.Errorf("ledger: %w", err)
		}
		return value, nil
	}
	return 0, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ledger: rate limit: %w", err)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("ledger: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.projectID != "" {
		req.Header.Set("project_id", c.projectID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("ledger: GET %s failed: status=%d body=%s", path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ledger: decode %s: %w", path, err)
	}
	return nil
}
