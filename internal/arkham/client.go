package arkham

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Arkham Intelligence transfer API client. Fetches and paginates raw
// transfer records and maps them onto models.Transfer. This is the
// ingestion collaborator: the detection engine itself never performs
// network I/O and never sees this package.

const (
	defaultBaseURL  = "https://api.arkm.com"
	pageSize        = 100
	requestTimeout  = 30 * time.Second
	rateLimitDelay  = 1100 * time.Millisecond // The transfers endpoint allows ~1 req/s
	maxRetryBackoff = 60 * time.Second
)

type Config struct {
	APIKey  string
	BaseURL string // Defaults to the public API host
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("arkham: API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}, nil
}

// rawTransfer mirrors the provider's transfer record.
type rawTransfer struct {
	ID             string  `json:"id"`
	TxHash         string  `json:"transactionHash"`
	FromAddress    addr    `json:"fromAddress"`
	ToAddress      addr    `json:"toAddress"`
	TokenSymbol    string  `json:"tokenSymbol"`
	Chain          string  `json:"chain"`
	UnitValue      float64 `json:"unitValue"`
	HistoricalUSD  float64 `json:"historicalUSD"`
	BlockTimestamp string  `json:"blockTimestamp"` // RFC3339
}

type addr struct {
	Address string `json:"address"`
}

type transfersResponse struct {
	Transfers []rawTransfer `json:"transfers"`
	Count     int           `json:"count"`
}

// TransferQuery narrows which transfers are fetched.
type TransferQuery struct {
	Chains   string // e.g. "solana", "ethereum"
	Tokens   string // Token address or id
	TimeLast string // Relative range, e.g. "7d", "30d"
	USDGte   float64
	MaxTotal int // Cap on fetched records; 0 = provider default of 5000
}

// FetchTransfers pages through /transfers until the query is exhausted
// or MaxTotal is reached, returning normalized records ready for the
// engine. Retries with backoff on 429.
func (c *Client) FetchTransfers(ctx context.Context, q TransferQuery) ([]models.Transfer, error) {
	maxTotal := q.MaxTotal
	if maxTotal <= 0 {
		maxTotal = 5000
	}

	var out []models.Transfer
	offset := 0
	for len(out) < maxTotal {
		page, err := c.fetchPage(ctx, q, offset)
		if err != nil {
			return out, err
		}
		if len(page.Transfers) == 0 {
			break
		}

		for _, raw := range page.Transfers {
			t, err := raw.toModel()
			if err != nil {
				log.Printf("Warning: skipping malformed provider record %s: %v", raw.ID, err)
				continue
			}
			out = append(out, t)
		}

		if len(page.Transfers) < pageSize {
			break // Last page
		}
		offset += pageSize

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(rateLimitDelay):
		}
	}
	if len(out) > maxTotal {
		out = out[:maxTotal]
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, q TransferQuery, offset int) (*transfersResponse, error) {
	params := url.Values{}
	params.Set("chains", q.Chains)
	if q.Tokens != "" {
		params.Set("tokens", q.Tokens)
	}
	if q.TimeLast != "" {
		params.Set("timeLast", q.TimeLast)
	}
	if q.USDGte > 0 {
		params.Set("usdGte", strconv.FormatFloat(q.USDGte, 'f', -1, 64))
	}
	params.Set("sortKey", "time")
	params.Set("sortDir", "desc")
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("offset", strconv.Itoa(offset))

	backoff := 2 * time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transfers?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("API-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("arkham: request failed: %v", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("arkham: reading response: %v", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var page transfersResponse
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, fmt.Errorf("arkham: decoding response: %v", err)
			}
			return &page, nil

		case http.StatusTooManyRequests:
			log.Printf("Rate limited by provider, backing off %s", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}

		case http.StatusUnauthorized:
			return nil, fmt.Errorf("arkham: unauthorized, check API key")

		default:
			return nil, fmt.Errorf("arkham: unexpected status %d: %s", resp.StatusCode, string(body))
		}
	}
}

func (r rawTransfer) toModel() (models.Transfer, error) {
	ts, err := time.Parse(time.RFC3339, r.BlockTimestamp)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("bad blockTimestamp %q: %v", r.BlockTimestamp, err)
	}
	id := r.ID
	if id == "" {
		id = r.TxHash
	}
	return models.Transfer{
		ID:          id,
		FromAddress: r.FromAddress.Address,
		ToAddress:   r.ToAddress.Address,
		Token:       r.TokenSymbol,
		Chain:       r.Chain,
		Amount:      r.UnitValue,
		USDValue:    r.HistoricalUSD,
		Timestamp:   ts,
	}, nil
}
