package address

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

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://viacep.com.br"
	defaultTimeout = 5 * time.Second
)

var (
	ErrLookupNotFound  = errors.New("postal code not found")
	ErrLookupTransport = errors.New("postal code lookup failed")
	ErrInvalidCode     = errors.New("postal code must have 8 digits")
)

// Address is what a postal code resolves to.
type Address struct {
	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

type viaCEPResponse struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	Erro        any    `json:"erro"`
}

// Client resolves Brazilian postal codes against a ViaCEP compatible API.
// Each Resolve is a single request: no retries, no caching.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Resolve looks up an 8 digit postal code. Unknown codes return
// ErrLookupNotFound; anything that prevents a usable answer wraps
// ErrLookupTransport.
func (c *Client) Resolve(ctx context.Context, postalCode string) (Address, error) {
	if len(postalCode) != 8 || strings.Trim(postalCode, "0123456789") != "" {
		return Address{}, ErrInvalidCode
	}

	endpoint := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, url.PathEscape(postalCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Address{}, fmt.Errorf("%w: build request: %v", ErrLookupTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrLookupTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Address{}, fmt.Errorf("%w: read response: %v", ErrLookupTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Address{}, ErrLookupNotFound
	case resp.StatusCode == http.StatusBadRequest:
		// ViaCEP answers 400 for well formed but nonexistent ranges
		return Address{}, ErrLookupNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("address lookup non-2xx response",
			zap.Int("status", resp.StatusCode), zap.String("body", msg))
		return Address{}, fmt.Errorf("%w: status %d", ErrLookupTransport, resp.StatusCode)
	}

	var payload viaCEPResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Address{}, fmt.Errorf("%w: decode response: %v", ErrLookupTransport, err)
	}
	if isTruthy(payload.Erro) {
		return Address{}, ErrLookupNotFound
	}

	return Address{
		PostalCode:   postalCode,
		Street:       payload.Logradouro,
		Complement:   payload.Complemento,
		Neighborhood: payload.Bairro,
		City:         payload.Localidade,
		State:        payload.UF,
	}, nil
}

// isTruthy accepts both `"erro": true` and the older `"erro": "true"`.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}
