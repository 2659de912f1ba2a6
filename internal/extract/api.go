package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

const (
	DefaultAPIEndpoint = "https://api.tiklydown.eu.org/api/download"

	DefaultMetaTimeout  = 30 * time.Second
	DefaultMediaTimeout = 60 * time.Second
)

// API resolves no-watermark media through third party HTTP API.
type API struct {
	client       *http.Client
	endpoint     string
	metaTimeout  time.Duration
	mediaTimeout time.Duration
}

func NewAPI(endpoint string, client *http.Client) *API {
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &API{
		client:       client,
		endpoint:     endpoint,
		metaTimeout:  DefaultMetaTimeout,
		mediaTimeout: DefaultMediaTimeout,
	}
}

type apiRequest struct {
	URL string `json:"url"`
}

type apiResponse struct {
	Video struct {
		NoWatermark string `json:"noWatermark"`
	} `json:"video"`
}

// Fetch returns raw media bytes. Size policy is up to the caller.
func (a *API) Fetch(ctx context.Context, uri string) ([]byte, error) {
	mediaURL, err := a.resolve(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media url: %w", err)
	}
	data, err := a.download(ctx, mediaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

func (a *API) resolve(ctx context.Context, uri string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.metaTimeout)
	defer cancel()

	body, err := json.Marshal(apiRequest{URL: uri})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := a.do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(res)

	data := &apiResponse{}
	if err = json.NewDecoder(res.Body).Decode(data); err != nil {
		return "", fmt.Errorf("failed to decode response: %v: %w", err, types.ErrNoResult)
	}
	if data.Video.NoWatermark == "" {
		return "", fmt.Errorf("response has no media url: %w", types.ErrNoResult)
	}
	return data.Video.NoWatermark, nil
}

func (a *API) download(ctx context.Context, mediaURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.mediaTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	res, err := a.do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(res)

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// do returns response only with 200 status code.
func (a *API) do(req *http.Request) (*http.Response, error) {
	res, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to do http request: %w", err)
	}
	switch res.StatusCode {
	case http.StatusOK:
		return res, nil
	case http.StatusNotFound:
		closeBody(res)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), types.ErrNotFound)
	default:
		closeBody(res)
		return nil, fmt.Errorf("%s %s: unexpected status %d: %w",
			req.Method, req.URL.Redacted(), res.StatusCode, ErrUnexpectedStatus)
	}
}
