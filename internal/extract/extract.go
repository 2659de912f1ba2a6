// Package extract contains strategies which turn a video page link into media.
package extract

import (
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

// Media is a file downloaded by engine into scratch folder.
type Media struct {
	ID   string
	Ext  string
	Path string
	Size int64 // in bytes
}

// NewHTTPClient creates client for third party APIs.
// It has no overall timeout, every request carries its own deadline in context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}
}

func closeBody(res *http.Response) {
	// Drain, so connection can be reused.
	_, _ = io.Copy(io.Discard, res.Body)
	if err := res.Body.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close response body")
	}
}
