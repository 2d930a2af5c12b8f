// SPDX-License-Identifier: MIT

// Package layout acquires the network layout document from an HTTPS
// endpoint or the local filesystem.
package layout

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ltnm/network-monitor/internal/log"
)

// maxLayoutBytes bounds the layout download; the full London layout is
// well under 2 MiB.
const maxLayoutBytes = 16 << 20

// Source describes where the layout comes from.
type Source struct {
	// URL is the HTTPS endpoint serving the layout JSON. Optional; when
	// empty the layout is read from Path.
	URL string
	// Path is the local layout file. When URL is set it doubles as the
	// cache target, letting the daemon start offline on later runs.
	Path string
	// CACertPath optionally points at a PEM bundle to trust instead of
	// the system roots.
	CACertPath string
	// Client overrides the HTTP client (tests). TLS settings from
	// CACertPath are only applied to the default client.
	Client *http.Client
	// Timeout bounds the fetch; defaults to 30s.
	Timeout time.Duration
}

// Load returns the layout document. A fetched document is validated as
// JSON and cached atomically to Path before being returned. When the
// fetch fails and a cached copy exists, the cache is used.
func Load(ctx context.Context, src Source) ([]byte, error) {
	logger := log.WithComponent("layout")

	if src.URL == "" {
		return readFile(src.Path)
	}

	data, err := fetch(ctx, src)
	if err != nil {
		if src.Path != "" {
			if cached, readErr := readFile(src.Path); readErr == nil {
				logger.Warn().
					Err(err).
					Str("event", "layout.fetch_failed").
					Str("cache", src.Path).
					Msg("layout fetch failed, using cached copy")
				return cached, nil
			}
		}
		return nil, err
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("layout from %s is not valid JSON", src.URL)
	}

	if src.Path != "" {
		if err := renameio.WriteFile(src.Path, data, 0o644); err != nil {
			// A stale cache is worse than none, but a failed cache write
			// must not take the daemon down.
			logger.Warn().
				Err(err).
				Str("event", "layout.cache_write_failed").
				Str("cache", src.Path).
				Msg("failed to cache layout")
		}
	}

	logger.Info().
		Str("event", "layout.fetched").
		Str("url", src.URL).
		Int("bytes", len(data)).
		Msg("network layout fetched")
	return data, nil
}

func fetch(ctx context.Context, src Source) ([]byte, error) {
	client := src.Client
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if src.CACertPath != "" {
			pool, err := loadCertPool(src.CACertPath)
			if err != nil {
				return nil, err
			}
			transport.TLSClientConfig = &tls.Config{
				RootCAs:    pool,
				MinVersion: tls.VersionTLS12,
			}
		}
		client = &http.Client{Transport: transport}
	}

	timeout := src.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build layout request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch layout: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch layout: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLayoutBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read layout body: %w", err)
	}
	if len(data) > maxLayoutBytes {
		return nil, fmt.Errorf("layout exceeds %d bytes", maxLayoutBytes)
	}
	return data, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

func readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("no layout source configured")
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read layout file: %w", err)
	}
	return data, nil
}
