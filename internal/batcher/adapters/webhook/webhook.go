// Package webhook adapts outbound webhook delivery into a
// batcher.Processor: each item in a batch is POSTed to its target URL
// concurrently, authenticated with a client-credentials bearer token
// shared across the whole batch, and its body snappy-compressed when the
// adapter is configured with CompressBody.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/golang/snappy"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/FairForge/batchd/internal/batcher"
)

// Delivery is one webhook call to make.
type Delivery struct {
	URL         string
	Body        []byte
	ContentType string
}

// Receipt reports the delivered call's outcome.
type Receipt struct {
	StatusCode int
	Compressed bool
}

// Config configures the OAuth2 client-credentials flow used to
// authenticate every delivery, and a toggle for snappy compression.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// CompressBody enables snappy-compressing the request body and
	// setting Content-Encoding: snappy.
	CompressBody bool
}

// Adapter is a batcher.Processor[Delivery, Receipt] that delivers every
// item in a batch concurrently over one shared, token-caching HTTP
// client.
type Adapter struct {
	client   *http.Client
	compress bool
}

// New builds an Adapter. Its *http.Client is an
// oauth2.Transport-wrapped client that fetches and caches its bearer
// token automatically, refreshing it once it expires.
func New(cfg Config) *Adapter {
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &Adapter{
		client:   ccCfg.Client(context.Background()),
		compress: cfg.CompressBody,
	}
}

// Process implements the batcher.Processor contract: every delivery in
// the batch is sent concurrently; the batch itself never fails, only
// individual deliveries do.
func (a *Adapter) Process(ctx context.Context, deliveries []Delivery) ([]batcher.Result[Receipt], error) {
	results := make([]batcher.Result[Receipt], len(deliveries))

	type outcome struct {
		idx int
		res Receipt
		err error
	}

	done := make(chan outcome, len(deliveries))
	for i, d := range deliveries {
		go func(i int, d Delivery) {
			res, err := a.deliverOne(ctx, d)
			done <- outcome{idx: i, res: res, err: err}
		}(i, d)
	}

	for range deliveries {
		o := <-done
		if o.err != nil {
			results[o.idx] = batcher.Result[Receipt]{Err: o.err}
			continue
		}
		results[o.idx] = batcher.Result[Receipt]{Value: o.res}
	}

	return results, nil
}

func (a *Adapter) deliverOne(ctx context.Context, d Delivery) (Receipt, error) {
	body := d.Body
	compressed := false
	if a.compress {
		body = snappy.Encode(nil, d.Body)
		compressed = true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("webhook: build request: %w", err)
	}
	if d.ContentType != "" {
		req.Header.Set("Content-Type", d.ContentType)
	}
	if compressed {
		req.Header.Set("Content-Encoding", "snappy")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("webhook: deliver %s: %w", d.URL, err)
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return Receipt{}, fmt.Errorf("webhook: %s responded with status %d", d.URL, resp.StatusCode)
	}

	return Receipt{StatusCode: resp.StatusCode, Compressed: compressed}, nil
}
