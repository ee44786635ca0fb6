package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"shuttle/internal/manifest"
	"shuttle/internal/token"
)

// HTTPTransport uploads assets through the create-asset HTTP endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport returns a transport for endpoint. requestTimeout bounds
// the whole request independently of the per-upload deadline the worker
// already applies through ctx.
func NewHTTPTransport(endpoint string, requestTimeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// createRequest is the wire shape of an upload: the asset payload plus the
// authorization token and the file location the endpoint ingests from.
type createRequest struct {
	manifest.Payload
	AssetPath      string `json:"assetPath"`
	RecaptchaToken string `json:"recaptchaToken"`
}

func (t *HTTPTransport) Upload(ctx context.Context, shaped manifest.Shaped, tok token.Token) (Result, error) {
	start := time.Now()

	body, err := json.Marshal(createRequest{
		Payload:        shaped.Payload,
		AssetPath:      shaped.FilePath,
		RecaptchaToken: tok.Value,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Result{Duration: time.Since(start)}, ErrTimeout
		}
		return Result{Duration: time.Since(start)}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Duration: time.Since(start)}, fmt.Errorf("read upload response: %w", err)
	}

	result := Result{RawResponse: string(raw), Duration: time.Since(start)}
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("%w: http %d", ErrInvalidResponse, resp.StatusCode)
	}

	rec, err := ParseResponse(raw, shaped.AssetID)
	if err != nil {
		return result, err
	}
	result.Record = rec
	return result, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
