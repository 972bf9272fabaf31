package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"BTCSentinel/internal/model"
)

// GetBody issues a GET and returns the body of a 200 response. Any other
// status becomes a *StatusError.
func GetBody(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", model.ErrPermanentSource, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.Redacted(), Body: string(body)}
	}
	return body, nil
}

// GetJSON issues a GET and decodes a 200 response into dst. A body that does
// not decode is a data integrity failure.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, dst interface{}) error {
	body, err := GetBody(ctx, client, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %w", model.ErrDataIntegrity, rawURL, err)
	}
	return nil
}
