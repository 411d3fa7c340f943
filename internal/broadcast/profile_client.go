package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPProfile talks to the driver profile API with the driver's bearer token.
type HTTPProfile struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type driverProfile struct {
	ShareLocation     bool `json:"shareLocation"`
	HasSharedLocation bool `json:"hasSharedLocation"`
}

func (p *HTTPProfile) SetLocationSharing(ctx context.Context, share bool) error {
	body, err := json.Marshal(map[string]bool{"shareLocation": share})
	if err != nil {
		return err
	}
	return p.do(ctx, http.MethodPut, "/profile/driver/location-sharing", body, nil)
}

// HasSharedLocation reports whether the driver ever turned sharing on.
func (p *HTTPProfile) HasSharedLocation(ctx context.Context) (bool, error) {
	var out driverProfile
	if err := p.do(ctx, http.MethodGet, "/profile/driver", nil, &out); err != nil {
		return false, err
	}
	return out.HasSharedLocation, nil
}

func (p *HTTPProfile) do(ctx context.Context, method, path string, body []byte, out any) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
