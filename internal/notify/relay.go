package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRelay posts messages to a mail relay service as {to, template, data}.
type HTTPRelay struct {
	endpoint string
	http     *http.Client
}

func NewHTTPRelay(endpoint string, timeout time.Duration) *HTTPRelay {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRelay{
		endpoint: strings.TrimSpace(endpoint),
		http:     &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRelay) Send(ctx context.Context, to string, template string, data map[string]any) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("relay %s: empty recipient", template)
	}
	payload, err := json.Marshal(Message{To: to, Template: template, Data: data})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
