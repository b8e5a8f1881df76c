package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.mercadopago.com"

type MercadoPago struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

func NewMercadoPago(baseURL string, accessToken string, timeout time.Duration) *MercadoPago {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MercadoPago{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        &http.Client{Timeout: timeout},
	}
}

func (m *MercadoPago) CreatePreference(ctx context.Context, pref Preference) (Preference, error) {
	var created Preference
	if err := m.do(ctx, http.MethodPost, "/checkout/preferences", pref, &created); err != nil {
		return Preference{}, fmt.Errorf("create preference: %w", err)
	}
	return created, nil
}

func (m *MercadoPago) FindPreferenceByID(ctx context.Context, id string) (Preference, error) {
	var pref Preference
	if err := m.do(ctx, http.MethodGet, "/checkout/preferences/"+url.PathEscape(id), nil, &pref); err != nil {
		return Preference{}, fmt.Errorf("find preference %s: %w", id, err)
	}
	return pref, nil
}

func (m *MercadoPago) FindPaymentByID(ctx context.Context, id string) (Payment, error) {
	var p Payment
	if err := m.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, &p); err != nil {
		return Payment{}, fmt.Errorf("find payment %s: %w", id, err)
	}
	return p, nil
}

func (m *MercadoPago) do(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
