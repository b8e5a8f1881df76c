package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront/backend/internal/domain"
)

type Catalog interface {
	FetchItems(ctx context.Context, ids []string) ([]domain.CatalogItem, error)
}

const itemsQuery = `query items($items: [ID]!) {
  items(items: $items) {
    _id
    price
    currency
    name
    image
  }
}`

// GraphQLClient queries the core service's GraphQL endpoint for live item data.
type GraphQLClient struct {
	endpoint string
	http     *http.Client
}

func NewGraphQLClient(baseURL string, timeout time.Duration) *GraphQLClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GraphQLClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/graphql",
		http:     &http.Client{Timeout: timeout},
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type itemsResponse struct {
	Data struct {
		Items []domain.CatalogItem `json:"items"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (c *GraphQLClient) FetchItems(ctx context.Context, ids []string) ([]domain.CatalogItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(graphQLRequest{
		Query:     itemsQuery,
		Variables: map[string]any{"items": ids},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalog status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("catalog error: %s", out.Errors[0].Message)
	}
	return out.Data.Items, nil
}

// Memory is an in-process catalog used in development and tests. Prices can
// be changed while a session is open to mimic the live catalog.
type Memory struct {
	mu    sync.RWMutex
	items map[string]domain.CatalogItem
}

func NewMemory(items ...domain.CatalogItem) *Memory {
	m := &Memory{items: make(map[string]domain.CatalogItem, len(items))}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

// NewSeeded returns a small demo catalog.
func NewSeeded() *Memory {
	return NewMemory(
		domain.CatalogItem{ID: "5eff88ec8cab7860ceba949f", Name: "Lámpara de mesa", Price: 12312, Currency: "ARS", Image: "https://res.cloudinary.com/demo/lampara.jpg"},
		domain.CatalogItem{ID: "5f004b5f0141a76ca5622590", Name: "Lámpara colgante", Price: 1233, Currency: "ARS", Image: "https://res.cloudinary.com/demo/colgante.jpg"},
		domain.CatalogItem{ID: "5f004b5f0141a76ca5622591", Name: "Velador", Price: 4500, Currency: "ARS", Image: "https://res.cloudinary.com/demo/velador.jpg"},
	)
}

func (m *Memory) Put(item domain.CatalogItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

func (m *Memory) FetchItems(_ context.Context, ids []string) ([]domain.CatalogItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.CatalogItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}
