// Package clients holds the HTTP clients for the external collaborators of
// the split flow: the order-management service and the identity lookup
// service. Both are consumed, never owned, by this backend.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resto_pos_backend/internal/models"
)

var (
	// ErrOrderNotFound is returned when the order service has no such order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderService is returned for transport or upstream failures. The
	// session cannot be opened in this case.
	ErrOrderService = errors.New("order service unavailable")
)

// orderPayload mirrors the order service's wire format.
type orderPayload struct {
	ID          string `json:"id"`
	TableNumber string `json:"tableNumber"`
	Items       []struct {
		ID              string `json:"id"`
		ProductName     string `json:"productName"`
		Quantity        int64  `json:"quantity"`
		UnitPriceAtSale int64  `json:"unitPriceAtSale"`
		Notes           string `json:"notes"`
	} `json:"items"`
}

// OrderClient fetches orders from the order-management service and
// normalizes them into the engine's OrderSnapshot shape.
type OrderClient interface {
	GetOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error)
}

type orderClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOrderClient creates an OrderClient against the given base URL.
func NewOrderClient(baseURL string) OrderClient {
	return &orderClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *orderClient) GetOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error) {
	url := fmt.Sprintf("%s/orders/%s", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrOrderService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrOrderService, resp.StatusCode)
	}

	var payload orderPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrOrderService, err)
	}

	snapshot := &models.OrderSnapshot{
		OrderID:    payload.ID,
		TableLabel: payload.TableNumber,
	}
	for _, item := range payload.Items {
		snapshot.LineItems = append(snapshot.LineItems, models.OrderLineItem{
			ID:        item.ID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPriceAtSale,
			Notes:     item.Notes,
		})
	}
	return snapshot, nil
}
