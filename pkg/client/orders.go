package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/storefront/internal/order"
)

func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out []Order
	if err := c.execute(req.SetResult(&out), http.MethodGet, "/orders/user"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OrderDetails(ctx context.Context, orderID uuid.UUID) (*OrderDetails, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out OrderDetails
	req.SetQueryParam("order_id", orderID.String()).SetResult(&out)
	if err := c.execute(req, http.MethodGet, "/orders/details"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SellerOrders(ctx context.Context) ([]Order, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out []Order
	if err := c.execute(req.SetResult(&out), http.MethodGet, "/orders/seller"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SellerOrderDetails(ctx context.Context, orderID uuid.UUID) (*SellerOrderDetails, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out SellerOrderDetails
	req.SetQueryParam("order_id", orderID.String()).SetResult(&out)
	if err := c.execute(req, http.MethodGet, "/orders/seller-details"); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrderStatus asks the backend to move an order to target. When current
// is known, targets outside NextStatuses(current) fail with
// ErrInvalidTransition before any request is sent; pass "" to leave the check
// to the backend.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, current, target OrderStatus) (*StatusUpdate, error) {
	if current != "" && !order.CanTransition(order.Status(current), order.Status(target)) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}

	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out StatusUpdate
	body := map[string]interface{}{"order_id": orderID, "status": target}
	if err := c.execute(req.SetBody(body).SetResult(&out), http.MethodPut, "/orders/update-status"); err != nil {
		return nil, err
	}
	return &out, nil
}
