package client

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// GetCart returns the signed-in user's cart. Items is never nil.
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out Cart
	if err := c.execute(req.SetResult(&out), http.MethodGet, "/cart"); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []CartItem{}
	}
	return &out, nil
}

// CartOrEmpty is GetCart for display paths: any failure is logged and an
// empty cart is returned.
func (c *Client) CartOrEmpty(ctx context.Context) *Cart {
	cart, err := c.GetCart(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("client: cart unavailable, showing empty cart")
		empty := &Cart{Items: []CartItem{}}
		if s := c.Session(); s != nil {
			empty.UserID = s.UserID
		}
		return empty
	}
	return cart
}

// AddItem adds qty units of a product, incrementing an existing line.
// qty <= 0 means one.
func (c *Client) AddItem(ctx context.Context, productID uuid.UUID, qty int) (*CartItem, error) {
	req, s, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	if qty <= 0 {
		qty = 1
	}
	var out CartItem
	body := map[string]interface{}{"product_id": productID, "quantity": qty}
	if err := c.execute(req.SetBody(body).SetResult(&out), http.MethodPost, "/cart/add"); err != nil {
		return nil, err
	}
	c.notifyCartChanged(ctx, s)
	return &out, nil
}

// SetQuantity sets a line's quantity. Negative values are clamped to zero,
// and zero removes the line.
func (c *Client) SetQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return c.RemoveItem(ctx, itemID)
	}
	req, s, err := c.authedRequest(ctx)
	if err != nil {
		return err
	}
	body := map[string]interface{}{"id": itemID, "quantity": qty}
	if err := c.execute(req.SetBody(body), http.MethodPut, "/cart/update"); err != nil {
		return err
	}
	c.notifyCartChanged(ctx, s)
	return nil
}

func (c *Client) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	req, s, err := c.authedRequest(ctx)
	if err != nil {
		return err
	}
	req.SetQueryParam("id", itemID.String())
	if err := c.execute(req, http.MethodDelete, "/cart/delete"); err != nil {
		return err
	}
	c.notifyCartChanged(ctx, s)
	return nil
}
