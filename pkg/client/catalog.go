package client

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
)

type shopResponse struct {
	Success  bool      `json:"success"`
	Products []Product `json:"products"`
}

// Shop lists the public catalog, optionally narrowed to one category.
func (c *Client) Shop(ctx context.Context, category string) ([]Product, error) {
	var out shopResponse
	req := c.newRequest(ctx).SetResult(&out)
	if category != "" {
		req.SetQueryParam("category", category)
	}
	if err := c.execute(req, http.MethodGet, "/shop/products"); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.execute(c.newRequest(ctx).SetResult(&out), http.MethodGet, "/shop/categories"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SellerProducts(ctx context.Context) ([]Product, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out []Product
	if err := c.execute(req.SetResult(&out), http.MethodGet, "/products/seller"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	in.ID = uuid.Nil
	var out Product
	if err := c.execute(req.SetBody(in).SetResult(&out), http.MethodPost, "/products/create"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, productID uuid.UUID, in ProductInput) (*Product, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	in.ID = productID
	var out Product
	if err := c.execute(req.SetBody(in).SetResult(&out), http.MethodPut, "/products/update"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return err
	}
	req.SetQueryParam("product_id", productID.String())
	return c.execute(req, http.MethodDelete, "/products/delete")
}
