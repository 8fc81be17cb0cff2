package client

import (
	"context"
	"net/http"
)

type SignupInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=customer seller"`
}

type ProfileInput struct {
	Name        string `json:"name" validate:"required"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
}

func (c *Client) Signup(ctx context.Context, in SignupInput) (*User, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	var out User
	req := c.newRequest(ctx).SetBody(in).SetResult(&out)
	if err := c.execute(req, http.MethodPost, "/signup"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates and installs the returned session on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	req := c.newRequest(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out)
	if err := c.execute(req, http.MethodPost, "/login"); err != nil {
		return nil, err
	}
	c.SetSession(&out)
	return &out, nil
}

func (c *Client) Profile(ctx context.Context) (*User, error) {
	req, _, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out User
	if err := c.execute(req.SetResult(&out), http.MethodGet, "/profile"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in ProfileInput) (*User, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	req, s, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out User
	if err := c.execute(req.SetBody(in).SetResult(&out), http.MethodPut, "/profile/update"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session == s {
		updated := *s
		updated.Name = out.Name
		c.session = &updated
	}
	c.mu.Unlock()
	return &out, nil
}
