package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

// SignUp creates a new user account
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	req := SignUpRequest{
		Email:    email,
		Password: password,
		Name:     name,
	}

	var result AuthResponse
	if err := c.call(ctx, http.MethodPost, "/api/auth/signup", req, &result); err != nil {
		return nil, fmt.Errorf("signup request failed: %w", err)
	}

	// Automatically set the auth token for subsequent requests
	c.SetAuthToken(result.Token)

	return &result, nil
}

// SignIn authenticates an existing user
func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	req := SignInRequest{
		Email:    email,
		Password: password,
	}

	var result AuthResponse
	if err := c.call(ctx, http.MethodPost, "/api/auth/signin", req, &result); err != nil {
		return nil, fmt.Errorf("signin request failed: %w", err)
	}

	c.SetAuthToken(result.Token)

	return &result, nil
}

// SignInOrUp signs in, creating the account first when the email is unknown.
func (c *Client) SignInOrUp(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	resp, err := c.SignIn(ctx, email, password)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, ErrUnauthorized) {
		return nil, err
	}
	return c.SignUp(ctx, email, password, name)
}

// SignOut signs out the current user
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.call(ctx, http.MethodPost, "/api/auth/signout", nil, nil); err != nil {
		return fmt.Errorf("signout request failed: %w", err)
	}

	// Clear the auth token
	c.SetAuthToken("")

	return nil
}

// GetCurrentUser retrieves the currently authenticated user
func (c *Client) GetCurrentUser(ctx context.Context) (*models.User, error) {
	var result models.User
	if err := c.call(ctx, http.MethodGet, "/api/auth/me", nil, &result); err != nil {
		return nil, fmt.Errorf("get current user request failed: %w", err)
	}
	return &result, nil
}

// RefreshToken exchanges the current token for a new one.
func (c *Client) RefreshToken(ctx context.Context) (*AuthResponse, error) {
	var result AuthResponse
	if err := c.call(ctx, http.MethodPost, "/api/auth/refresh", nil, &result); err != nil {
		return nil, fmt.Errorf("refresh token request failed: %w", err)
	}

	c.SetAuthToken(result.Token)

	return &result, nil
}
