package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GoTrueAuthenticator signs users in with the hosted provider's password
// grant at <baseURL>/auth/v1/token.
type GoTrueAuthenticator struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// GoTrueOption configures a GoTrueAuthenticator.
type GoTrueOption func(*GoTrueAuthenticator)

// WithGoTrueHTTPClient replaces the default client.
func WithGoTrueHTTPClient(hc *http.Client) GoTrueOption {
	return func(a *GoTrueAuthenticator) {
		a.http = hc
	}
}

func NewGoTrueAuthenticator(baseURL, apiKey string, opts ...GoTrueOption) *GoTrueAuthenticator {
	a := &GoTrueAuthenticator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

var errMissingUserID = errors.New("token response has no user id")

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (a *GoTrueAuthenticator) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	body, err := json.Marshal(passwordGrant{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encode password grant: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("apikey", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		var gerr gotrueError
		_ = json.Unmarshal(raw, &gerr)
		msg := gerr.ErrorDescription
		if msg == "" {
			msg = gerr.Msg
		}
		return nil, fmt.Errorf("token request: status %d: %s", resp.StatusCode, msg)
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.User.ID == "" {
		return nil, errMissingUserID
	}

	return &Identity{UserID: tok.User.ID, Email: tok.User.Email, AccessToken: tok.AccessToken}, nil
}
