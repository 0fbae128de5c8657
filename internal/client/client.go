package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bonchi-health/bonchi_api/internal/auth"
)

const (
	pathRegisterEmail = "/api/auth/register/email"
	pathLoginEmail    = "/api/auth/login/email"
	pathSendOTP       = "/api/auth/otp/send"
	pathVerifyOTP     = "/api/auth/otp/verify"
	pathMe            = "/api/auth/me"
	pathLogout        = "/api/auth/logout"
)

// ErrNoSession is returned by VerifyOTP when no OTP session id is known.
var ErrNoSession = errors.New("no active OTP session")

// APIError is a non-success envelope returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Profile is the member data sent on sign-up.
type Profile struct {
	FirstName  string  `json:"firstName,omitempty"`
	MiddleName *string `json:"middleName,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Address    *string `json:"address,omitempty"`
	District   string  `json:"district,omitempty"`
	State      string  `json:"state,omitempty"`
	GSTNumber  *string `json:"gstNumber,omitempty"`
	Gender     string  `json:"gender,omitempty"`
	Age        *int    `json:"age,omitempty"`
}

// Client calls the auth API and keeps the resulting token in a TokenStore.
type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore

	mu        sync.Mutex
	sessionID int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a client for the API at baseURL. A nil store keeps tokens in memory.
func New(baseURL string, store TokenStore, opts ...Option) *Client {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterEmail creates an email/password account and stores its token.
func (c *Client) RegisterEmail(ctx context.Context, email, password string, profile Profile) (*auth.Envelope, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Profile
	}{Email: email, Password: password, Profile: profile}
	body.Profile.Email = nil

	env, err := c.do(ctx, http.MethodPost, pathRegisterEmail, body, false)
	if err != nil {
		return nil, err
	}
	return env, c.remember(env)
}

// LoginEmail signs in with email and password and stores the token.
func (c *Client) LoginEmail(ctx context.Context, email, password string) (*auth.Envelope, error) {
	env, err := c.do(ctx, http.MethodPost, pathLoginEmail, map[string]string{"email": email, "password": password}, false)
	if err != nil {
		return nil, err
	}
	return env, c.remember(env)
}

// SendOTP requests a code for phone and remembers the session id for VerifyOTP.
func (c *Client) SendOTP(ctx context.Context, phone string) (int64, error) {
	env, err := c.do(ctx, http.MethodPost, pathSendOTP, map[string]string{"phone": phone}, false)
	if err != nil {
		return 0, err
	}
	if env.Data == nil || env.Data.SessionID == 0 {
		return 0, fmt.Errorf("send otp: response has no session id")
	}
	c.SetSessionID(env.Data.SessionID)
	return env.Data.SessionID, nil
}

// SetSessionID sets the OTP session used by VerifyOTP.
func (c *Client) SetSessionID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SessionID returns the pending OTP session id, or 0.
func (c *Client) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// VerifyOTP submits the code for the pending session. profile is only needed
// the first time a phone signs in.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string, profile *Profile) (*auth.Envelope, error) {
	sessionID := c.SessionID()
	if sessionID == 0 {
		return nil, ErrNoSession
	}
	body := struct {
		Phone     string `json:"phone"`
		OTP       string `json:"otp"`
		SessionID int64  `json:"sessionId"`
		*Profile
	}{Phone: phone, OTP: code, SessionID: sessionID, Profile: profile}
	if profile != nil {
		p := *profile
		p.Phone = nil
		body.Profile = &p
	}

	env, err := c.do(ctx, http.MethodPost, pathVerifyOTP, body, false)
	if err != nil {
		return nil, err
	}
	c.SetSessionID(0)
	return env, c.remember(env)
}

// Me fetches the signed-in member using the stored token.
func (c *Client) Me(ctx context.Context) (*auth.UserView, error) {
	env, err := c.do(ctx, http.MethodGet, pathMe, nil, true)
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.User == nil {
		return nil, fmt.Errorf("me: response has no user")
	}
	return env.Data.User, nil
}

// Logout notifies the server and drops the stored token. The token is dropped
// even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	_, callErr := c.do(ctx, http.MethodPost, pathLogout, nil, false)
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.SetSessionID(0)
	return callErr
}

// IsAuthenticated reports whether a token is stored.
func (c *Client) IsAuthenticated() bool {
	session, err := c.store.Load()
	return err == nil && session.Token != ""
}

func (c *Client) remember(env *auth.Envelope) error {
	if env.Data == nil || env.Data.Token == "" {
		return nil
	}
	return c.store.Save(Session{Token: env.Data.Token, User: env.Data.User})
}

func (c *Client) do(ctx context.Context, method, path string, body any, withToken bool) (*auth.Envelope, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if withToken {
		session, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		if session.Token != "" {
			req.Header.Set("Authorization", "Bearer "+session.Token)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env auth.Envelope
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response (status %d): %w", path, res.StatusCode, err)
	}
	if res.StatusCode >= 300 || !env.Success {
		return nil, &APIError{Status: res.StatusCode, Code: env.Code, Message: env.Message}
	}
	return &env, nil
}
