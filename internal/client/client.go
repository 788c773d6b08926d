// Package client talks to the Roadmapper HTTP API on behalf of one user. It
// implements canvas.Backend so the canvas engine can drive a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"roadmapper/api/internal/canvas"
	"roadmapper/api/internal/document"
)

var _ canvas.Backend = (*Client)(nil)

// APIError is a non-2xx response decoded from the server's error envelope.
// It unwraps to the matching document sentinel so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("roadmapper api %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return document.ErrNotFound
	case e.Status == http.StatusForbidden:
		return document.ErrForbidden
	case e.Status == http.StatusUnprocessableEntity || e.Status == http.StatusBadRequest:
		return document.ErrValidation
	case e.Status >= http.StatusInternalServerError:
		return document.ErrUnavailable
	}
	return nil
}

// Tokens is the credential pair handed out by login, signup and refresh.
type Tokens struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	tokens Tokens
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokens starts the client with an existing session.
func WithTokens(tokens Tokens) Option {
	return func(c *Client) { c.tokens = tokens }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func (c *Client) Login(ctx context.Context, username, password string) (Tokens, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{"username": username, "password": password})
}

func (c *Client) SignUp(ctx context.Context, username, password string) (Tokens, error) {
	return c.authenticate(ctx, "/api/auth/signup", map[string]string{"username": username, "password": password})
}

// Refresh trades the stored refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) (Tokens, error) {
	refresh := c.Tokens().RefreshToken
	if refresh == "" {
		return Tokens{}, &APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "no refresh token"}
	}
	return c.authenticate(ctx, "/api/auth/refresh", map[string]string{"refreshToken": refresh})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (Tokens, error) {
	var tokens Tokens
	if err := c.send(ctx, http.MethodPost, path, "", body, &tokens); err != nil {
		return Tokens{}, err
	}
	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
	return tokens, nil
}

func (c *Client) LoadDocument(ctx context.Context, roadmapID string) (document.Document, error) {
	var doc document.Document
	if err := c.do(ctx, http.MethodGet, "/api/roadmaps/"+url.PathEscape(roadmapID), nil, &doc); err != nil {
		return document.Document{}, err
	}
	doc.Normalize()
	return doc, nil
}

func (c *Client) MoveMilestone(ctx context.Context, id string, pos document.Position) error {
	return c.do(ctx, http.MethodPut, "/api/milestones/"+url.PathEscape(id), positionBody{X: pos.X, Y: pos.Y}, nil)
}

func (c *Client) MoveNote(ctx context.Context, id string, pos document.Position) error {
	return c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), positionBody{X: pos.X, Y: pos.Y}, nil)
}

func (c *Client) UpdateNoteContent(ctx context.Context, id, content string) error {
	return c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), map[string]string{"content": content}, nil)
}

func (c *Client) AddConnection(ctx context.Context, roadmapID string, input document.ConnectionInput) (document.Connection, error) {
	var created document.Connection
	err := c.do(ctx, http.MethodPost, "/api/roadmaps/"+url.PathEscape(roadmapID)+"/connections", input, &created)
	return created, err
}

type positionBody struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// do sends an authenticated request. A 401 triggers one refresh and retry
// when a refresh token is held.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.send(ctx, method, path, c.Tokens().Token, body, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || c.Tokens().RefreshToken == "" {
		return err
	}
	if _, refreshErr := c.Refresh(ctx); refreshErr != nil {
		return err
	}
	return c.send(ctx, method, path, c.Tokens().Token, body, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, document.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var envelope struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Code == "" {
		return &APIError{Status: status, Code: http.StatusText(status), Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Code: envelope.Code, Message: envelope.Error}
}
