package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadmapper/api/internal/canvas"
	"roadmapper/api/internal/document"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request, body map[string]any)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	f.mu.Unlock()
	f.handler(w, r, body)
}

func (f *fakeAPI) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body map[string]any)) (*httptest.Server, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handler: handler}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return server, api
}

func sampleDocument() document.Document {
	return document.Document{
		Roadmap: document.Roadmap{ID: "r1", Title: "Launch"},
		Milestones: []document.Milestone{
			{ID: "m1", Title: "Alpha", Date: "2025-01-01", X: 50, Y: 50},
		},
		Notes: []document.Note{
			{ID: "n1", Content: "hello", X: 300, Y: 50, Width: 200, Height: 120},
		},
	}
}

func TestLoadDocumentSendsBearerAndDecodes(t *testing.T) {
	server, api := newServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		writeJSON(w, http.StatusOK, sampleDocument())
	})

	c := New(server.URL, WithTokens(Tokens{Token: "abc"}))
	doc, err := c.LoadDocument(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, "Launch", doc.Title)
	require.Len(t, doc.Milestones, 1)
	assert.Equal(t, "Alpha", doc.Milestones[0].Title)
	assert.NotNil(t, doc.Connections)
	assert.Equal(t, "Bearer abc", api.last().Auth)
	assert.Equal(t, "/api/roadmaps/r1", api.last().Path)
}

func TestMoveMilestoneSendsOnlyPosition(t *testing.T) {
	server, api := newServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	c := New(server.URL, WithTokens(Tokens{Token: "abc"}))
	require.NoError(t, c.MoveMilestone(context.Background(), "m1", document.Position{X: 120, Y: 80}))

	req := api.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/milestones/m1", req.Path)
	assert.Equal(t, map[string]any{"x": 120.0, "y": 80.0}, req.Body)
}

func TestUpdateNoteContentSendsContent(t *testing.T) {
	server, api := newServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	c := New(server.URL)
	require.NoError(t, c.UpdateNoteContent(context.Background(), "n1", "updated"))

	req := api.last()
	assert.Equal(t, "/api/notes/n1", req.Path)
	assert.Equal(t, map[string]any{"content": "updated"}, req.Body)
	assert.Empty(t, req.Auth)
}

func TestAddConnectionDecodesCreated(t *testing.T) {
	server, api := newServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		writeJSON(w, http.StatusCreated, document.Connection{
			ID:        "c1",
			RoadmapID: "r1",
			From:      document.Endpoint{Type: document.ElementMilestone, ID: "m1"},
			To:        document.Endpoint{Type: document.ElementNote, ID: "n1"},
			Style:     document.LineSolid,
		})
	})

	c := New(server.URL)
	created, err := c.AddConnection(context.Background(), "r1", document.ConnectionInput{
		From:  document.Endpoint{Type: document.ElementMilestone, ID: "m1"},
		To:    document.Endpoint{Type: document.ElementNote, ID: "n1"},
		Style: document.LineSolid,
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", created.ID)
	assert.Equal(t, "/api/roadmaps/r1/connections", api.last().Path)
}

func TestErrorsMapToDomainSentinels(t *testing.T) {
	cases := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusNotFound, "NOT_FOUND", document.ErrNotFound},
		{http.StatusForbidden, "FORBIDDEN", document.ErrForbidden},
		{http.StatusUnprocessableEntity, "VALIDATION_ERROR", document.ErrValidation},
		{http.StatusServiceUnavailable, "UNAVAILABLE", document.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
				writeJSON(w, tc.status, map[string]string{"code": tc.code, "error": "nope"})
			})

			_, err := New(server.URL).LoadDocument(context.Background(), "r1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, "nope", apiErr.Message)
		})
	}
}

func TestUnauthorizedRefreshesOnceAndRetries(t *testing.T) {
	server, api := newServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		switch {
		case r.URL.Path == "/api/auth/refresh":
			if body["refreshToken"] != "refresh-1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "UNAUTHORIZED", "error": "Refresh token invalid"})
				return
			}
			writeJSON(w, http.StatusOK, Tokens{Token: "fresh", RefreshToken: "refresh-2", UserID: "u1", UserName: "alice"})
		case r.Header.Get("Authorization") == "Bearer fresh":
			writeJSON(w, http.StatusOK, sampleDocument())
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "UNAUTHORIZED", "error": "Token expired"})
		}
	})

	c := New(server.URL, WithTokens(Tokens{Token: "stale", RefreshToken: "refresh-1"}))
	doc, err := c.LoadDocument(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Launch", doc.Title)
	assert.Equal(t, "fresh", c.Tokens().Token)
	assert.Equal(t, "refresh-2", c.Tokens().RefreshToken)
	assert.Len(t, api.requests, 3)
}

func TestUnauthorizedWithoutRefreshTokenReturnsError(t *testing.T) {
	server, api := newServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "UNAUTHORIZED", "error": "Missing bearer token"})
	})

	_, err := New(server.URL).LoadDocument(context.Background(), "r1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Len(t, api.requests, 1)
}

func TestLoginStoresTokens(t *testing.T) {
	server, api := newServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		writeJSON(w, http.StatusOK, Tokens{Token: "t1", RefreshToken: "r1", UserID: "u1", UserName: "alice"})
	})

	c := New(server.URL)
	tokens, err := c.Login(context.Background(), "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tokens.Token)
	assert.Equal(t, tokens, c.Tokens())
	assert.Equal(t, map[string]any{"username": "alice", "password": "password1"}, api.last().Body)
}

func TestClosedServerIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url).LoadDocument(context.Background(), "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrUnavailable)
}

func TestEngineDrivesRemoteBackend(t *testing.T) {
	var moved map[string]any
	server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		if r.Method == http.MethodPut {
			moved = body
		}
		writeJSON(w, http.StatusOK, sampleDocument())
	})

	engine := canvas.NewEngine(New(server.URL, WithTokens(Tokens{Token: "abc"})))
	require.NoError(t, engine.Init(context.Background(), "r1"))

	doc, ok := engine.Document()
	require.True(t, ok)
	assert.Equal(t, "Launch", doc.Title)
	assert.Nil(t, moved)
}
