package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roadmapper/api/internal/auth"
)

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodePayload(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
	return payload
}

func TestSignUpReturnsSessionContract(t *testing.T) {
	env := newTestEnv(t)

	rr := doRequest(t, env.handler, http.MethodPost, "/api/auth/signup", "", `{"username":"  avery  ","password":"secret1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)

	token, _ := payload["token"].(string)
	refreshToken, _ := payload["refreshToken"].(string)
	if token == "" || refreshToken == "" {
		t.Fatalf("expected token and refreshToken, got %v", payload)
	}
	if payload["userName"] != "avery" {
		t.Fatalf("expected userName avery, got %v", payload["userName"])
	}

	rr = doRequest(t, env.handler, http.MethodGet, "/api/session", token, "")
	session := decodePayload(t, rr)
	if session["authenticated"] != true || session["userName"] != "avery" {
		t.Fatalf("unexpected session payload: %v", session)
	}
}

func TestSignUpRejectsShortCredentials(t *testing.T) {
	env := newTestEnv(t)

	rr := doRequest(t, env.handler, http.MethodPost, "/api/auth/signup", "", `{"username":"al","password":"secret1"}`)
	payload := assertErrorCode(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if payload["error"] != "username must be at least 3 characters" {
		t.Fatalf("unexpected message: %v", payload["error"])
	}

	rr = doRequest(t, env.handler, http.MethodPost, "/api/auth/signup", "", `{"username":"alice","password":"12345"}`)
	assertErrorCode(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSignUpDuplicateUsernameConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "alice")

	rr := doRequest(t, env.handler, http.MethodPost, "/api/auth/signup", "", `{"username":"alice","password":"another1"}`)
	assertErrorCode(t, rr, http.StatusConflict, "USERNAME_TAKEN")
}

func TestLoginChecksPassword(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "alice")

	rr := doRequest(t, env.handler, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"wrong-pass"}`)
	assertErrorCode(t, rr, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	rr = doRequest(t, env.handler, http.MethodPost, "/api/auth/login", "", `{"username":"nobody","password":"password1"}`)
	assertErrorCode(t, rr, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	rr = doRequest(t, env.handler, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"password1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLoginRejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rr := doRequest(t, env.handler, http.MethodPost, "/api/auth/login", "", `{"username":`)
	assertErrorCode(t, rr, http.StatusBadRequest, "INVALID_BODY")
}

func TestRefreshEndpointRotates(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "alice")

	body := `{"refreshToken":"` + sess.RefreshToken + `"}`
	rr := doRequest(t, env.handler, http.MethodPost, "/api/auth/refresh", "", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodePayload(t, rr)["refreshToken"] == sess.RefreshToken {
		t.Fatal("expected rotated refresh token")
	}

	rr = doRequest(t, env.handler, http.MethodPost, "/api/auth/refresh", "", body)
	payload := assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
	if payload["error"] != "Refresh token invalid" {
		t.Fatalf("unexpected message: %v", payload["error"])
	}
}

func TestLogoutEndpointRevokesBearer(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "alice")

	rr := doRequest(t, env.handler, http.MethodPost, "/api/auth/logout", sess.Token, `{"refreshToken":"`+sess.RefreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, env.handler, http.MethodGet, "/api/roadmaps", sess.Token, "")
	assertUnauthorizedCode(t, rr)
}

func TestProtectedRouteWithoutBearerReturnsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	rr := doRequest(t, env.handler, http.MethodGet, "/api/roadmaps", "", "")
	assertUnauthorizedCode(t, rr)
}

func TestProtectedRouteWithInvalidBearerReturnsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	rr := doRequest(t, env.handler, http.MethodGet, "/api/roadmaps", "definitely-not-a-token", "")
	assertUnauthorizedCode(t, rr)
}

func TestProtectedRouteWithExpiredBearerReturnsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "alice")

	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:      sess.UserID,
		Username: "alice",
		JTI:      "jti-expired",
		Exp:      time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rr := doRequest(t, env.handler, http.MethodGet, "/api/roadmaps", token, "")
	assertUnauthorizedCode(t, rr)
}

func TestSessionEndpointWithoutTokenIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	rr := doRequest(t, env.handler, http.MethodGet, "/api/session", "", "")
	payload := decodePayload(t, rr)
	if payload["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", payload)
	}
}

func assertUnauthorizedCode(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}
