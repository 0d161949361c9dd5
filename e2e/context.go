package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext drives a running hashplanet server over HTTP and remembers
// the last response for assertions.
type TestContext struct {
	BaseURL    string
	Client     *http.Client
	signingKey []byte
	issuer     string
	audience   string

	principal  string
	lastStatus int
	lastBody   []byte
}

// NewTestContextFromEnv reads E2E_BASE_URL and the JWT settings the server
// was started with.
func NewTestContextFromEnv() *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(envOr("E2E_BASE_URL", "http://localhost:8080"), "/"),
		Client:     &http.Client{Timeout: 10 * time.Second},
		signingKey: []byte(envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production")),
		issuer:     envOr("JWT_ISSUER", "hashplanet"),
		audience:   envOr("JWT_AUDIENCE", "hashplanet-registry"),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.principal = ""
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) SetPrincipal(principal string) { tc.principal = principal }

func (tc *TestContext) Principal() string { return tc.principal }

// POST sends a JSON body as the current principal, if any.
func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, tc.principal)
}

// POSTAnonymous sends a JSON body without credentials.
func (tc *TestContext) POSTAnonymous(path string, body any) error {
	return tc.do(http.MethodPost, path, body, "")
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, "")
}

func (tc *TestContext) Status() int { return tc.lastStatus }

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) do(method, path string, body any, principal string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		token, err := tc.token(principal)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) token(principal string) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   principal,
		Issuer:    tc.issuer,
		Audience:  []string{tc.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}).SignedString(tc.signingKey)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
