package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// refreshSkew renews a cached token slightly before it expires.
const refreshSkew = 30 * time.Second

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// PasswordSource exchanges a username and password for a token at the
// backend's token endpoint and caches it until shortly before expiry.
type PasswordSource struct {
	mu         sync.Mutex
	url        string
	username   string
	password   string
	httpClient *http.Client
	token      string
	now        func() time.Time
}

func NewPasswordSource(baseURL, username, password string) *PasswordSource {
	return &PasswordSource{
		url:        strings.TrimRight(baseURL, "/") + "/api/auth/token",
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (p *PasswordSource) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && !Expired(p.token, p.now().Add(refreshSkew)) {
		return p.token, nil
	}
	if p.username == "" {
		return "", ErrNoCredential
	}

	body, err := json.Marshal(loginRequest{Username: p.username, Password: p.password})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if lr.Token == "" {
		return "", ErrNoCredential
	}
	p.token = lr.Token
	return p.token, nil
}

// Invalidate drops the cached token so the next call logs in again.
func (p *PasswordSource) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}
