package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// ErrNotLoggedIn is returned when an operation needs a stored session and
// none exists.
var ErrNotLoggedIn = errors.New("not logged in")

// accessLeeway is how long before expiry an access token is treated as
// already expired.
const accessLeeway = 30 * time.Second

// sessionState is the persisted login session.
type sessionState struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Roles            []string  `json:"roles,omitempty"`
}

// SessionStore abstracts persistence for login sessions.
type SessionStore interface {
	Load() (sessionState, error)
	Save(sessionState) error
	Clear() error
}

// FileSessionStore writes the session to a JSON file with restricted
// permissions.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore builds a FileSessionStore rooted at the provided path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// Load reads the session from disk. A missing file resolves to an empty
// session.
func (s *FileSessionStore) Load() (sessionState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sessionState{}, nil
		}
		return sessionState{}, fmt.Errorf("read session state: %w", err)
	}

	var state sessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return sessionState{}, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}

// Save persists the session to disk, readable only by the owner.
func (s *FileSessionStore) Save(state sessionState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure session directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// Clear removes the session file. A missing file is not an error.
func (s *FileSessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session state: %w", err)
	}
	return nil
}

// TokenManager persists the login session and refreshes the access token
// before it expires. Concurrent refreshes collapse into a single request.
type TokenManager struct {
	baseURL *url.URL
	http    *http.Client
	store   SessionStore

	stateMu sync.RWMutex
	state   sessionState

	flight singleflight.Group
}

// NewTokenManager builds a TokenManager talking to baseURL and persisting
// through store. A nil httpClient falls back to the default timeout client.
func NewTokenManager(baseURL string, store SessionStore, httpClient *http.Client) (*TokenManager, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return nil, schema.NewError(schema.ErrCodeTransport, "server base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTransport, "parse server base url").WithCause(err)
	}
	if store == nil {
		return nil, errors.New("session store is nil")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	state, err := store.Load()
	if err != nil {
		return nil, err
	}

	return &TokenManager{
		baseURL: parsed,
		http:    httpClient,
		store:   store,
		state:   state,
	}, nil
}

// LoginResult summarizes a successful login.
type LoginResult struct {
	Roles              []string
	MustChangePassword bool
	ExpiresIn          int64
}

// Login authenticates against the backend and persists the session.
func (m *TokenManager) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	req := loginRequest{Username: username, Password: password, DeviceInfo: "pipectl"}

	var resp loginResponse
	if err := m.post(ctx, "api/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if _, err := m.adopt(resp); err != nil {
		return nil, err
	}

	return &LoginResult{
		Roles:              resp.Roles,
		MustChangePassword: resp.MustChangePassword,
		ExpiresIn:          resp.ExpiresIn,
	}, nil
}

// Logout clears the stored session and revokes the refresh token on the
// server. The local session is cleared even when revocation fails.
func (m *TokenManager) Logout(ctx context.Context) error {
	m.stateMu.Lock()
	refreshToken := m.state.RefreshToken
	m.state = sessionState{}
	m.stateMu.Unlock()

	if err := m.store.Clear(); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	return m.post(ctx, "api/auth/logout", logoutRequest{RefreshToken: refreshToken}, nil)
}

// HasSession reports whether a login session is stored.
func (m *TokenManager) HasSession() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state.RefreshToken != "" || m.state.AccessToken != ""
}

// Roles returns the roles recorded at login.
func (m *TokenManager) Roles() []string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return append([]string(nil), m.state.Roles...)
}

// Token returns a current access token, refreshing when it is expired or
// about to expire. It returns "" without error when no session is stored,
// leaving the request unauthenticated.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cachedToken(); ok {
		return token, nil
	}

	m.stateMu.RLock()
	hasRefresh := m.state.RefreshToken != ""
	m.stateMu.RUnlock()
	if !hasRefresh {
		return "", nil
	}

	return m.Refresh(ctx)
}

// Refresh exchanges the stored refresh token for a fresh access token.
// Concurrent callers share one in-flight exchange. The exchange always goes
// to the server, so a 401 on a locally-unexpired token still forces a new
// token.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	token, err, _ := m.flight.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	m.stateMu.RLock()
	refreshToken := m.state.RefreshToken
	m.stateMu.RUnlock()
	if refreshToken == "" {
		return "", ErrNotLoggedIn
	}

	var resp loginResponse
	if err := m.post(ctx, "api/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return "", err
	}
	return m.adopt(resp)
}

func (m *TokenManager) cachedToken() (string, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.state.AccessToken != "" && time.Until(m.state.AccessExpiresAt) > accessLeeway {
		return m.state.AccessToken, true
	}
	return "", false
}

// adopt installs a login or refresh response as the current session. The
// in-memory session is kept even when persisting it fails.
func (m *TokenManager) adopt(resp loginResponse) (string, error) {
	now := time.Now()
	state := sessionState{
		AccessToken:      resp.AccessToken,
		RefreshToken:     resp.RefreshToken,
		AccessExpiresAt:  now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		RefreshExpiresAt: now.Add(time.Duration(resp.RefreshExpiresIn) * time.Second),
		Roles:            resp.Roles,
	}

	m.stateMu.Lock()
	m.state = state
	err := m.store.Save(state)
	m.stateMu.Unlock()

	return state.AccessToken, err
}

func (m *TokenManager) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return schema.NewError(schema.ErrCodeTransport, "encode auth request").WithCause(err)
	}

	endpoint := m.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return schema.NewError(schema.ErrCodeTransport, "build auth request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "POST %s failed", path).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return schema.NewError(schema.ErrCodeTransport, "decode auth response").WithCause(err)
	}
	return nil
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

type loginResponse struct {
	AccessToken        string   `json:"access_token"`
	RefreshToken       string   `json:"refresh_token"`
	TokenType          string   `json:"token_type"`
	ExpiresIn          int64    `json:"expires_in"`
	RefreshExpiresIn   int64    `json:"refresh_expires_in"`
	Roles              []string `json:"roles"`
	MustChangePassword bool     `json:"must_change_password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
