package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLIWithInput(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func authBackend(t *testing.T) *bool {
	t.Helper()
	loggedOut := false
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var req struct {
				Username   string `json:"username"`
				Password   string `json:"password"`
				DeviceInfo string `json:"device_info"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "pipectl", req.DeviceInfo)
			if req.Username != "admin" || req.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				writeResponse(t, w, map[string]string{
					"code":    "UNAUTHORIZED",
					"message": "invalid credentials",
				})
				return
			}
			writeResponse(t, w, map[string]any{
				"access_token":       "acc-1",
				"refresh_token":      "ref-1",
				"token_type":         "Bearer",
				"expires_in":         900,
				"refresh_expires_in": 86400,
				"roles":              []string{"admin", "editor"},
			})
		case "/api/auth/logout":
			var req struct {
				RefreshToken string `json:"refresh_token"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ref-1", req.RefreshToken)
			loggedOut = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return &loggedOut
}

// --- Login ---

func TestLoginWithFlags(t *testing.T) {
	dir := setupWorkspace(t)
	authBackend(t)

	stdout, _, err := runCLI(t, "login", "--username", "admin", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged in to ")
	assert.Contains(t, stdout, "Roles: admin, editor")

	data, err := os.ReadFile(filepath.Join(dir, "credentials.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "acc-1")
	assert.Contains(t, string(data), "ref-1")
}

func TestLoginPromptsForMissingValues(t *testing.T) {
	setupWorkspace(t)
	authBackend(t)

	stdout, stderr, err := runCLIWithInput(t, "admin\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Username: ")
	assert.Contains(t, stderr, "Password: ")
	assert.Contains(t, stdout, "Logged in to ")
}

func TestLoginBadCredentials(t *testing.T) {
	dir := setupWorkspace(t)
	authBackend(t)

	_, _, err := runCLI(t, "login", "--username", "admin", "--password", "wrong")
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid credentials")

	_, statErr := os.Stat(filepath.Join(dir, "credentials.json"))
	assert.True(t, os.IsNotExist(statErr), "no session should be persisted")
}

func TestLoginJSONOutput(t *testing.T) {
	setupWorkspace(t)
	authBackend(t)

	stdout, _, err := runCLI(t, "login", "--username", "admin", "--password", "secret", "--json")
	require.NoError(t, err)
	var payload struct {
		Server string   `json:"server"`
		Roles  []string `json:"roles"`
	}
	decodeInto(t, stdout, &payload)
	assert.NotEmpty(t, payload.Server)
	assert.Equal(t, []string{"admin", "editor"}, payload.Roles)
}

// --- Logout ---

func TestLogoutRevokesAndClears(t *testing.T) {
	dir := setupWorkspace(t)
	loggedOut := authBackend(t)

	_, _, err := runCLI(t, "login", "--username", "admin", "--password", "secret")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged out.")
	assert.True(t, *loggedOut, "refresh token should be revoked on the server")

	_, statErr := os.Stat(filepath.Join(dir, "credentials.json"))
	assert.True(t, os.IsNotExist(statErr), "credentials file should be removed")
}

func TestLogoutWithoutSession(t *testing.T) {
	setupWorkspace(t)
	authBackend(t)

	stdout, _, err := runCLI(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No stored session.")
}
