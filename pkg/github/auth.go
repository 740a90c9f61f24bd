package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxTokenLength     = 100 // Maximum expected length for GitHub tokens
	minTokenLength     = 40  // Minimum expected length for GitHub tokens
	classicTokenLength = 40  // Length of classic GitHub tokens
	maxAppID           = 999999999
	filePermReadOnly   = 0o400 // Read-only file permissions
	filePermOwnerRW    = 0o600 // Owner read-write file permissions

	jwtLifetime    = 9 * time.Minute // refresh 1 minute before GitHub's 10 minute cap
	installPadding = 5 * time.Minute // renew installation tokens this early
)

// SetOwner records the account whose repository is being analyzed. Under App
// authentication requests use that account's installation token.
func (c *Client) SetOwner(owner string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.currentOwner = owner
}

// authToken returns the token to send on the next request: the personal
// access token, or under App auth the installation token for the current
// owner (falling back to the app JWT when no owner is set).
func (c *Client) authToken(ctx context.Context) (string, error) {
	if !c.isAppAuth {
		return c.token, nil
	}
	c.tokenMu.Lock()
	owner := c.currentOwner
	c.tokenMu.Unlock()
	if owner == "" {
		if err := c.refreshJWTIfNeeded(); err != nil {
			return "", err
		}
		return c.jwtToken, nil
	}
	return c.installationToken(ctx, owner)
}

// initAppAuth loads App credentials, generates the first JWT, and discovers
// the app's installations.
func (c *Client) initAppAuth(ctx context.Context, appID, keyPath string) error {
	if appID == "" {
		appID = os.Getenv("GITHUB_APP_ID")
	}
	if err := validateAppID(appID); err != nil {
		return err
	}

	key, err := loadPrivateKey(keyPath)
	if err != nil {
		return err
	}

	token, err := generateJWT(appID, key)
	if err != nil {
		return fmt.Errorf("failed to generate JWT: %w", err)
	}

	c.isAppAuth = true
	c.appID = appID
	c.privateKeyContent = key
	c.jwtToken = token
	c.tokenExpiry = time.Now().Add(jwtLifetime)
	slog.Info("Generated JWT for GitHub App", "component", "auth", "app_id", appID)

	if err := c.discoverInstallations(ctx); err != nil {
		return err
	}
	return nil
}

// generateJWT signs a short-lived JWT for GitHub App authentication.
func generateJWT(appID string, privateKey []byte) (string, error) {
	block, _ := pem.Decode(privateKey)
	if block == nil {
		return "", errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format if PKCS1 fails
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = parsedKey.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("private key is not RSA")
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(), // GitHub App JWTs expire after 10 minutes max
		"iss": appID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// refreshJWTIfNeeded regenerates the app JWT when it is close to expiry.
func (c *Client) refreshJWTIfNeeded() error {
	if !c.isAppAuth {
		return nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if time.Now().Before(c.tokenExpiry) {
		return nil
	}

	token, err := generateJWT(c.appID, c.privateKeyContent)
	if err != nil {
		return fmt.Errorf("failed to regenerate JWT: %w", err)
	}
	c.jwtToken = token
	c.tokenExpiry = time.Now().Add(jwtLifetime)
	slog.Info("Refreshed GitHub App JWT", "component", "auth")
	return nil
}

// installationToken returns a cached or freshly minted installation access
// token for the given account.
func (c *Client) installationToken(ctx context.Context, owner string) (string, error) {
	c.tokenMu.Lock()
	if token, ok := c.installTokens[owner]; ok {
		if expiry, ok := c.installExpiry[owner]; ok && time.Now().Before(expiry) {
			c.tokenMu.Unlock()
			return token, nil
		}
	}
	installID, ok := c.installIDs[owner]
	c.tokenMu.Unlock()
	if !ok {
		return "", fmt.Errorf("no app installation found for %s (is the app installed?)", owner)
	}

	if err := c.refreshJWTIfNeeded(); err != nil {
		return "", err
	}

	apiURL := fmt.Sprintf("%s/app/installations/%d/access_tokens", apiBase, installID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.tokenMu.Lock()
	req.Header.Set("Authorization", "Bearer "+c.jwtToken)
	c.tokenMu.Unlock()
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request installation token: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &APIError{Status: resp.StatusCode, URL: apiURL, Body: string(excerpt)}
	}

	var tokenResp struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("received empty installation token")
	}

	c.tokenMu.Lock()
	c.installTokens[owner] = tokenResp.Token
	c.installExpiry[owner] = tokenResp.ExpiresAt.Add(-installPadding)
	c.tokenMu.Unlock()

	slog.Info("Created installation access token",
		"component", "auth", "owner", owner, "expires_at", tokenResp.ExpiresAt.Format(time.RFC3339))
	return tokenResp.Token, nil
}

// discoverInstallations records the installation ID for every account the
// app is installed on.
func (c *Client) discoverInstallations(ctx context.Context) error {
	apiURL := apiBase + "/app/installations"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.jwtToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to list installations: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{Status: resp.StatusCode, URL: apiURL, Body: string(excerpt)}
	}

	var installations []struct {
		Account struct {
			Login string `json:"login"`
		} `json:"account"`
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&installations); err != nil {
		return fmt.Errorf("failed to decode installations: %w", err)
	}

	c.tokenMu.Lock()
	for _, inst := range installations {
		c.installIDs[inst.Account.Login] = inst.ID
	}
	c.tokenMu.Unlock()
	slog.Info("Discovered app installations", "component", "auth", "count", len(installations))
	return nil
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	if appID == "" {
		return errors.New("GitHub App ID is required (set GITHUB_APP_ID)")
	}
	appIDNum, err := strconv.Atoi(appID)
	if err != nil {
		return fmt.Errorf("GITHUB_APP_ID must be numeric: %w", err)
	}
	if appIDNum <= 0 || appIDNum > maxAppID {
		return errors.New("GITHUB_APP_ID out of valid range")
	}
	return nil
}

// loadPrivateKey loads the App private key from GITHUB_APP_KEY content or a
// key file path.
func loadPrivateKey(keyPath string) ([]byte, error) {
	var key []byte
	if content := os.Getenv("GITHUB_APP_KEY"); keyPath == "" && content != "" {
		key = []byte(content)
	} else {
		if keyPath == "" {
			keyPath = os.Getenv("GITHUB_APP_KEY_PATH")
		}
		if keyPath == "" {
			return nil, errors.New("GitHub App private key is required " +
				"(set GITHUB_APP_KEY with key content or GITHUB_APP_KEY_PATH with a file path)")
		}
		var err error
		key, err = readPrivateKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
	}

	if !bytes.Contains(key, []byte("BEGIN RSA PRIVATE KEY")) &&
		!bytes.Contains(key, []byte("BEGIN PRIVATE KEY")) {
		return nil, errors.New("private key does not appear to be a valid PEM private key")
	}
	return key, nil
}

// readPrivateKeyFile reads and validates a private key file.
func readPrivateKeyFile(keyPath string) ([]byte, error) {
	cleanPath := filepath.Clean(keyPath)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("private key path must be absolute")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access private key file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, errors.New("private key path must be a file, not a directory")
	}

	// Must be exactly 0600 or 0400
	perm := fileInfo.Mode().Perm()
	if perm != filePermOwnerRW && perm != filePermReadOnly {
		return nil, fmt.Errorf("private key file has insecure permissions %04o (must be 0600 or 0400)", perm)
	}

	return os.ReadFile(cleanPath)
}

// validateToken validates a GitHub personal access token.
func validateToken(token string) error {
	if token == "" {
		return errors.New("no GitHub token found")
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return errors.New("invalid token length")
	}

	// GitHub tokens have specific prefixes
	validPrefixes := []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}
	for _, prefix := range validPrefixes {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Could be a classic token (40 hex chars)
	if len(token) != classicTokenLength {
		return errors.New("invalid token format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return errors.New("invalid classic token format")
		}
	}
	return nil
}
