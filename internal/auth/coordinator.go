package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// refreshFlightKey collapses all concurrent refresh callers into one flight.
// There is only ever one token pair, so a single key suffices.
const refreshFlightKey = "refresh"

// Coordinator owns token refresh for every consumer of the token pair.
//
// Both authentication paths converge here: the broker client when the
// broker rejects its password, and the REST client when a request comes
// back 401. Concurrent callers share a single in-flight refresh via
// singleflight, so a burst of auth failures produces exactly one call to
// the refresh endpoint.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Coordinator struct {
	store   Store
	client  *http.Client
	baseURL string

	flight singleflight.Group

	// onLogout fires when a refresh fails and the store has been cleared.
	onLogout   func(err error)
	callbackMu sync.RWMutex

	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewCoordinator creates a Coordinator backed by the given store.
//
// Parameters:
//   - store: where the current token pair lives
//   - client: HTTP client used for the refresh call (controls the timeout)
//   - baseURL: backend root, e.g. "http://localhost:3000"
//   - logger: structured logger, must not be nil
func NewCoordinator(store Store, client *http.Client, baseURL string, logger Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		client:  client,
		baseURL: baseURL,
		logger:  logger,
	}
}

// SetOnLogout sets a callback invoked when refresh fails terminally.
// The callback runs at most once per failed flight, after the store has
// been cleared.
func (c *Coordinator) SetOnLogout(callback func(err error)) {
	c.callbackMu.Lock()
	c.onLogout = callback
	c.callbackMu.Unlock()
}

// AccessToken returns the current access token from the store.
func (c *Coordinator) AccessToken() (string, error) {
	creds, err := c.store.Get()
	if err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new token pair.
//
// Concurrent callers join the same flight and receive the same result.
// On success the new pair is persisted and the new access token returned.
// On failure the store is cleared, the logout callback fires, and
// ErrRefreshFailed is returned to every waiting caller.
//
// Parameters:
//   - ctx: Context for timeout/cancellation of the HTTP call
//
// Returns:
//   - string: the new access token
//   - error: ErrNoCredentials, ErrRefreshFailed, or a context error
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	result, err, _ := c.flight.Do(refreshFlightKey, func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}

	token, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected flight result", ErrRefreshFailed)
	}
	return token, nil
}

// refreshRequest is the body posted to the refresh endpoint.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the body returned by the refresh endpoint.
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// doRefresh performs the actual refresh call. Runs inside the singleflight.
func (c *Coordinator) doRefresh(ctx context.Context) (any, error) {
	creds, err := c.store.Get()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: creds.RefreshToken})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	url := c.baseURL + "/auth/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors are not terminal: the refresh token may still
		// be valid. Leave the store intact so a later attempt can work.
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.failFlight(fmt.Errorf("%w: refresh endpoint returned %d", ErrRefreshFailed, resp.StatusCode))
		return nil, fmt.Errorf("%w: refresh endpoint returned %d", ErrRefreshFailed, resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.failFlight(fmt.Errorf("%w: %w", ErrRefreshFailed, err))
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if parsed.AccessToken == "" {
		c.failFlight(fmt.Errorf("%w: empty access token in response", ErrRefreshFailed))
		return nil, fmt.Errorf("%w: empty access token in response", ErrRefreshFailed)
	}

	if err := c.store.Set(Credentials{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
	}); err != nil {
		return nil, fmt.Errorf("%w: persisting new credentials: %w", ErrRefreshFailed, err)
	}

	c.logger.Info("access token refreshed")
	return parsed.AccessToken, nil
}

// failFlight clears the store and fires the logout callback. Called only
// when the backend has definitively rejected the refresh token.
func (c *Coordinator) failFlight(cause error) {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("failed to clear credential store", "error", err)
	}

	c.logger.Warn("token refresh rejected, credentials cleared", "error", cause)

	c.callbackMu.RLock()
	callback := c.onLogout
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(cause)
	}
}
