package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/roomlink/roomlink/internal/auth"
	"github.com/roomlink/roomlink/internal/device"
)

// Client fetches room snapshots from the REST backend.
//
// Requests carry the current access token as a bearer header. A 401
// response triggers one refresh through the shared auth coordinator and
// one retry; the refresh is the same single flight the broker client
// joins, so simultaneous failures on both surfaces refresh once.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	http    *http.Client
	baseURL string
	coord   *auth.Coordinator
	logger  auth.Logger
}

// NewClient creates a room snapshot client.
//
// Parameters:
//   - httpClient: HTTP client, controls the per-request timeout
//   - baseURL: backend root, e.g. "http://localhost:3000"
//   - coord: the shared refresh coordinator
//   - logger: structured logger, must not be nil
func NewClient(httpClient *http.Client, baseURL string, coord *auth.Coordinator, logger auth.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		coord:   coord,
		logger:  logger,
	}
}

// Room fetches the current snapshot for one room.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - roomID: the room to fetch
//
// Returns:
//   - *device.Snapshot: the parsed snapshot
//   - error: ErrNotFound, ErrUnauthorized, or ErrRequestFailed
func (c *Client) Room(ctx context.Context, roomID string) (*device.Snapshot, error) {
	token, err := c.coord.AccessToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	snap, status, err := c.fetch(ctx, roomID, token)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return snap, nil
	}

	// Token rejected: refresh once through the shared flight and retry.
	c.logger.Info("room fetch unauthorized, refreshing token", "room_id", roomID)
	token, err = c.coord.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	snap, status, err = c.fetch(ctx, roomID, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: rejected after refresh", ErrUnauthorized)
	}
	return snap, nil
}

// fetch performs one GET /rooms/{id}. A 401 is reported via the status
// return, not as an error, so the caller can decide to refresh.
func (c *Client) fetch(ctx context.Context, roomID, token string) (*device.Snapshot, int, error) {
	reqURL := c.baseURL + "/rooms/" + url.PathEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var snap device.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("%w: decoding snapshot: %w", ErrRequestFailed, err)
		}
		return &snap, resp.StatusCode, nil

	case http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil

	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%w: %s", ErrNotFound, roomID)

	default:
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%w: backend returned %d", ErrRequestFailed, resp.StatusCode)
	}
}
