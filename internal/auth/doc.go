// Package auth manages the token pair used by every authenticated surface
// of the Room Link client.
//
// Two consumers authenticate with the same access token: the MQTT broker
// connection (token as password) and the REST client (bearer header).
// When either is rejected, it calls Coordinator.Refresh; singleflight
// collapses concurrent failures into one call to the refresh endpoint, so
// a simultaneous broker rejection and REST 401 never race two refreshes.
//
// A refresh that the backend rejects is terminal: the store is cleared
// and the logout callback fires exactly once per failed flight. Network
// errors during refresh are retryable and leave the store intact.
//
// # Usage
//
//	store := auth.NewMemoryStore()
//	coord := auth.NewCoordinator(store, httpClient, cfg.API.BaseURL, logger)
//	coord.SetOnLogout(func(err error) { shutdown() })
//
//	token, err := coord.Refresh(ctx)
package auth
