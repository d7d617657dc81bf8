// Package lichess contains minimal helpers to interact with the chess
// server's APIs: player ratings, full game details, and the live game-stream
// feed for a set of usernames.
package lichess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Client provides the API methods the bot needs.
type Client struct {
	// BaseURL defaults to the public server; override for tests.
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://lichess.org"
}

// PlayerRating resolves a username to its current classical rating.
func (c *Client) PlayerRating(ctx context.Context, username string) (int, error) {
	if username == "" {
		return 0, fmt.Errorf("username empty")
	}
	endpoint := c.base() + "/api/user/" + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("user %s: status %d", username, resp.StatusCode)
	}
	var body struct {
		Perfs struct {
			Classical struct {
				Rating int `json:"rating"`
			} `json:"classical"`
		} `json:"perfs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if body.Perfs.Classical.Rating == 0 {
		return 0, fmt.Errorf("user %s: no classical rating", username)
	}
	return body.Perfs.Classical.Rating, nil
}

// GameDetails is the full game record from the games API. JSON carries the
// raw payload for the store-update collaborator, which is pickier about the
// details format than the stream events are.
type GameDetails struct {
	ID   string
	JSON json.RawMessage
}

// FetchGameDetails fetches the full game record for a game id.
func (c *Client) FetchGameDetails(ctx context.Context, gameID string) (*GameDetails, error) {
	if gameID == "" {
		return nil, fmt.Errorf("game id empty")
	}
	endpoint := c.base() + "/api/game/" + url.PathEscape(gameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("game %s: status %d", gameID, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var meta struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}
	if meta.ID == "" {
		meta.ID = gameID
	}
	return &GameDetails{ID: meta.ID, JSON: raw}, nil
}
