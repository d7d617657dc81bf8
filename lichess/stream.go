package lichess

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Game status codes carried by the live feed.
const (
	StatusCreated       = 10
	StatusStarted       = 20
	StatusAborted       = 25
	StatusMate          = 30
	StatusResign        = 31
	StatusStalemate     = 32
	StatusTimeout       = 33
	StatusDraw          = 34
	StatusOutOfTime     = 35
	StatusCheat         = 36
	StatusNoStart       = 37
	StatusUnknownFinish = 38
	StatusVariantEnd    = 60
)

// GamePlayer identifies one side of a streamed game.
type GamePlayer struct {
	UserID string `json:"userId"`
	Rating int    `json:"rating"`
}

// GameClock is the time-control descriptor of a streamed game.
type GameClock struct {
	Initial   int `json:"initial"`
	Increment int `json:"increment"`
}

// GameEvent is one game-state message from the live feed. Events are
// ephemeral: consumed by reconciliation and discarded.
type GameEvent struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Players struct {
		White GamePlayer `json:"white"`
		Black GamePlayer `json:"black"`
	} `json:"players"`
	Clock GameClock `json:"clock"`
}

// InProgress reports whether the event signals a game still being played.
func (e GameEvent) InProgress() bool { return e.Status == StatusStarted }

// StreamGames opens the live-game feed filtered to the given usernames and
// calls handler synchronously for each decoded event, preserving feed order.
// It returns nil when the stream ends and an error on transport failure;
// either way the subscription is finished and the caller decides whether to
// reopen it.
func (c *Client) StreamGames(ctx context.Context, usernames []string, handler func(GameEvent)) error {
	endpoint := c.base() + "/api/game-stream?users=" + url.QueryEscape(strings.Join(usernames, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("game stream: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event GameEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			slog.Warn("game stream: undecodable chunk", slog.Any("err", err))
			continue
		}
		handler(event)
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("game stream: %w", err)
	}
	return nil
}
