// Package games implements the default validator and store-update
// collaborators over the pairing store. The matching rules here are
// deliberately basic (pairing lookup, colour check, time-control check) and
// can be swapped for a stricter implementation behind the same interfaces.
package games

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/castling-club/leaguebot/league"
	"github.com/castling-club/leaguebot/lichess"
	"github.com/castling-club/leaguebot/watch"
)

// Service validates stream events against the pairing store and records
// gamelink/result updates into it.
type Service struct {
	// GamelinkBase prefixes game ids to form gamelink URLs.
	GamelinkBase string
}

func (s *Service) base() string {
	if s.GamelinkBase != "" {
		return s.GamelinkBase
	}
	return "https://lichess.org"
}

// ValidateGameDetails matches a stream event to a pairing of the league's
// current round.
func (s *Service) ValidateGameDetails(_ context.Context, lg *league.League, event lichess.GameEvent) watch.ValidationResult {
	white := event.Players.White.UserID
	black := event.Players.Black.UserID
	if white == "" || black == "" {
		return watch.ValidationResult{Reason: "the game has an anonymous player"}
	}
	pairings, err := lg.FindPairing(white, black)
	if err != nil || len(pairings) == 0 {
		return watch.ValidationResult{Reason: "the pairing was not found"}
	}
	pairing := pairings[0]
	result := watch.ValidationResult{Pairing: &pairing}

	if expInitial, expIncrement, ok := parseTimeControl(lg.Config().TimeControl); ok {
		if event.Clock.Initial != expInitial || event.Clock.Increment != expIncrement {
			result.Reason = "the time control is incorrect"
			result.TimeControlIsIncorrect = true
			return result
		}
	}
	if !strings.EqualFold(pairing.White, white) || !strings.EqualFold(pairing.Black, black) {
		result.Reason = "the colors are reversed"
		return result
	}
	result.Valid = true
	return result
}

// parseTimeControl splits "initial+increment" (seconds) league configuration.
func parseTimeControl(tc string) (initial, increment int, ok bool) {
	if tc == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(tc, "+", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	initial, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	increment, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return initial, increment, true
}

// apiGame is the subset of the games API payload the updater needs.
type apiGame struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Winner  string `json:"winner"`
	Players struct {
		White struct {
			UserID string `json:"userId"`
		} `json:"white"`
		Black struct {
			UserID string `json:"userId"`
		} `json:"black"`
	} `json:"players"`
}

// UpdateGamelink persists the gamelink and, for finished games, the result
// into the pairing store. It reports only what actually changed, so
// re-applying the same game is a no-op.
func (s *Service) UpdateGamelink(_ context.Context, lg *league.League, details *lichess.GameDetails) (watch.UpdateResult, error) {
	var game apiGame
	if err := json.Unmarshal(details.JSON, &game); err != nil {
		return watch.UpdateResult{}, fmt.Errorf("decode game details: %w", err)
	}
	if game.ID == "" {
		game.ID = details.ID
	}

	gamelink := s.base() + "/" + game.ID
	result := gameResult(game)

	linkChanged, resultChanged, err := lg.UpdatePairingGame(
		game.Players.White.UserID, game.Players.Black.UserID, gamelink, result)
	if err != nil {
		return watch.UpdateResult{}, err
	}
	return watch.UpdateResult{
		GamelinkChanged: linkChanged,
		ResultChanged:   resultChanged,
		Gamelink:        gamelink,
		Result:          result,
	}, nil
}

// gameResult renders the score text for a finished game, or "" while the
// game is still running (or never properly started).
func gameResult(game apiGame) string {
	switch game.Status {
	case lichess.StatusMate, lichess.StatusResign, lichess.StatusTimeout,
		lichess.StatusOutOfTime, lichess.StatusCheat, lichess.StatusUnknownFinish,
		lichess.StatusVariantEnd:
		switch game.Winner {
		case "white":
			return "1-0"
		case "black":
			return "0-1"
		}
		return "1/2-1/2"
	case lichess.StatusStalemate, lichess.StatusDraw:
		return "1/2-1/2"
	}
	return ""
}
