// Package watch keeps one live game-stream subscription per league and
// reconciles each incoming game event against the expected pairing: ignore,
// warn on mismatch, or commit the gamelink/result update and announce it.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"

	"github.com/castling-club/leaguebot/league"
	"github.com/castling-club/leaguebot/lichess"
	"github.com/castling-club/leaguebot/notify"
	"github.com/castling-club/leaguebot/telemetry"
)

// How close to the scheduled time a wrong-time-control game must be before
// it draws a warning.
const mismatchTolerance = 2 * time.Hour

// ValidationResult is the validator's verdict for one game event. When
// Pairing is nil the event cannot be reconciled and is dropped without side
// effects.
type ValidationResult struct {
	Valid                  bool
	Pairing                *league.Pairing
	Reason                 string
	TimeControlIsIncorrect bool
}

// Validator decides whether a game event matches a known pairing. Its
// matching rules (time-control comparison, colour inference) live outside
// this package.
type Validator interface {
	ValidateGameDetails(ctx context.Context, lg *league.League, event lichess.GameEvent) ValidationResult
}

// UpdateResult reports what a store update actually changed.
type UpdateResult struct {
	GamelinkChanged bool
	ResultChanged   bool
	Gamelink        string
	Result          string
}

// GameUpdater persists gamelink/result for a pairing. Updates must be
// idempotent: re-applying the same game reports nothing changed.
type GameUpdater interface {
	UpdateGamelink(ctx context.Context, lg *league.League, details *lichess.GameDetails) (UpdateResult, error)
}

// DetailFetcher fetches the full game record for a game id.
type DetailFetcher interface {
	FetchGameDetails(ctx context.Context, gameID string) (*lichess.GameDetails, error)
}

// Engine reconciles game events for one league.
type Engine struct {
	league    *league.League
	validator Validator
	fetcher   DetailFetcher
	updater   GameUpdater
	notifier  notify.Sayer

	now func() time.Time
}

// NewEngine wires the reconciliation collaborators for one league.
func NewEngine(lg *league.League, validator Validator, fetcher DetailFetcher, updater GameUpdater, notifier notify.Sayer) *Engine {
	return &Engine{
		league:    lg,
		validator: validator,
		fetcher:   fetcher,
		updater:   updater,
		notifier:  notifier,
		now:       time.Now,
	}
}

// ProcessGameEvent runs the decision procedure for one event. It never
// returns an error: collaborator failures are logged and the stream goes on.
func (e *Engine) ProcessGameEvent(ctx context.Context, event lichess.GameEvent) {
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("league", e.league.Name()),
		slog.String("game_id", event.ID),
		slog.Int("status", event.Status),
	)
	logger.Debug("reconciling game event")

	result := e.validator.ValidateGameDetails(ctx, e.league, event)
	if result.Pairing == nil {
		// Without a pairing this event can never be valid.
		logger.Debug("no pairing for event; dropped")
		telemetry.RecordOutcome("ignored")
		return
	}
	pairing := result.Pairing
	cfg := e.league.Config()

	if result.Valid {
		switch {
		case pairing.Result != "":
			logger.Info("valid game but result already exists")
			telemetry.RecordOutcome("duplicate_result")
			if event.InProgress() {
				e.say(ctx, notify.Message{
					Channel: cfg.Channels.Gamelinks,
					Text: fmt.Sprintf("<@%s>,  <@%s>: There is already a result set for this pairing. "+
						"If you want the new game to count for the league, please contact a mod.",
						pairing.White, pairing.Black),
				})
			}
		case pairing.GameLink != "" && !strings.HasSuffix(pairing.GameLink, event.ID):
			logger.Info("valid game but game link does not match")
			telemetry.RecordOutcome("duplicate_gamelink")
			if event.InProgress() {
				e.say(ctx, notify.Message{
					Channel: cfg.Channels.Gamelinks,
					Text: fmt.Sprintf("<@%s>,  <@%s>: There is already a gamelink set for this pairing. "+
						"If you want the new game to count for the league, please contact a mod.",
						pairing.White, pairing.Black),
				})
			}
		default:
			logger.Info("valid and needed game")
			e.commit(ctx, logger, pairing, event)
		}
		return
	}

	if !event.InProgress() {
		telemetry.RecordOutcome("ignored")
		return
	}
	logger.Info("invalid game", slog.String("reason", result.Reason))

	// A wrong time control far from (or without) the scheduled time is lenient
	// matching doing its job; only warn inside the tolerance window.
	if result.TimeControlIsIncorrect && !e.nearScheduledTime(pairing) {
		telemetry.RecordOutcome("mismatch_suppressed")
		return
	}

	telemetry.RecordOutcome("mismatch_warned")
	e.say(ctx, notify.Message{
		Channel: cfg.Channels.Gamelinks,
		Text: fmt.Sprintf("<@%s>,  <@%s>: Your game is *not valid* because *%s*",
			pairing.White, pairing.Black, result.Reason),
	})
	e.say(ctx, notify.Message{
		Channel: cfg.Channels.Gamelinks,
		Text: "If this was a mistake, please correct it and try again. " +
			"If this is not a league game, you may ignore this message. Thank you.",
	})
}

func (e *Engine) nearScheduledTime(pairing *league.Pairing) bool {
	if pairing.ScheduledDate == nil {
		return false
	}
	diff := e.now().UTC().Sub(*pairing.ScheduledDate)
	if diff < 0 {
		diff = -diff
	}
	return diff < mismatchTolerance
}

// commit fetches the full game record and drives the store update, announcing
// the gamelink and the result independently and only when actually changed.
func (e *Engine) commit(ctx context.Context, logger *slog.Logger, pairing *league.Pairing, event lichess.GameEvent) {
	ctx, span := telemetry.StartSpan(ctx, "watch", "commit game",
		attribute.String("league", e.league.Name()),
		attribute.String("game_id", event.ID))
	defer span.End()

	details, err := e.fetcher.FetchGameDetails(ctx, event.ID)
	if err != nil {
		logger.Error("fetching game details failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		telemetry.RecordOutcome("error")
		return
	}
	res, err := e.updater.UpdateGamelink(ctx, e.league, details)
	if err != nil {
		logger.Error("updating game failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		telemetry.RecordOutcome("error")
		return
	}
	cfg := e.league.Config()
	if res.GamelinkChanged {
		telemetry.GamelinksSet.Inc()
		e.say(ctx, notify.Message{
			Channel: cfg.Channels.Gamelinks,
			Text:    fmt.Sprintf("<@%s> vs <@%s>: <%s>", pairing.White, pairing.Black, res.Gamelink),
			// Non-nil attachments activate link parsing in the message.
			Attachments: []slack.Attachment{},
		})
	}
	if res.ResultChanged {
		telemetry.ResultsSet.Inc()
		e.say(ctx, notify.Message{
			Channel: cfg.Channels.Results,
			Text:    fmt.Sprintf("<@%s> %s <@%s>", pairing.White, res.Result, pairing.Black),
		})
	}
	if res.GamelinkChanged || res.ResultChanged {
		telemetry.RecordOutcome("committed")
	} else {
		telemetry.RecordOutcome("noop")
	}
}

func (e *Engine) say(ctx context.Context, msg notify.Message) {
	if err := e.notifier.Say(ctx, msg); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("notification failed",
			slog.String("league", e.league.Name()),
			slog.String("channel", msg.Channel),
			slog.Any("err", err))
	}
}
