package league

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrNoUsername is returned when FindPairing is called without any username.
var ErrNoUsername = errors.New("findPairing requires at least one username")

// FindPairing narrows the current round's pairings in two stages: first to
// pairings where either player's name starts with white, then (when black is
// given) further to pairings where either name starts with black. Matching is
// case-insensitive and anchored at the start of the name, so "al" finds
// "alice" and "ally" but "a" does not find "carol".
func (l *League) FindPairing(white, black string) ([]Pairing, error) {
	if white == "" {
		return nil, ErrNoUsername
	}
	possibilities := l.snapshot().pairings
	filter := func(name string) {
		if name == "" {
			return
		}
		q := strings.ToLower(name)
		var kept []Pairing
		for _, p := range possibilities {
			if strings.HasPrefix(strings.ToLower(p.White), q) || strings.HasPrefix(strings.ToLower(p.Black), q) {
				kept = append(kept, p)
			}
		}
		possibilities = kept
	}
	filter(white)
	filter(black)
	return possibilities, nil
}

// PairingDetails is the presentation data for one player's pairing.
type PairingDetails struct {
	Player   string
	Color    string
	Opponent string
	Date     *time.Time
	Rating   int // opponent's rating, 0 when unknown
}

// PairingDetails resolves the first pairing for the player, determines colour
// and opponent, and enriches the result with the opponent's current rating.
// A rating fetch failure degrades gracefully: the rating is omitted.
func (l *League) PairingDetails(ctx context.Context, player *Player) (PairingDetails, bool) {
	pairings, err := l.FindPairing(player.Name, "")
	if err != nil || len(pairings) == 0 {
		return PairingDetails{}, false
	}
	pairing := pairings[0]
	details := PairingDetails{
		Player:   player.Name,
		Color:    "white",
		Opponent: pairing.Black,
		Date:     pairing.ScheduledDate,
	}
	if !strings.EqualFold(pairing.White, player.Name) {
		details.Color = "black"
		details.Opponent = pairing.White
	}
	if details.Opponent == "" {
		return PairingDetails{}, false
	}
	if l.ratings != nil {
		rating, err := l.ratings.PlayerRating(ctx, details.Opponent)
		if err != nil {
			slog.Warn("opponent rating fetch failed",
				slog.String("league", l.cfg.Name),
				slog.String("opponent", details.Opponent),
				slog.Any("err", err))
		} else {
			details.Rating = rating
		}
	}
	return details, true
}

// FormatPairingDetails phrases the pairing for the requesting player in their
// local time.
func (l *League) FormatPairingDetails(requester *Player, details PairingDetails) string {
	var localTime time.Time
	haveTime := false
	if details.Date != nil {
		zone := time.FixedZone("local", requester.TZOffset)
		localTime = details.Date.In(zone)
		haveTime = true
	}

	playedPhrase := "will play as"
	schedulePhrase := ". The game is unscheduled."
	now := l.now().UTC()
	switch {
	case !haveTime:
	case now.After(localTime):
		playedPhrase = "played as"
		schedulePhrase = fmt.Sprintf(" on %s.", localTime.Format("01/02 at 15:04"))
	default:
		schedulePhrase = fmt.Sprintf(" on %s which is in %s",
			localTime.Format("01/02 at 15:04"), humanDuration(localTime.Sub(now)))
	}

	rating := ""
	if details.Rating > 0 {
		rating = fmt.Sprintf(" (%d)", details.Rating)
	}
	return fmt.Sprintf("[%s]: %s %s %s against %s%s%s",
		l.cfg.Name, details.Player, playedPhrase, details.Color, details.Opponent, rating, schedulePhrase)
}

// humanDuration renders a duration in the largest sensible unit.
func humanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return "a moment"
	}
}

// FormatCaptainsGuidelines returns the captains guidelines response.
func (l *League) FormatCaptainsGuidelines() string {
	if l.cfg.Links.Captains != "" {
		return "Here are the captain's guidelines:\n" + l.cfg.Links.Captains
	}
	return fmt.Sprintf("The %s league does not have captains guidelines.", l.cfg.Name)
}

// FormatPairingsLink returns the pairings/standings sheet response.
func (l *League) FormatPairingsLink() string {
	if l.cfg.Links.Team != "" {
		return "Here is the pairings/standings sheet:\n" + l.cfg.Links.Team +
			"\nAlternatively, try [ @leaguebot pairing [competitor] ]"
	}
	return fmt.Sprintf("The %s league does not have a pairings/standings sheet.", l.cfg.Name)
}

// FormatRulesLink returns the rules and regulations response.
func (l *League) FormatRulesLink() string {
	if l.cfg.Links.Rules != "" {
		return "Here are the rules and regulations:\n" + l.cfg.Links.Rules
	}
	return fmt.Sprintf("The %s league does not have a rules link.", l.cfg.Name)
}

// FormatStarterGuide returns the starter guide response.
func (l *League) FormatStarterGuide() string {
	if l.cfg.Links.Guide != "" {
		return "Here is everything you need to know:\n" + l.cfg.Links.Guide
	}
	return fmt.Sprintf("The %s league does not have a starter guide.", l.cfg.Name)
}

// FormatRegistration returns the signup response.
func (l *League) FormatRegistration() string {
	if l.cfg.Links.Registration != "" {
		return "You can sign up here:\n" + l.cfg.Links.Registration
	}
	return fmt.Sprintf("The %s league does not have an active signup form at the moment.", l.cfg.Name)
}
