// Package league holds the authoritative in-memory roster and pairing state
// for one league, refreshed from the league spreadsheet. Refreshes build a new
// snapshot and swap it in atomically, so readers always see a consistent view
// without locking.
package league

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castling-club/leaguebot/config"
	"github.com/castling-club/leaguebot/sheets"
	"github.com/castling-club/leaguebot/telemetry"
)

const boardsPerTeam = 6

// Player is one rostered league member.
type Player struct {
	Name     string // canonical username
	Rating   int
	TZOffset int // seconds east of UTC, 0 when unknown
	Team     *Team
}

// Team is one competing team: a name, six board slots in order, and an
// optional captain.
type Team struct {
	Name    string
	Roster  []*Player
	Captain *Player
}

// Pairing is one round's matchup between two canonical player names.
type Pairing struct {
	White         string
	Black         string
	ScheduledDate *time.Time // UTC, nil when unscheduled
	Result        string
	ResultLink    string
	GameLink      string
}

// RatingSource fetches a player's current rating from the chess server.
type RatingSource interface {
	PlayerRating(ctx context.Context, username string) (int, error)
}

// snapshot is the immutable state replaced wholesale on refresh.
type snapshot struct {
	teams       []*Team
	pairings    []Pairing
	lastUpdated time.Time
}

// League wires a spreadsheet row source and a rating source to the snapshot
// state for one configured league.
type League struct {
	cfg     config.LeagueConfig
	rows    sheets.RowSource
	ratings RatingSource

	snap atomic.Pointer[snapshot]

	refreshMu sync.Mutex // serializes refresh writers

	subMu      sync.Mutex
	rosterSubs []func()

	now func() time.Time
}

// New builds a League. The snapshot starts empty until the first refresh.
func New(cfg config.LeagueConfig, rows sheets.RowSource, ratings RatingSource) *League {
	l := &League{cfg: cfg, rows: rows, ratings: ratings, now: time.Now}
	l.snap.Store(&snapshot{})
	return l
}

// Name returns the configured league name.
func (l *League) Name() string { return l.cfg.Name }

// Config returns the league's configuration (channels, links, spreadsheet).
func (l *League) Config() config.LeagueConfig { return l.cfg }

// OnRefreshRosters registers fn to run after every successful roster refresh.
// Handlers run synchronously on the refreshing goroutine and must not block.
func (l *League) OnRefreshRosters(fn func()) {
	l.subMu.Lock()
	l.rosterSubs = append(l.rosterSubs, fn)
	l.subMu.Unlock()
}

func (l *League) notifyRosterRefresh() {
	l.subMu.Lock()
	subs := make([]func(), len(l.rosterSubs))
	copy(subs, l.rosterSubs)
	l.subMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (l *League) snapshot() *snapshot { return l.snap.Load() }

// CanonicalUsername strips ordering suffixes (everything after the first
// space) and the captain marker from a spreadsheet name.
func CanonicalUsername(name string) string {
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name = name[:i]
	}
	return strings.Replace(name, "*", "", 1)
}

// Refresh reloads rosters and the current round's schedules.
func (l *League) Refresh(ctx context.Context) error {
	if _, err := l.RefreshRosters(ctx); err != nil {
		return fmt.Errorf("refresh rosters: %w", err)
	}
	if _, err := l.RefreshCurrentRoundSchedules(ctx); err != nil {
		return fmt.Errorf("refresh schedules: %w", err)
	}
	return nil
}

// RefreshRosters reads all roster rows, builds the team list and atomically
// replaces the previous one. Rows with any missing required cell and
// non-competing buckets are excluded. On error the old snapshot is kept.
func (l *League) RefreshRosters(ctx context.Context) ([]*Team, error) {
	opt := sheets.QueryOptions{MinRow: 1, MaxRow: 100, MinCol: 1, MaxCol: 20, ReturnEmpty: true}
	rows, err := l.rows.Rows(ctx, l.cfg.Spreadsheet.Key, opt, func(title string) bool {
		return strings.Contains(strings.ToLower(title), "rosters")
	})
	if err != nil {
		telemetry.RefreshFailures.Inc()
		return nil, err
	}

	var teams []*Team
	for _, row := range rows {
		team, ok := teamFromRow(row)
		if !ok {
			continue
		}
		teams = append(teams, team)
	}

	l.refreshMu.Lock()
	old := l.snapshot()
	l.snap.Store(&snapshot{teams: teams, pairings: old.pairings, lastUpdated: l.now().UTC()})
	l.refreshMu.Unlock()

	slog.Info("rosters refreshed", slog.String("league", l.cfg.Name), slog.Int("teams", len(teams)))
	l.notifyRosterRefresh()
	return teams, nil
}

// teamFromRow builds one team from a roster row, or reports the row excluded.
func teamFromRow(row sheets.Row) (*Team, bool) {
	name := row["teams"].Value
	if name == "" {
		return nil, false
	}
	if strings.ToLower(name) == "alternates" {
		// Non-competing bucket.
		return nil, false
	}
	team := &Team{Name: name}
	for board := 1; board <= boardsPerTeam; board++ {
		raw := row[fmt.Sprintf("board %d", board)].Value
		ratingStr := row[fmt.Sprintf("rating %d", board)].Value
		if raw == "" || ratingStr == "" {
			return nil, false
		}
		rating, err := strconv.Atoi(strings.TrimSpace(ratingStr))
		if err != nil {
			return nil, false
		}
		player := &Player{Name: CanonicalUsername(raw), Rating: rating, Team: team}
		if raw != player.Name && strings.HasSuffix(raw, "*") {
			team.Captain = player
		}
		team.Roster = append(team.Roster, player)
	}
	return team, true
}

// RefreshCurrentRoundSchedules reads the pairing rows for the current round
// and atomically replaces the previous pairing list.
func (l *League) RefreshCurrentRoundSchedules(ctx context.Context) ([]Pairing, error) {
	opt := sheets.QueryOptions{MinRow: 1, MaxRow: 100, MinCol: 1, MaxCol: 8, ReturnEmpty: true}
	rows, err := l.rows.PairingRows(ctx, l.cfg.Spreadsheet.Key, opt)
	if err != nil {
		telemetry.RefreshFailures.Inc()
		return nil, err
	}

	year := l.now().UTC().Year()
	var pairings []Pairing
	for _, row := range rows {
		white := row["white"].Value
		black := row["black"].Value
		if white == "" || black == "" {
			continue
		}
		text, href := resultLink(row["result"])
		p := Pairing{
			White:         CanonicalUsername(white),
			Black:         CanonicalUsername(black),
			Result:        text,
			ResultLink:    href,
			GameLink:      gameLink(row["gamelink"]),
			ScheduledDate: ParseScheduledDate(row[l.cfg.Spreadsheet.ScheduleColname].Value, year),
		}
		pairings = append(pairings, p)
	}

	l.refreshMu.Lock()
	old := l.snapshot()
	l.snap.Store(&snapshot{teams: old.teams, pairings: pairings, lastUpdated: l.now().UTC()})
	l.refreshMu.Unlock()

	slog.Info("schedules refreshed", slog.String("league", l.cfg.Name), slog.Int("pairings", len(pairings)))
	return pairings, nil
}

// resultLink derives the result text and link, preferring a hyperlink
// formula's target and text over the plain cell value.
func resultLink(cell sheets.Cell) (text, href string) {
	if cell.Formula != "" {
		hl := sheets.ParseHyperlink(cell.Formula)
		if hl != (sheets.Hyperlink{}) {
			return hl.Text, hl.Href
		}
	}
	return cell.Value, ""
}

func gameLink(cell sheets.Cell) string {
	if cell.Formula != "" {
		if hl := sheets.ParseHyperlink(cell.Formula); hl.Href != "" {
			return hl.Href
		}
	}
	return cell.Value
}

// ParseScheduledDate parses schedule-column free text of the form
// "MM/DD @ HH:mm" as a UTC instant anchored to the given year. Anything else
// yields nil (unscheduled), never an error.
func ParseScheduledDate(text string, year int) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006/01/02 @ 15:04", fmt.Sprintf("%d/%s", year, text), time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// UpdatePairingGame records the gamelink and result for the pairing between
// white and black (exact canonical names), returning what actually changed.
// The snapshot is copy-on-write swapped so concurrent readers stay
// consistent; writers are serialized by the refresh mutex.
func (l *League) UpdatePairingGame(white, black, gamelink, result string) (linkChanged, resultChanged bool, err error) {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	old := l.snapshot()
	pairings := make([]Pairing, len(old.pairings))
	copy(pairings, old.pairings)

	found := false
	for i := range pairings {
		p := &pairings[i]
		if !strings.EqualFold(p.White, white) || !strings.EqualFold(p.Black, black) {
			continue
		}
		found = true
		if gamelink != "" && p.GameLink != gamelink {
			p.GameLink = gamelink
			linkChanged = true
		}
		if result != "" && p.Result != result {
			p.Result = result
			resultChanged = true
		}
		break
	}
	if !found {
		return false, false, fmt.Errorf("unable to find pairing %s vs %s", white, black)
	}
	if linkChanged || resultChanged {
		l.snap.Store(&snapshot{teams: old.teams, pairings: pairings, lastUpdated: l.now().UTC()})
	}
	return linkChanged, resultChanged, nil
}

// Teams returns the teams of the current snapshot.
func (l *League) Teams() []*Team { return l.snapshot().teams }

// Pairings returns the current round's pairings.
func (l *League) Pairings() []Pairing { return l.snapshot().pairings }

// Players returns every rostered player across all teams.
func (l *League) Players() []*Player {
	var players []*Player
	for _, team := range l.snapshot().teams {
		players = append(players, team.Roster...)
	}
	return players
}

// Board returns the players occupying board n (1-based) across all teams.
func (l *League) Board(n int) []*Player {
	var players []*Player
	for _, team := range l.snapshot().teams {
		if n >= 1 && n-1 < len(team.Roster) {
			players = append(players, team.Roster[n-1])
		}
	}
	return players
}

// Captains returns each team's captain; teams without one contribute nil,
// preserving positional correspondence with Teams.
func (l *League) Captains() []*Player {
	var captains []*Player
	for _, team := range l.snapshot().teams {
		captains = append(captains, team.Captain)
	}
	return captains
}

// LastUpdated reports when the snapshot last changed.
func (l *League) LastUpdated() time.Time { return l.snapshot().lastUpdated }

// DebugMessage summarizes the league state for diagnostics.
func (l *League) DebugMessage() string {
	snap := l.snapshot()
	age := l.now().UTC().Sub(snap.lastUpdated)
	return fmt.Sprintf("DEBUG:\nLeague: %s\nTotal Pairings: %d\nLast Updated: %s [%s ago]",
		l.cfg.Name, len(snap.pairings), snap.lastUpdated.Format("2006-01-02 15:04 UTC"), humanDuration(age))
}
