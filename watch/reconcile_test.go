package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/castling-club/leaguebot/config"
	"github.com/castling-club/leaguebot/league"
	"github.com/castling-club/leaguebot/lichess"
	"github.com/castling-club/leaguebot/notify"
	"github.com/castling-club/leaguebot/telemetry"
)

func init() { telemetry.Init() }

type fakeValidator struct{ result ValidationResult }

func (f fakeValidator) ValidateGameDetails(_ context.Context, _ *league.League, _ lichess.GameEvent) ValidationResult {
	return f.result
}

type fakeFetcher struct {
	details *lichess.GameDetails
	err     error
	calls   int
}

func (f *fakeFetcher) FetchGameDetails(_ context.Context, gameID string) (*lichess.GameDetails, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.details != nil {
		return f.details, nil
	}
	return &lichess.GameDetails{ID: gameID}, nil
}

type fakeUpdater struct {
	mu    sync.Mutex
	res   UpdateResult
	err   error
	calls int
}

func (f *fakeUpdater) UpdateGamelink(_ context.Context, _ *league.League, _ *lichess.GameDetails) (UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakeUpdater) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recorder) Say(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.msgs...)
}

func testLeague() *league.League {
	cfg := config.LeagueConfig{
		Name: "45+45",
		Channels: config.ChannelConfig{
			Gamelinks: "C-GAMES",
			Results:   "C-RESULTS",
		},
	}
	return league.New(cfg, nil, nil)
}

func startedEvent() lichess.GameEvent {
	return lichess.GameEvent{ID: "abc12345", Status: lichess.StatusStarted}
}

func finishedEvent() lichess.GameEvent {
	return lichess.GameEvent{ID: "abc12345", Status: lichess.StatusMate}
}

func newTestEngine(v Validator, f *fakeFetcher, u *fakeUpdater, r *recorder) *Engine {
	return NewEngine(testLeague(), v, f, u, r)
}

func TestProcessGameEventNoPairing(t *testing.T) {
	fetcher := &fakeFetcher{}
	updater := &fakeUpdater{}
	rec := &recorder{}
	e := newTestEngine(fakeValidator{ValidationResult{Reason: "the pairing was not found"}}, fetcher, updater, rec)

	e.ProcessGameEvent(context.Background(), startedEvent())

	if len(rec.msgs) != 0 || fetcher.calls != 0 || updater.calls != 0 {
		t.Errorf("unmatched event must be dropped silently: msgs=%d fetch=%d update=%d",
			len(rec.msgs), fetcher.calls, updater.calls)
	}
}

func TestProcessGameEventDuplicateResult(t *testing.T) {
	pairing := &league.Pairing{White: "alice", Black: "bob", Result: "1-0"}
	fetcher := &fakeFetcher{}
	rec := &recorder{}
	e := newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}}, fetcher, &fakeUpdater{}, rec)

	e.ProcessGameEvent(context.Background(), startedEvent())

	if fetcher.calls != 0 {
		t.Error("must not fetch details for duplicate result")
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(rec.msgs))
	}
	if rec.msgs[0].Channel != "C-GAMES" || !strings.Contains(rec.msgs[0].Text, "already a result set") {
		t.Errorf("message = %+v", rec.msgs[0])
	}

	// Terminal events never draw the warning.
	rec.msgs = nil
	e.ProcessGameEvent(context.Background(), finishedEvent())
	if len(rec.msgs) != 0 {
		t.Errorf("finished event warned: %+v", rec.msgs)
	}
}

func TestProcessGameEventDuplicateGamelink(t *testing.T) {
	pairing := &league.Pairing{White: "alice", Black: "bob", GameLink: "https://lichess.org/other999"}
	rec := &recorder{}
	fetcher := &fakeFetcher{}
	e := newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}}, fetcher, &fakeUpdater{}, rec)

	e.ProcessGameEvent(context.Background(), startedEvent())

	if fetcher.calls != 0 {
		t.Error("must not fetch details when another gamelink is set")
	}
	if len(rec.msgs) != 1 || !strings.Contains(rec.msgs[0].Text, "already a gamelink set") {
		t.Fatalf("messages = %+v", rec.msgs)
	}
}

func TestProcessGameEventCommit(t *testing.T) {
	pairing := &league.Pairing{White: "alice", Black: "bob"}
	fetcher := &fakeFetcher{}
	updater := &fakeUpdater{res: UpdateResult{
		GamelinkChanged: true,
		ResultChanged:   true,
		Gamelink:        "https://lichess.org/abc12345",
		Result:          "1-0",
	}}
	rec := &recorder{}
	e := newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}}, fetcher, updater, rec)

	e.ProcessGameEvent(context.Background(), startedEvent())

	if fetcher.calls != 1 || updater.calls != 1 {
		t.Fatalf("fetch=%d update=%d, want 1 each", fetcher.calls, updater.calls)
	}
	if len(rec.msgs) != 2 {
		t.Fatalf("messages = %+v, want gamelink + result", rec.msgs)
	}
	if rec.msgs[0].Channel != "C-GAMES" || rec.msgs[0].Text != "<@alice> vs <@bob>: <https://lichess.org/abc12345>" {
		t.Errorf("gamelink message = %+v", rec.msgs[0])
	}
	if rec.msgs[0].Attachments == nil {
		t.Error("gamelink message must carry attachments for link parsing")
	}
	if rec.msgs[1].Channel != "C-RESULTS" || rec.msgs[1].Text != "<@alice> 1-0 <@bob>" {
		t.Errorf("result message = %+v", rec.msgs[1])
	}
}

func TestProcessGameEventCommitMatchingGamelink(t *testing.T) {
	// A gamelink already pointing at this game id is not a conflict.
	pairing := &league.Pairing{White: "alice", Black: "bob", GameLink: "https://lichess.org/abc12345"}
	updater := &fakeUpdater{res: UpdateResult{ResultChanged: true, Result: "0-1"}}
	rec := &recorder{}
	e := newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}}, &fakeFetcher{}, updater, rec)

	e.ProcessGameEvent(context.Background(), finishedEvent())

	if updater.calls != 1 {
		t.Fatal("expected commit")
	}
	if len(rec.msgs) != 1 || rec.msgs[0].Text != "<@alice> 0-1 <@bob>" {
		t.Errorf("messages = %+v, want result announcement only", rec.msgs)
	}
}

func TestProcessGameEventCommitNoop(t *testing.T) {
	pairing := &league.Pairing{White: "alice", Black: "bob"}
	updater := &fakeUpdater{res: UpdateResult{}}
	rec := &recorder{}
	e := newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}}, &fakeFetcher{}, updater, rec)

	e.ProcessGameEvent(context.Background(), startedEvent())

	if len(rec.msgs) != 0 {
		t.Errorf("nothing changed but announced: %+v", rec.msgs)
	}
}

func TestProcessGameEventCommitErrors(t *testing.T) {
	pairing := &league.Pairing{White: "alice", Black: "bob"}

	rec := &recorder{}
	e := newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}},
		&fakeFetcher{err: errors.New("api down")}, &fakeUpdater{}, rec)
	e.ProcessGameEvent(context.Background(), startedEvent())
	if len(rec.msgs) != 0 {
		t.Errorf("fetch failure announced: %+v", rec.msgs)
	}

	rec = &recorder{}
	e = newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}},
		&fakeFetcher{}, &fakeUpdater{err: errors.New("no such pairing")}, rec)
	e.ProcessGameEvent(context.Background(), startedEvent())
	if len(rec.msgs) != 0 {
		t.Errorf("update failure announced: %+v", rec.msgs)
	}
}

func TestProcessGameEventMismatchWarning(t *testing.T) {
	pairing := &league.Pairing{White: "alice", Black: "bob"}
	rec := &recorder{}
	e := newTestEngine(fakeValidator{ValidationResult{Pairing: pairing, Reason: "the colors are reversed"}},
		&fakeFetcher{}, &fakeUpdater{}, rec)

	e.ProcessGameEvent(context.Background(), startedEvent())

	if len(rec.msgs) != 2 {
		t.Fatalf("messages = %+v, want warning + followup", rec.msgs)
	}
	if rec.msgs[0].Text != "<@alice>,  <@bob>: Your game is *not valid* because *the colors are reversed*" {
		t.Errorf("warning = %q", rec.msgs[0].Text)
	}
	if !strings.Contains(rec.msgs[1].Text, "If this was a mistake") {
		t.Errorf("followup = %q", rec.msgs[1].Text)
	}

	// A finished invalid game is nobody's business.
	rec.msgs = nil
	e.ProcessGameEvent(context.Background(), finishedEvent())
	if len(rec.msgs) != 0 {
		t.Errorf("finished invalid game warned: %+v", rec.msgs)
	}
}

func TestProcessGameEventTimeControlTolerance(t *testing.T) {
	now := time.Date(2024, 4, 16, 16, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		scheduled *time.Time
		wantWarn  bool
	}{
		{"unscheduled", nil, false},
		{"hours away", timePtr(now.Add(-5 * time.Hour)), false},
		{"inside window", timePtr(now.Add(90 * time.Minute)), true},
		{"just before", timePtr(now.Add(-30 * time.Minute)), true},
		{"exactly two hours", timePtr(now.Add(-2 * time.Hour)), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pairing := &league.Pairing{White: "alice", Black: "bob", ScheduledDate: c.scheduled}
			rec := &recorder{}
			e := newTestEngine(fakeValidator{ValidationResult{
				Pairing:                pairing,
				Reason:                 "the time control is incorrect",
				TimeControlIsIncorrect: true,
			}}, &fakeFetcher{}, &fakeUpdater{}, rec)
			e.now = func() time.Time { return now }

			e.ProcessGameEvent(context.Background(), startedEvent())

			warned := len(rec.msgs) > 0
			if warned != c.wantWarn {
				t.Errorf("warned = %v, want %v (msgs %+v)", warned, c.wantWarn, rec.msgs)
			}
		})
	}
}

func TestProcessGameEventNotifierFailureTolerated(t *testing.T) {
	pairing := &league.Pairing{White: "alice", Black: "bob"}
	updater := &fakeUpdater{res: UpdateResult{GamelinkChanged: true, Gamelink: "https://lichess.org/abc12345"}}
	rec := &recorder{err: errors.New("slack down")}
	e := newTestEngine(fakeValidator{ValidationResult{Valid: true, Pairing: pairing}}, &fakeFetcher{}, updater, rec)

	// Must not panic or abort; the failure is logged and the stream goes on.
	e.ProcessGameEvent(context.Background(), startedEvent())

	if updater.calls != 1 {
		t.Error("store update must happen before notification")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
