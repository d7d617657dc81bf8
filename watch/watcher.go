package watch

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castling-club/leaguebot/league"
	"github.com/castling-club/leaguebot/lichess"
	"github.com/castling-club/leaguebot/notify"
	"github.com/castling-club/leaguebot/telemetry"
)

// State is the watcher's connection lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateEnded      State = "ended"
	StateError      State = "error"
)

// Streamer opens the live feed for a set of usernames. Implemented by
// *lichess.Client.
type Streamer interface {
	StreamGames(ctx context.Context, usernames []string, handler func(lichess.GameEvent)) error
}

// Watcher owns the single live game-stream subscription for one league. It
// reacts to roster refreshes by reconnecting with the new tracked-username
// set, and reconnects without bound on stream end or transport error.
type Watcher struct {
	league *league.League
	stream Streamer
	engine *Engine

	// ReconnectDelay spaces reconnect attempts so a dead endpoint doesn't
	// hot-loop. Retries are unbounded.
	ReconnectDelay time.Duration

	mu        sync.Mutex
	state     State
	usernames []string

	restart chan struct{}
}

// NewWatcher builds a watcher and subscribes it to the league's roster
// refresh notifications. Call Run to start watching.
func NewWatcher(lg *league.League, stream Streamer, engine *Engine) *Watcher {
	w := &Watcher{
		league:         lg,
		stream:         stream,
		engine:         engine,
		ReconnectDelay: time.Second,
		state:          StateIdle,
		restart:        make(chan struct{}, 1),
	}
	lg.OnRefreshRosters(w.onRosterRefresh)
	return w
}

// TrackedUsernames derives the sorted, deduplicated canonical username set
// from the league's current teams.
func TrackedUsernames(lg *league.League) []string {
	players := lg.Players()
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return slices.Compact(names)
}

// onRosterRefresh recomputes the tracked set and signals a restart when it
// changed. It must not block: the signal channel is buffered and a pending
// restart already covers any newer change.
func (w *Watcher) onRosterRefresh() {
	names := TrackedUsernames(w.league)
	w.mu.Lock()
	changed := !slices.Equal(names, w.usernames)
	if changed {
		telemetry.TrackedPlayersGauge.Add(float64(len(names) - len(w.usernames)))
		slog.Info("tracked usernames changed",
			slog.String("league", w.league.Name()),
			slog.Int("old", len(w.usernames)),
			slog.Int("new", len(names)))
		w.usernames = names
	}
	w.mu.Unlock()
	if changed {
		select {
		case w.restart <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Status reports the current lifecycle state and tracked-set size.
func (w *Watcher) Status() (State, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, len(w.usernames)
}

// LeagueName identifies the watched league.
func (w *Watcher) LeagueName() string { return w.league.Name() }

// Run watches for the lifetime of ctx. At most one connection is live at any
// time: the previous one is cancelled and drained before a new one opens.
func (w *Watcher) Run(ctx context.Context) {
	for {
		w.mu.Lock()
		names := slices.Clone(w.usernames)
		w.mu.Unlock()

		if len(names) == 0 {
			w.setState(StateIdle)
			select {
			case <-ctx.Done():
				return
			case <-w.restart:
				continue
			}
		}

		w.setState(StateConnecting)
		connCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- w.streamOnce(connCtx, names)
		}()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			w.setState(StateIdle)
			return
		case <-w.restart:
			slog.Info("restarting watcher because usernames have changed",
				slog.String("league", w.league.Name()))
			cancel()
			<-done
		case err := <-done:
			cancel()
			if err != nil {
				w.setState(StateError)
				slog.Error("game stream failed", slog.String("league", w.league.Name()), slog.Any("err", err))
			} else {
				w.setState(StateEnded)
				slog.Info("game stream ended", slog.String("league", w.league.Name()))
			}
			if ctx.Err() != nil {
				return
			}
			telemetry.StreamReconnects.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.ReconnectDelay):
			}
		}
	}
}

// streamOnce opens one subscription and pumps events into the engine
// sequentially until the stream finishes.
func (w *Watcher) streamOnce(ctx context.Context, names []string) error {
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("league", w.league.Name()))
	logger.Info("opening game stream", slog.Int("usernames", len(names)))

	telemetry.StreamConnects.Inc()
	telemetry.StreamsLiveGauge.Inc()
	defer telemetry.StreamsLiveGauge.Dec()

	w.setState(StateStreaming)
	return w.stream.StreamGames(ctx, names, func(event lichess.GameEvent) {
		telemetry.StreamEvents.Inc()
		w.engine.ProcessGameEvent(ctx, event)
	})
}

// WatchAllLeagues starts one watcher per league with live tracking enabled
// and returns them for status reporting.
func WatchAllLeagues(ctx context.Context, reg *league.Registry, client *lichess.Client, validator Validator, updater GameUpdater, notifier notify.Sayer) []*Watcher {
	var watchers []*Watcher
	for _, lg := range reg.All() {
		if !lg.Config().Watch {
			continue
		}
		slog.Info("watching league", slog.String("league", lg.Name()))
		engine := NewEngine(lg, validator, client, updater, notifier)
		w := NewWatcher(lg, client, engine)
		watchers = append(watchers, w)
		go w.Run(ctx)
	}
	return watchers
}
