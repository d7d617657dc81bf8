package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SLACK_TOKEN", "HTTP_ADDR", "LEAGUES_FILE", "LEAGUE_REFRESH_INTERVAL", "LICHESS_BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SlackToken != "" {
		t.Errorf("SlackToken = %q, want empty", cfg.SlackToken)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LeaguesFile != "leagues.yaml" {
		t.Errorf("LeaguesFile = %q", cfg.LeaguesFile)
	}
	if cfg.RefreshInterval != 2*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval)
	}
	if cfg.LichessBaseURL != "https://lichess.org" {
		t.Errorf("LichessBaseURL = %q", cfg.LichessBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLACK_TOKEN", "xoxb-test")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("LEAGUE_REFRESH_INTERVAL", "30s")
	t.Setenv("LICHESS_BASE_URL", "https://chess.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SlackToken != "xoxb-test" || cfg.HTTPAddr != ":9999" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RefreshInterval != 30*time.Second {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval)
	}
	if cfg.LichessBaseURL != "https://chess.example.com" {
		t.Errorf("LichessBaseURL = %q", cfg.LichessBaseURL)
	}
}

func TestLoadBadRefreshInterval(t *testing.T) {
	for _, bad := range []string{"nonsense", "-1m", "0"} {
		t.Setenv("LEAGUE_REFRESH_INTERVAL", bad)
		if _, err := Load(); err == nil {
			t.Errorf("Load accepted LEAGUE_REFRESH_INTERVAL=%q", bad)
		}
	}
}

const leaguesYAML = `leagues:
  "45+45":
    spreadsheet:
      key: "sheet-key-4545"
      credentials_file: "service_account.json"
      schedule_colname: "time"
    channels:
      gamelinks: "C-GAMES"
      results: "C-RESULTS"
    links:
      rules: "https://example.com/rules"
    time_control: "2700+45"
    watch: true
  lonewolf:
    spreadsheet:
      key: "sheet-key-lw"
      schedule_colname: "date/time"
`

func writeLeagues(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leagues.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLeagues(t *testing.T) {
	leagues, err := LoadLeagues(writeLeagues(t, leaguesYAML))
	if err != nil {
		t.Fatalf("LoadLeagues: %v", err)
	}
	if len(leagues) != 2 {
		t.Fatalf("got %d leagues", len(leagues))
	}

	byName := map[string]LeagueConfig{}
	for _, lc := range leagues {
		byName[lc.Name] = lc
	}
	team := byName["45+45"]
	if team.Spreadsheet.Key != "sheet-key-4545" || team.Spreadsheet.ScheduleColname != "time" {
		t.Errorf("spreadsheet = %+v", team.Spreadsheet)
	}
	if team.Channels.Gamelinks != "C-GAMES" || team.Channels.Results != "C-RESULTS" {
		t.Errorf("channels = %+v", team.Channels)
	}
	if team.TimeControl != "2700+45" || !team.Watch {
		t.Errorf("league = %+v", team)
	}
	if team.Links.Rules != "https://example.com/rules" {
		t.Errorf("links = %+v", team.Links)
	}

	wolf := byName["lonewolf"]
	if wolf.Watch || wolf.Spreadsheet.ScheduleColname != "date/time" {
		t.Errorf("lonewolf = %+v", wolf)
	}
}

func TestLoadLeaguesValidation(t *testing.T) {
	missingKey := `leagues:
  broken:
    spreadsheet:
      schedule_colname: "time"
`
	if _, err := LoadLeagues(writeLeagues(t, missingKey)); err == nil {
		t.Error("expected error for missing spreadsheet.key")
	}

	missingCol := `leagues:
  broken:
    spreadsheet:
      key: "k"
`
	if _, err := LoadLeagues(writeLeagues(t, missingCol)); err == nil {
		t.Error("expected error for missing schedule_colname")
	}

	if _, err := LoadLeagues(writeLeagues(t, "leagues: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}

	if _, err := LoadLeagues(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
