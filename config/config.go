// Package config loads environment variables and the league definitions file,
// providing a typed Config used across the service. It applies sensible
// defaults so the binary can run locally with minimal setup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Slack
	SlackToken string

	// HTTP
	HTTPAddr string

	// Leagues
	LeaguesFile     string
	RefreshInterval time.Duration

	// Lichess
	LichessBaseURL string
}

// SpreadsheetConfig identifies the league spreadsheet and how to read it.
type SpreadsheetConfig struct {
	Key             string `yaml:"key"`
	CredentialsFile string `yaml:"credentials_file"`
	ScheduleColname string `yaml:"schedule_colname"`
}

// ChannelConfig holds the chat channel ids a league posts to.
type ChannelConfig struct {
	Gamelinks string `yaml:"gamelinks"`
	Results   string `yaml:"results"`
}

// LinksConfig holds the public URLs for a league.
type LinksConfig struct {
	Rules        string `yaml:"rules"`
	Team         string `yaml:"team"`
	Guide        string `yaml:"guide"`
	Captains     string `yaml:"captains"`
	Registration string `yaml:"registration"`
}

// LeagueConfig is one league definition from the leagues file.
type LeagueConfig struct {
	Name        string            `yaml:"-"`
	Spreadsheet SpreadsheetConfig `yaml:"spreadsheet"`
	Channels    ChannelConfig     `yaml:"channels"`
	Links       LinksConfig       `yaml:"links"`
	TimeControl string            `yaml:"time_control"` // "initial+increment" in seconds, e.g. "2700+45"
	Watch       bool              `yaml:"watch"`
}

// Load reads environment variables and applies defaults. It doesn't fail if
// the Slack token is missing; the notifier falls back to log-only mode.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.SlackToken = os.Getenv("SLACK_TOKEN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.LeaguesFile = os.Getenv("LEAGUES_FILE")
	if cfg.LeaguesFile == "" {
		cfg.LeaguesFile = "leagues.yaml"
	}

	cfg.RefreshInterval = 2 * time.Minute
	if v := os.Getenv("LEAGUE_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid LEAGUE_REFRESH_INTERVAL: %q", v)
		}
		cfg.RefreshInterval = d
	}

	cfg.LichessBaseURL = os.Getenv("LICHESS_BASE_URL")
	if cfg.LichessBaseURL == "" {
		cfg.LichessBaseURL = "https://lichess.org"
	}

	return cfg, nil
}

// LoadLeagues parses the league definitions YAML file. League names come from
// the map keys so they are unique by construction.
func LoadLeagues(path string) ([]LeagueConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read leagues file: %w", err)
	}
	var doc struct {
		Leagues map[string]LeagueConfig `yaml:"leagues"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse leagues file: %w", err)
	}
	out := make([]LeagueConfig, 0, len(doc.Leagues))
	for name, lc := range doc.Leagues {
		lc.Name = name
		if lc.Spreadsheet.Key == "" {
			return nil, fmt.Errorf("league %q: spreadsheet.key is required", name)
		}
		if lc.Spreadsheet.ScheduleColname == "" {
			return nil, fmt.Errorf("league %q: spreadsheet.schedule_colname is required", name)
		}
		out = append(out, lc)
	}
	return out, nil
}
