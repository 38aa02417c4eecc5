package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration. It is read from YAML; fields left out
// of the file keep their DefaultConfig values.
type Config struct {
	// --- Identity ---
	Name        string `yaml:"name"`
	WelcomeText string `yaml:"welcome_text"`

	// --- Listeners ---
	Port        int    `yaml:"port"`
	WebAddr     string `yaml:"web_addr"` // "" disables the web listener
	IdleTimeout int    `yaml:"idle_timeout"` // seconds, 0 = never

	// --- TLS for the web listener ---
	TLSDomain string `yaml:"tls_domain"` // Let's Encrypt host name
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`
	CertDir   string `yaml:"cert_dir"`  // self-signed certs and the autocert cache
	ACMEAddr  string `yaml:"acme_addr"` // challenge listener when tls_domain is set

	// --- Storage ---
	BoltPath              string `yaml:"bolt_path"` // "" keeps the world in memory
	JournalPath           string `yaml:"journal_path"`
	JournalRetentionHours int    `yaml:"journal_retention_hours"`
	JournalReplay         int    `yaml:"journal_replay"` // lines shown on reconnect
	SaveInterval          int    `yaml:"save_interval"`  // seconds between world saves, 0 = only at shutdown

	// --- Commands ---
	ManifestPath        string `yaml:"manifest_path"`
	Workers             int    `yaml:"workers"`
	MaxQueuedPerSession int    `yaml:"max_queued_per_session"`

	// --- Time ---
	HeartbeatMS int `yaml:"heartbeat_ms"`

	// --- Gameplay ---
	StartRoomID     string `yaml:"start_room_id"`
	StartRoomName   string `yaml:"start_room_name"`
	StartRoomDesc   string `yaml:"start_room_desc"`
	PlayerHealth    int    `yaml:"player_health"`
	PlayerAttack    int    `yaml:"player_attack"`
	PlayerDefense   int    `yaml:"player_defense"`
	RestSeconds     int    `yaml:"rest_seconds"`
	RestHeal        int    `yaml:"rest_heal"`
	AttackBalanceMS int    `yaml:"attack_balance_ms"`

	// --- Logging ---
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:                  "ThingMUD",
		WelcomeText:           "Welcome to ThingMUD.\r\nBy what name are you known? ",
		Port:                  4000,
		WebAddr:               ":8080",
		IdleTimeout:           3600,
		ACMEAddr:              ":80",
		JournalRetentionHours: 24,
		JournalReplay:         20,
		SaveInterval:          300,
		Workers:               4,
		MaxQueuedPerSession:   100,
		HeartbeatMS:           100,
		StartRoomID:           "room:start",
		StartRoomName:         "The Crossroads",
		StartRoomDesc:         "Dusty roads meet beneath a leaning signpost.",
		PlayerHealth:          20,
		PlayerAttack:          6,
		PlayerDefense:         2,
		RestSeconds:           5,
		RestHeal:              5,
		AttackBalanceMS:       2000,
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1")
	case c.HeartbeatMS < 1:
		return fmt.Errorf("heartbeat_ms must be positive")
	case c.StartRoomID == "":
		return fmt.Errorf("start_room_id is required")
	case c.PlayerHealth < 1:
		return fmt.Errorf("player_health must be positive")
	case (c.TLSCert == "") != (c.TLSKey == ""):
		return fmt.Errorf("tls_cert and tls_key must be set together")
	case c.TLSDomain != "" && c.CertDir == "":
		return fmt.Errorf("tls_domain needs cert_dir for the autocert cache")
	}
	return nil
}

func (c Config) heartbeat() time.Duration { return time.Duration(c.HeartbeatMS) * time.Millisecond }

func (c Config) idleTimeout() time.Duration { return time.Duration(c.IdleTimeout) * time.Second }

func (c Config) journalRetention() time.Duration {
	return time.Duration(c.JournalRetentionHours) * time.Hour
}
