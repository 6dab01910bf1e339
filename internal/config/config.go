// Package config loads the service configuration from a TOML file with
// CANVAS_* environment variable overrides. Defaults are applied in code, so
// an empty file (or none at all) yields a runnable local setup.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Governance GovernanceConfig `toml:"governance"`
	Economy    EconomyConfig    `toml:"economy"`
	Backup     BackupConfig     `toml:"backup"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type GovernanceConfig struct {
	VoteBaseCost    string `toml:"vote_base_cost"`
	MaxVoteStrength int    `toml:"max_vote_strength"`
}

type EconomyConfig struct {
	// SweepSchedule is a cron expression for the deferred-config
	// activation sweep.
	SweepSchedule string `toml:"sweep_schedule"`
}

type BackupConfig struct {
	S3Endpoint    string `toml:"s3_endpoint"`
	S3Bucket      string `toml:"s3_bucket"`
	S3Region      string `toml:"s3_region"`
	S3AccessKey   string `toml:"s3_access_key"`
	S3SecretKey   string `toml:"s3_secret_key"`
	Passphrase    string `toml:"passphrase"`
	ScheduleHour  int    `toml:"schedule_hour"`
	RetentionDays int    `toml:"retention_days"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Path: "canvas.db"},
		Governance: GovernanceConfig{
			VoteBaseCost:    "1",
			MaxVoteStrength: 1000,
		},
		Economy: EconomyConfig{SweepSchedule: "* * * * *"},
		Backup: BackupConfig{
			S3Region:      "us-east-1",
			ScheduleHour:  3,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the TOML file at path (missing file is fine) and then applies
// environment overrides on top.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "CANVAS_PORT")
	setString(&c.Database.Path, "CANVAS_DB_PATH")
	setString(&c.Governance.VoteBaseCost, "CANVAS_VOTE_BASE_COST")
	setInt(&c.Governance.MaxVoteStrength, "CANVAS_MAX_VOTE_STRENGTH")
	setString(&c.Economy.SweepSchedule, "CANVAS_SWEEP_SCHEDULE")
	setString(&c.Backup.S3Endpoint, "CANVAS_S3_ENDPOINT")
	setString(&c.Backup.S3Bucket, "CANVAS_S3_BUCKET")
	setString(&c.Backup.S3Region, "CANVAS_S3_REGION")
	setString(&c.Backup.S3AccessKey, "CANVAS_S3_ACCESS_KEY")
	setString(&c.Backup.S3SecretKey, "CANVAS_S3_SECRET_KEY")
	setString(&c.Backup.Passphrase, "CANVAS_BACKUP_PASSPHRASE")
	setInt(&c.Backup.ScheduleHour, "CANVAS_BACKUP_HOUR")
	setInt(&c.Backup.RetentionDays, "CANVAS_BACKUP_RETENTION_DAYS")
	setString(&c.Logging.Level, "CANVAS_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
