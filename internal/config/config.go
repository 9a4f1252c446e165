package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		CacheTTL string `yaml:"cacheTtl"`
	} `yaml:"quiz"`
	Engine struct {
		Tick string `yaml:"tick"`
		// Product-level knobs for the "currently leading" spotlight: a
		// participant qualifies within LeaderScoreGap of the top score, and
		// up to LeaderSampleSize of them are sampled.
		LeaderScoreGap   int `yaml:"leaderScoreGap"`
		LeaderSampleSize int `yaml:"leaderSampleSize"`
		EventBacklog     int `yaml:"eventBacklog"`
	} `yaml:"engine"`
}

// Load reads YAML config from path. A missing file is not an error profile
// we special-case; callers decide whether config is mandatory.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
