// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads therapyflow configuration with precedence
// ENV > YAML file > defaults, validates it, and watches the file for changes.
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	Version string `yaml:"-"`

	DataDir       string              `yaml:"dataDir"`
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Store         StoreConfig         `yaml:"store"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Notify        NotifyConfig        `yaml:"notify"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	RateLimitRPM    int           `yaml:"rateLimitRPM"` // 0 disables
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type StoreConfig struct {
	Backend         string        `yaml:"backend"` // memory|sqlite|badger|mongo
	Path            string        `yaml:"path"`
	MongoURI        string        `yaml:"mongoURI"`
	MongoDatabase   string        `yaml:"mongoDatabase"`
	MongoCollection string        `yaml:"mongoCollection"`
	MongoTimeout    time.Duration `yaml:"mongoTimeout"`
}

type TranscriptionConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	APIKey            string        `yaml:"apiKey"`
	AuthScheme        string        `yaml:"authScheme"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	MaxPollInterval   time.Duration `yaml:"maxPollInterval"`
	PollBackoff       float64       `yaml:"pollBackoff"`
	MaxPolls          int           `yaml:"maxPolls"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	BreakerThreshold  int           `yaml:"breakerThreshold"`
	BreakerReset      time.Duration `yaml:"breakerReset"`
}

type PipelineConfig struct {
	MaxAudioBytes       int64         `yaml:"maxAudioBytes"`
	ContinuationTimeout time.Duration `yaml:"continuationTimeout"`
	UpdateAttempts      int           `yaml:"updateAttempts"`
	UpdateBackoff       time.Duration `yaml:"updateBackoff"`
	SpoolDir            string        `yaml:"spoolDir"`
	StaleAfter          time.Duration `yaml:"staleAfter"`
	SweepInterval       time.Duration `yaml:"sweepInterval"`
}

type NotifyConfig struct {
	BufferSize int    `yaml:"bufferSize"`
	Channel    string `yaml:"channel"`
}

// RedisConfig enables the cross-replica relay and the shared cache.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend"` // none|memory|redis
	TTL     time.Duration `yaml:"ttl"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc|http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir: "data",
		Server: ServerConfig{
			ListenAddr: ":5000",
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:3000",
				"http://127.0.0.1:5173",
			},
			RateLimitRPM:    600,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Service: "therapyflow"},
		Store: StoreConfig{
			Backend:         "sqlite",
			MongoDatabase:   "therapyflow",
			MongoCollection: "sessions",
			MongoTimeout:    5 * time.Second,
		},
		Transcription: TranscriptionConfig{
			BaseURL:          "https://api.assemblyai.com/v2",
			PollInterval:     3 * time.Second,
			MaxPollInterval:  30 * time.Second,
			PollBackoff:      1.0,
			Timeout:          10 * time.Minute,
			RequestTimeout:   30 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxAudioBytes:       10 << 20,
			ContinuationTimeout: 15 * time.Minute,
			UpdateAttempts:      3,
			UpdateBackoff:       200 * time.Millisecond,
			StaleAfter:          20 * time.Minute,
			SweepInterval:       time.Minute,
		},
		Notify: NotifyConfig{BufferSize: 64, Channel: "therapists"},
		Cache:  CacheConfig{Backend: "memory", TTL: 10 * time.Minute},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
