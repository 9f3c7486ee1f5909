package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the sample server configuration.
type Config struct {
	Addr      string           `yaml:"addr"`
	Prefix    string           `yaml:"prefix"`
	Namespace string           `yaml:"namespace"`
	Title     string           `yaml:"title"`
	LogLevel  string           `yaml:"logLevel"`
	Postgres  PostgresConfig   `yaml:"postgres"`
	Redis     RedisConfig      `yaml:"redis"`
	JWT       JWTConfig        `yaml:"jwt"`
	RateLimit RateLimitConfig  `yaml:"rateLimit"`
	Cache     CacheConfig      `yaml:"cache"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Docs      DocsConfig       `yaml:"docs"`
	CORS      CORSConfig       `yaml:"cors"`
	Resources []ResourceConfig `yaml:"resources"`
}

// PostgresConfig selects SQL-backed repositories when DSN is set.
type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"tablePrefix"`
}

// RedisConfig selects the Redis store and limiter when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// JWTConfig enables bearer authentication of write routes when Secret is set.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Leeway time.Duration `yaml:"leeway"`
	Scopes []string      `yaml:"scopes"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Path string `yaml:"path"`
}

type DocsConfig struct {
	Path string `yaml:"path"`
}

type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// ResourceConfig declares one CRUD resource. Exactly one of ContentType
// and Table is set.
type ResourceConfig struct {
	Name        string           `yaml:"name"`
	ContentType string           `yaml:"contentType"`
	Table       string           `yaml:"table"`
	PrimaryKey  string           `yaml:"primaryKey"`
	Fields      []string         `yaml:"fields"`
	Filters     []string         `yaml:"filters"`
	Sort        []string         `yaml:"sort"`
	Public      bool             `yaml:"public"`
	Scopes      []string         `yaml:"scopes"`
	Seed        []map[string]any `yaml:"seed"`
}

const defaultConfig = `
addr: ":8080"
prefix: /wp-json
namespace: acme/v1
title: Acme content API
logLevel: info
rateLimit:
  limit: 120
  window: 1m
cache:
  ttl: 30s
metrics:
  path: /metrics
docs:
  path: /docs
resources:
  - name: articles
    contentType: post
    fields: [id, title, slug, excerpt, date, status, author]
    filters: [status, author, after, before]
    sort: [id, date, title]
    scopes: [content:write]
    seed:
      - {title: Hello world, slug: hello-world, status: publish, author: 1, date: "2024-03-01T09:00:00+00:00"}
      - {title: Upcoming, slug: upcoming, status: draft, author: 1, date: "2024-04-01T09:00:00+00:00"}
  - name: products
    table: products
    primaryKey: id
    fields: [id, sku, name, price]
    filters: [sku]
    sort: [id, price]
    seed:
      - {sku: A-1, name: Anvil, price: 99.5}
`

// LoadConfig reads path over the built-in defaults. An empty path returns
// the defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfig), &cfg); err != nil {
		return Config{}, fmt.Errorf("default config: %w", err)
	}
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-provided CLI flag
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first structural problem of c.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	seen := map[string]bool{}
	for i, r := range c.Resources {
		if r.Name == "" {
			return fmt.Errorf("resources[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("resources[%d]: duplicate resource %q", i, r.Name)
		}
		seen[r.Name] = true
		if (r.ContentType == "") == (r.Table == "") {
			return fmt.Errorf("resource %q: set exactly one of contentType and table", r.Name)
		}
	}
	return nil
}
