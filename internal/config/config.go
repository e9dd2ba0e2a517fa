// Package config loads the logfire configuration file.
//
// A configuration file is JSON, CUE or YAML. Every format is unified with
// the embedded CUE schema, which supplies defaults and rejects unknown keys,
// so the three formats validate identically.
package config

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/schema"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override file settings.
const (
	EnvRedisAddr = "LOGFIRE_REDIS_ADDR"
	EnvPrefix    = "LOGFIRE_PREFIX"
	EnvAuth      = "LOGFIRE_AUTH"
)

// Config is the decoded configuration.
type Config struct {
	Prefix        string           `json:"prefix"`
	Redis         Redis            `json:"redis"`
	FlushInterval int              `json:"ttl_flush_interval"`
	DisableFlush  bool             `json:"disable_flush"`
	Auth          string           `json:"auth,omitempty"`
	StampEvent    bool             `json:"stamp_event"`
	Timezone      string           `json:"timezone"`
	RateLimit     RateLimit        `json:"rate_limit"`
	SweepLog      string           `json:"sweep_log,omitempty"`
	Events        map[string]Event `json:"events"`
}

// Redis holds connection settings.
type Redis struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Auth string `json:"auth,omitempty"`
	DB   int    `json:"db"`
}

// RateLimit configures the per-server request limiter.
type RateLimit struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// Event declares one event type.
type Event struct {
	TTL    int64            `json:"ttl,omitempty"`
	Fields map[string]Field `json:"fields"`
}

// Field declares one event field.
type Field struct {
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Error is a configuration error, positioned when the source allows it.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Load reads path, validates it and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration of an empty file.
func Default() *Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return cfg
}

// Parse validates data against the schema. The file extension of name
// selects the format; anything other than .yaml or .yml is read as CUE,
// which includes JSON.
func Parse(name string, data []byte) (*Config, error) {
	ctx := cuecontext.New()

	def := ctx.CompileString(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	var v cue.Value
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		raw := map[string]any{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &Error{Path: name, Message: fmt.Sprintf("invalid YAML: %v", err)}
		}
		if raw == nil {
			raw = map[string]any{}
		}
		v = ctx.Encode(raw)
	default:
		v = ctx.CompileBytes(data, cue.Filename(name))
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(name, err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(name, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(name, err)
	}
	if cfg.Events == nil {
		cfg.Events = map[string]Event{}
	}
	return &cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if addr, ok := lookup(EnvRedisAddr); ok && addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return &Error{Path: EnvRedisAddr, Message: fmt.Sprintf("invalid address %q: %v", addr, err)}
		}
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return &Error{Path: EnvRedisAddr, Message: fmt.Sprintf("invalid port %q", port)}
		}
		c.Redis.Host, c.Redis.Port = host, p
	}
	if prefix, ok := lookup(EnvPrefix); ok && prefix != "" {
		c.Prefix = prefix
	}
	if auth, ok := lookup(EnvAuth); ok {
		c.Auth = auth
	}
	return nil
}

// Registry builds the schema registry for the declared events.
func (c *Config) Registry() (*schema.Registry, error) {
	defs := make(map[string]schema.EventDef, len(c.Events))
	for name, ev := range c.Events {
		fields := make(map[string]schema.FieldDef, len(ev.Fields))
		for field, f := range ev.Fields {
			t, err := ir.ParseFieldType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("event %s field %s: %w", name, field, err)
			}
			fields[field] = schema.FieldDef{Type: t, Required: f.Required}
		}
		defs[name] = schema.EventDef{TTL: ev.TTL, Fields: fields}
	}
	return schema.New(defs)
}

// RedisOptions returns the go-redis connection options.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port)),
		Password: c.Redis.Auth,
		DB:       c.Redis.DB,
	}
}

// Location resolves the time zone used for calendar buckets.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &Error{Path: "timezone", Message: fmt.Sprintf("unknown time zone %q", c.Timezone)}
	}
	return loc, nil
}

// Interval returns the sweeper interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.FlushInterval) * time.Second
}

func formatCUEError(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Path: name, Message: err.Error()}
	}

	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if path := strings.Join(first.Path(), "."); path != "" {
		msg = path + ": " + msg
	}

	e := &Error{Path: name, Message: msg}
	for _, pos := range cueerrors.Positions(first) {
		if pos.Filename() == name {
			e.Pos = pos
			break
		}
	}
	return e
}
