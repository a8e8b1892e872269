package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".dispatch/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"dispatch/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// SQLite settings (used when Type == "sqlite")
	SQLitePath string `envconfig:"SQLITE_PATH" default:".dispatch/dispatch.db"`
}

type RouterEnv struct {
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	Model           string        `envconfig:"ROUTER_MODEL" default:"claude-sonnet-4-5"`
	MaxTokens       int64         `envconfig:"ROUTER_MAX_TOKENS" default:"1024"`
	Timeout         time.Duration `envconfig:"ROUTER_TIMEOUT" default:"30s"`
}

type MonitorEnv struct {
	Interval       time.Duration `envconfig:"MONITOR_INTERVAL" default:"30s"`
	CheckInTimeout time.Duration `envconfig:"MONITOR_CHECKIN_TIMEOUT" default:"2m"`
	MaxCheckIns    int           `envconfig:"MONITOR_MAX_CHECKINS" default:"4"`
	// CheckIn selects the 90% check-in interaction: "inline" or "thread".
	CheckIn string `envconfig:"MONITOR_CHECKIN" default:"thread"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:dispatch@example.com"`
}

type AgentRunnerEnv struct {
	Enabled  bool          `envconfig:"AGENT_RUNNER_ENABLED" default:"false"`
	WorkDir  string        `envconfig:"AGENT_RUNNER_WORK_DIR" default:"."`
	MaxTurns int           `envconfig:"AGENT_RUNNER_MAX_TURNS" default:"20"`
	Timeout  time.Duration `envconfig:"AGENT_RUNNER_TIMEOUT" default:"10m"`
}

type RosterEnv struct {
	File  string `envconfig:"ROSTER_FILE" default:"roster.yaml"`
	Watch bool   `envconfig:"ROSTER_WATCH" default:"true"`
}

type Env struct {
	BaseEnv
	StorageEnv
	RouterEnv
	MonitorEnv
	VAPIDEnv
	AgentRunnerEnv
	RosterEnv
}

const namespace = "DISPATCH"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func RouterEnvFromEnv(env *Env) *RouterEnv {
	return &env.RouterEnv
}

func MonitorEnvFromEnv(env *Env) *MonitorEnv {
	return &env.MonitorEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}

func AgentRunnerEnvFromEnv(env *Env) *AgentRunnerEnv {
	return &env.AgentRunnerEnv
}

func RosterEnvFromEnv(env *Env) *RosterEnv {
	return &env.RosterEnv
}
