package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env         string `envconfig:"ENV" default:"local"`
	HTTPHost    string `envconfig:"HTTP_HOST" default:""`
	HTTPPort    string `envconfig:"HTTP_PORT" default:"3720"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"debug"`
	ProjectRoot string `envconfig:"PROJECT_ROOT" default:"."`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".clawde/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"clawde/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type PushEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `envconfig:"VAPID_SUBJECT" default:"mailto:admin@example.com"`
}

type AgentEnv struct {
	GatewayURL   string `envconfig:"AGENT_GATEWAY_URL" default:"http://localhost:3000/api/v1"`
	GatewayToken string `envconfig:"AGENT_GATEWAY_TOKEN"`
}

type Env struct {
	BaseEnv
	StorageEnv
	PushEnv
	AgentEnv
}

const namespace = "CLAWDE"

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

func PushEnvFromEnv(env *Env) *PushEnv {
	return &env.PushEnv
}

func AgentEnvFromEnv(env *Env) *AgentEnv {
	return &env.AgentEnv
}
