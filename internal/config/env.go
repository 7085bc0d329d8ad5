package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env                string `envconfig:"ENV" default:"local"`
	HTTPHost           string `envconfig:"HTTP_HOST" default:""`
	HTTPPort           string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"debug"`
	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".prepboard/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"prepboard/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// StoreEnv selects where board and task documents live. "yaml" keeps them as
// documents on the configured Storage, "mongo" uses a MongoDB database.
type StoreEnv struct {
	Type          string `envconfig:"STORE_TYPE" default:"yaml"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"prepboard"`
}

type AttachmentEnv struct {
	MaxBytes int64 `envconfig:"ATTACHMENT_MAX_BYTES" default:"10485760"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type RealtimeEnv struct {
	SendBuffer int `envconfig:"WS_SEND_BUFFER" default:"64"`
}

type Env struct {
	BaseEnv
	StorageEnv
	StoreEnv
	AttachmentEnv
	VAPIDEnv
	RealtimeEnv
}

const namespace = "PREPBOARD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) validate() error {
	if e.JWTSecret == "" {
		return fmt.Errorf("PREPBOARD_JWT_SECRET must not be empty")
	}
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("PREPBOARD_S3_BUCKET is required when PREPBOARD_STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("unknown storage type %q", e.StorageEnv.Type)
	}
	switch e.StoreEnv.Type {
	case "yaml", "mongo":
	default:
		return fmt.Errorf("unknown store type %q", e.StoreEnv.Type)
	}
	if e.MaxBytes <= 0 {
		return fmt.Errorf("PREPBOARD_ATTACHMENT_MAX_BYTES must be positive")
	}
	if e.SendBuffer <= 0 {
		return fmt.Errorf("PREPBOARD_WS_SEND_BUFFER must be positive")
	}
	return nil
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

func (e *BaseEnv) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(e.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
