package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/tourforge-backend/internal/data/db"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/policy"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/envutil"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/platform/storage"
)

const serviceName = "tourforge-backend"

type Config struct {
	Port        string
	MetricsAddr string

	JWTSecretKey   string
	AccessTokenTTL time.Duration
	AuthDisabled   bool
	CORSOrigins    []string

	RedisAddr    string
	RedisChannel string

	DB      db.Config
	Storage storage.Config
	Otel    observability.OtelConfig
	Policy  policy.Policy
}

func LoadConfig(log *logger.Logger) (Config, error) {
	pol, err := policy.Load(envutil.String("PIPELINE_POLICY_FILE", "", log))
	if err != nil {
		return Config{}, fmt.Errorf("load pipeline policy: %w", err)
	}
	pol = pol.WithMaxAutoAttempts(envutil.Int("PIPELINE_MAX_AUTO_ATTEMPTS", 0, log))

	return Config{
		Port:        envutil.String("PORT", "8080", log),
		MetricsAddr: envutil.String("METRICS_ADDR", "", log),

		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", "", log),
		AccessTokenTTL: envutil.Duration("ACCESS_TOKEN_TTL", time.Hour, log),
		AuthDisabled:   envutil.Bool("AUTH_DISABLED", false, log),
		CORSOrigins:    splitList(envutil.String("CORS_ALLOWED_ORIGINS", "", log)),

		RedisAddr:    envutil.String("REDIS_ADDR", "", log),
		RedisChannel: envutil.String("REDIS_CHANNEL", "tourforge:sse", log),

		DB: db.ConfigFromEnv(log),
		Storage: storage.Config{
			Bucket:        envutil.String("ARTIFACT_BUCKET", "", log),
			KeyPrefix:     envutil.String("ARTIFACT_KEY_PREFIX", "", log),
			URLTTL:        envutil.Duration("ARTIFACT_URL_TTL", 15*time.Minute, log),
			PublicBaseURL: envutil.String("ARTIFACT_PUBLIC_BASE_URL", "", log),
			SignerEmail:   envutil.String("ARTIFACT_SIGNER_EMAIL", "", log),
			SignerKey:     envutil.String("ARTIFACT_SIGNER_KEY", "", log),
		},
		Otel:   observability.OtelConfigFromEnv(log, serviceName),
		Policy: pol,
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
