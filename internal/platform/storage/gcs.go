package storage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

const defaultURLTTL = 15 * time.Minute

// GCSResolver issues V4 signed GET URLs for objects in one bucket.
type GCSResolver struct {
	log    *logger.Logger
	client *gcs.Client
	cfg    Config
}

func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func NewGCSResolver(ctx context.Context, cfg Config, log *logger.Logger, opts ...option.ClientOption) (*GCSResolver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing ARTIFACT_BUCKET")
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = defaultURLTTL
	}
	var client *gcs.Client
	if cfg.SignerKey == "" {
		if len(opts) == 0 {
			opts = ClientOptionsFromEnv()
		}
		c, err := gcs.NewClient(ctx, append(opts, option.WithScopes(gcs.ScopeReadOnly))...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		client = c
	}
	log.With("service", "GCSResolver").Info("artifact storage initialized", "bucket", cfg.Bucket, "ttl", cfg.URLTTL.String(), "local_signer", cfg.SignerKey != "")
	return &GCSResolver{log: log.With("service", "GCSResolver"), client: client, cfg: cfg}, nil
}

func (r *GCSResolver) SignedURL(ctx context.Context, uploadID string) (string, error) {
	const op = "storage.SignedURL"
	key, err := r.cfg.objectKey(uploadID)
	if err != nil {
		return "", err
	}
	opts := &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(r.cfg.URLTTL),
	}
	var signed string
	if r.cfg.SignerKey != "" {
		opts.GoogleAccessID = r.cfg.SignerEmail
		opts.PrivateKey = []byte(r.cfg.SignerKey)
		signed, err = gcs.SignedURL(r.cfg.Bucket, key, opts)
	} else {
		signed, err = r.client.Bucket(r.cfg.Bucket).SignedURL(key, opts)
	}
	if err != nil {
		r.log.Warn("signing artifact url failed", "upload_id", uploadID, "error", err)
		return "", aggregates.Collaborator(op, err)
	}
	return signed, nil
}

func (r *GCSResolver) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
