// Package storage turns artifact references (upload ids) into URLs a client
// can fetch. Failures are collaborator errors; they never block validation.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
)

// Resolver issues a fetchable URL for an uploaded artifact.
type Resolver interface {
	SignedURL(ctx context.Context, uploadID string) (string, error)
}

type Config struct {
	Bucket        string
	KeyPrefix     string
	URLTTL        time.Duration
	PublicBaseURL string
	// SignerEmail and SignerKey sign URLs locally instead of through the
	// client's credentials.
	SignerEmail string
	SignerKey   string
}

func (c Config) objectKey(uploadID string) (string, error) {
	id := strings.TrimSpace(uploadID)
	if id == "" {
		return "", aggregates.Validation("storage.objectKey", "upload id is required")
	}
	if strings.Contains(id, "..") || strings.HasPrefix(id, "/") {
		return "", aggregates.Validation("storage.objectKey", "invalid upload id %q", uploadID)
	}
	return c.KeyPrefix + id, nil
}

// PublicResolver builds unsigned URLs under a public base, for emulators and
// public buckets.
type PublicResolver struct {
	cfg Config
}

func NewPublicResolver(cfg Config) (*PublicResolver, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("missing ARTIFACT_PUBLIC_BASE_URL")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid ARTIFACT_PUBLIC_BASE_URL: %w", err)
	}
	cfg.PublicBaseURL = base
	return &PublicResolver{cfg: cfg}, nil
}

func (r *PublicResolver) SignedURL(ctx context.Context, uploadID string) (string, error) {
	key, err := r.cfg.objectKey(uploadID)
	if err != nil {
		return "", err
	}
	parts := []string{r.cfg.PublicBaseURL}
	if b := strings.TrimSpace(r.cfg.Bucket); b != "" {
		parts = append(parts, url.PathEscape(b))
	}
	for _, seg := range strings.Split(key, "/") {
		parts = append(parts, url.PathEscape(seg))
	}
	return strings.Join(parts, "/"), nil
}
