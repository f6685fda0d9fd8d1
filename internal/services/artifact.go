package services

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/validation"
	"github.com/yungbote/tourforge-backend/internal/observability"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"github.com/yungbote/tourforge-backend/internal/platform/storage"
)

const artifactResolveConcurrency = 8

// ArtifactURL is one resolved output. Error is set instead of URL when the
// storage collaborator failed for this item only.
type ArtifactURL struct {
	Step           phases.Step `json:"step"`
	UploadID       string      `json:"upload_id"`
	VariationIndex *int        `json:"variation_index,omitempty"`
	CameraAngle    string      `json:"camera_angle,omitempty"`
	URL            string      `json:"url,omitempty"`
	Error          string      `json:"error,omitempty"`
}

type PipelineArtifacts struct {
	PipelineID uuid.UUID         `json:"pipeline_id"`
	Artifacts  []ArtifactURL     `json:"artifacts"`
	Validation validation.Result `json:"validation"`
}

type ArtifactService interface {
	Resolve(ctx context.Context, pipelineID uuid.UUID) (*PipelineArtifacts, error)
}

type artifactService struct {
	log       *logger.Logger
	pipelines PipelineService
	resolver  storage.Resolver
	metrics   *observability.Metrics
}

func NewArtifactService(log *logger.Logger, pipelines PipelineService, resolver storage.Resolver, metrics *observability.Metrics) ArtifactService {
	return &artifactService{
		log:       log.With("service", "ArtifactService"),
		pipelines: pipelines,
		resolver:  resolver,
		metrics:   metrics,
	}
}

func (s *artifactService) Resolve(ctx context.Context, pipelineID uuid.UUID) (*PipelineArtifacts, error) {
	view, err := s.pipelines.Get(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	snap, err := view.Pipeline.Snapshot()
	if err != nil {
		return nil, err
	}

	var items []ArtifactURL
	for _, step := range phases.Steps() {
		out := snap.Outputs.Get(step)
		if out == nil {
			continue
		}
		if out.OutputUploadID != nil && *out.OutputUploadID != "" {
			items = append(items, ArtifactURL{Step: step, UploadID: *out.OutputUploadID})
		}
		for _, v := range out.Outputs {
			if v.OutputUploadID == nil || *v.OutputUploadID == "" {
				continue
			}
			items = append(items, ArtifactURL{
				Step:           step,
				UploadID:       *v.OutputUploadID,
				VariationIndex: v.VariationIndex,
				CameraAngle:    v.CameraAngle,
			})
		}
	}

	if s.resolver != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(artifactResolveConcurrency)
		for i := range items {
			i := i
			g.Go(func() error {
				u, err := s.resolver.SignedURL(gctx, items[i].UploadID)
				s.metrics.IncArtifactResolve(err == nil)
				if err != nil {
					s.log.Warn("artifact url failed", "pipeline_id", pipelineID, "upload_id", items[i].UploadID, "error", err)
					items[i].Error = err.Error()
					return nil
				}
				items[i].URL = u
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range items {
			items[i].Error = "artifact storage not configured"
		}
	}
	if items == nil {
		items = []ArtifactURL{}
	}
	return &PipelineArtifacts{PipelineID: pipelineID, Artifacts: items, Validation: view.Validation}, nil
}
