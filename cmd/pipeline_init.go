package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/automation"
	"github.com/civicsight/civicsight/internal/districts"
	"github.com/civicsight/civicsight/internal/pipeline"
	"github.com/civicsight/civicsight/internal/storage"
	"github.com/civicsight/civicsight/internal/store"
	"github.com/civicsight/civicsight/pkg/anthropic"
	"github.com/civicsight/civicsight/pkg/engage"
	"github.com/civicsight/civicsight/pkg/geocode"
	"github.com/civicsight/civicsight/pkg/serp"
	"github.com/civicsight/civicsight/pkg/social"
)

// pipelineEnv bundles everything a pipeline invocation needs.
type pipelineEnv struct {
	Store        store.Store
	Images       *storage.ImageStore
	Orchestrator *pipeline.Orchestrator
}

func (e *pipelineEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initPipeline validates config, opens the store and image storage, and
// wires all provider clients into an orchestrator.
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	images, err := storage.NewImageStore(cfg.Storage.UploadsDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	lookup, err := districts.Load(cfg.Districts.ShapefilePath)
	if err != nil {
		st.Close()
		return nil, err
	}

	aiClient := anthropic.NewClient(cfg.Anthropic.Key)
	classifier := pipeline.NewClassifier(aiClient, cfg.Anthropic.Model, cfg.Pipeline.ConfidenceThreshold)

	geoClient := geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
	)
	resolver := pipeline.NewGeoResolver(geoClient, cfg.Pipeline.DefaultCity, cfg.Pipeline.DefaultState)

	serpClient := serp.NewClient(cfg.Serp.Key, cfg.Serp.DatasetID,
		serp.WithBaseURL(cfg.Serp.BaseURL),
		serp.WithPollInterval(cfg.Serp.PollInterval()),
		serp.WithMaxAttempts(cfg.Serp.PollMaxAttempts),
	)
	discoverer := pipeline.NewDiscoverer(serpClient)

	runner := automation.NewRunner(cfg.Automation.ScriptsDir, cfg.Automation.NodePath, cfg.Automation.Timeout())
	submitter := pipeline.NewSubmitter(runner, cfg.Automation.LiveSubmission)

	// Amplification requires posting credentials; without them the
	// pipeline stops at submission.
	var amplifier *pipeline.Amplifier
	if cfg.Social.Configured() {
		engageClient := engage.NewClient(cfg.Engage.Key, engage.WithBaseURL(cfg.Engage.BaseURL))
		socialClient := social.NewClient(social.Credentials{
			APIKey:            cfg.Social.APIKey,
			APISecret:         cfg.Social.APISecret,
			AccessToken:       cfg.Social.AccessToken,
			AccessTokenSecret: cfg.Social.AccessTokenSecret,
		},
			social.WithBaseURL(cfg.Social.BaseURL),
			social.WithUploadBaseURL(cfg.Social.UploadBaseURL),
		)
		amplifier = pipeline.NewAmplifier(engageClient, socialClient, cfg.Pipeline.PostCharLimit)
	} else {
		zap.L().Info("social credentials not configured, amplification disabled")
	}

	orch := pipeline.NewOrchestrator(st, images, lookup, classifier, resolver, discoverer, submitter, amplifier)

	return &pipelineEnv{Store: st, Images: images, Orchestrator: orch}, nil
}
