// Package pipeline orchestrates one civic report through classification,
// geocoding, form discovery, form submission, and social amplification.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civicsight/civicsight/internal/districts"
	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/internal/resilience"
	"github.com/civicsight/civicsight/internal/storage"
	"github.com/civicsight/civicsight/internal/store"
)

// Orchestrator walks one report through the stage state machine, persisting
// every transition. Stages never see the whole report: they take inputs and
// return partial results, and only the orchestrator mutates the record.
type Orchestrator struct {
	store      store.Store
	images     *storage.ImageStore
	districts  *districts.Lookup
	classifier *Classifier
	resolver   *GeoResolver
	discoverer *Discoverer
	submitter  *Submitter
	amplifier  *Amplifier // nil when social posting is not configured
}

// NewOrchestrator wires the stages together. amplifier may be nil, which
// skips amplification for every report.
func NewOrchestrator(st store.Store, images *storage.ImageStore, lookup *districts.Lookup, classifier *Classifier, resolver *GeoResolver, discoverer *Discoverer, submitter *Submitter, amplifier *Amplifier) *Orchestrator {
	return &Orchestrator{
		store:      st,
		images:     images,
		districts:  lookup,
		classifier: classifier,
		resolver:   resolver,
		discoverer: discoverer,
		submitter:  submitter,
		amplifier:  amplifier,
	}
}

// Process runs the full pipeline for an uploaded image. The returned report
// always carries a terminal status; stage failures are encoded in it rather
// than returned as errors. The error return is reserved for infrastructure
// faults (store writes, unreadable image).
func (o *Orchestrator) Process(ctx context.Context, imageRef string, lat, lon float64) (*model.Report, error) {
	r := &model.Report{
		ImageRef:  imageRef,
		Latitude:  lat,
		Longitude: lon,
	}
	if err := o.store.CreateReport(ctx, r); err != nil {
		return nil, eris.Wrap(err, "pipeline: create report")
	}

	log := zap.L().With(zap.String("report_id", r.ID))
	start := time.Now()

	image, err := o.images.Read(imageRef)
	if err != nil {
		return o.fail(ctx, r, eris.Wrap(err, "pipeline: read image"))
	}

	// Classification and geocoding both depend only on the raw input, so
	// they run concurrently. Everything after needs both.
	if err := o.transition(ctx, r, model.StatusClassifying); err != nil {
		return r, err
	}

	var cls *model.Classification
	var addr model.Address

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var cErr error
		cls, cErr = o.classifier.Classify(gCtx, image, mediaTypeFor(imageRef), lat, lon)
		return cErr
	})
	g.Go(func() error {
		var geoFail *StageFailure
		addr, geoFail = o.resolver.Resolve(gCtx, lat, lon)
		if geoFail != nil {
			log.Warn("geocoding degraded to defaults", zap.String("reason", geoFail.Reason))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		// Classification has no substitute. This is the one stage whose
		// provider failure aborts the report.
		return o.fail(ctx, r, err)
	}

	r.Classification = cls
	r.Address = &addr
	r.District = o.districts.District(lat, lon)

	if cls.Category == model.CategoryNone {
		r.Message = "No civic infrastructure issue detected. " + cls.Description
		log.Info("report rejected", zap.Float64("confidence", cls.Confidence))
		return r, o.finish(ctx, r, model.StatusRejected)
	}
	if err := o.transition(ctx, r, model.StatusClassified); err != nil {
		return r, err
	}
	log.Info("report classified",
		zap.String("category", string(cls.Category)),
		zap.Float64("confidence", cls.Confidence),
		zap.String("district", r.District),
	)

	// Form discovery.
	if err := o.transition(ctx, r, model.StatusDiscoveringForm); err != nil {
		return r, err
	}
	disc, discFail, err := o.discoverer.Discover(ctx, addr.City, cls.Category)
	if err != nil {
		return o.fail(ctx, r, err)
	}
	if discFail != nil {
		r.Message = "No reporting form found: " + discFail.Reason
		return r, o.finish(ctx, r, model.StatusFormNotFound)
	}
	r.Discovery = disc
	if err := o.transition(ctx, r, model.StatusFormFound); err != nil {
		return r, err
	}

	// Form submission.
	if err := o.transition(ctx, r, model.StatusSubmitting); err != nil {
		return r, err
	}
	sub, subFail, err := o.submitter.Submit(ctx, cls, disc, addr, o.images.Path(imageRef))
	if err != nil {
		return o.fail(ctx, r, err)
	}
	r.Submission = sub
	if subFail != nil {
		r.Message = "Form submission failed: " + subFail.Reason
		o.deadLetter(ctx, r, subFail)
		return r, o.finish(ctx, r, model.StatusSubmissionFailed)
	}
	if err := o.transition(ctx, r, model.StatusSubmitted); err != nil {
		return r, err
	}
	// The address the city's form echoed back is more authoritative than the
	// reverse-geocoded one.
	if sub.ConfirmedAddress != "" {
		r.Address.Line = sub.ConfirmedAddress
	}
	log.Info("report submitted",
		zap.String("tracking_number", sub.TrackingNumber),
		zap.String("department", sub.Department),
		zap.String("method", string(sub.Method)),
	)

	// Amplification needs a tracking number to reference; without one the
	// report completes quietly.
	if sub.TrackingNumber == "" || o.amplifier == nil {
		return r, o.finish(ctx, r, model.StatusDone)
	}

	if err := o.transition(ctx, r, model.StatusAmplifying); err != nil {
		return r, err
	}
	amp, ampFail := o.amplifier.Amplify(ctx, cls.Category, r.District, addr, sub.TrackingNumber, image)
	r.Amplification = amp
	if ampFail != nil {
		// Non-fatal: the city report went through, which is what matters.
		r.Message = "Social post failed: " + ampFail.Reason
		log.Warn("amplification failed", zap.String("reason", ampFail.Reason))
	}

	log.Info("pipeline complete", zap.Duration("elapsed", time.Since(start)))
	return r, o.finish(ctx, r, model.StatusDone)
}

// transition persists an intermediate status change.
func (o *Orchestrator) transition(ctx context.Context, r *model.Report, status model.ReportStatus) error {
	r.Status = status
	if err := o.store.UpdateReportStatus(ctx, r.ID, status); err != nil {
		return eris.Wrapf(err, "pipeline: transition to %s", status)
	}
	return nil
}

// finish writes the full record with its terminal status.
func (o *Orchestrator) finish(ctx context.Context, r *model.Report, status model.ReportStatus) error {
	r.Status = status
	if err := o.store.UpdateReport(ctx, r); err != nil {
		return eris.Wrapf(err, "pipeline: persist terminal report %s", r.ID)
	}
	return nil
}

// fail records an unexpected stage fault as a terminal error state. Callers
// still receive the report; only persistence faults surface as errors.
func (o *Orchestrator) fail(ctx context.Context, r *model.Report, cause error) (*model.Report, error) {
	zap.L().Error("pipeline stage fault",
		zap.String("report_id", r.ID),
		zap.Error(cause),
	)
	r.Message = eris.Cause(cause).Error()
	return r, o.finish(ctx, r, model.StatusError)
}

// deadLetter records a failed submission for operator review. DLQ write
// failures are logged, not propagated: losing a diagnostic must not mask the
// submission failure itself.
func (o *Orchestrator) deadLetter(ctx context.Context, r *model.Report, fail *StageFailure) {
	entry := &resilience.DLQEntry{
		ID:          uuid.NewString(),
		ReportID:    r.ID,
		Category:    string(r.Classification.Category),
		Error:       fail.Reason,
		ErrorType:   resilience.ClassifyError(fail.Cause),
		FailedStage: "submission",
	}
	if r.Discovery != nil {
		entry.FormURL = r.Discovery.URL
	}
	if err := o.store.AddDLQEntry(ctx, entry); err != nil {
		zap.L().Error("dead letter write failed",
			zap.String("report_id", r.ID),
			zap.Error(err),
		)
	}
}

func mediaTypeFor(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
