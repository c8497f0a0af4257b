package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/automation"
	"github.com/civicsight/civicsight/internal/model"
)

// Submitter is the form-submission stage. Live mode drives the category's
// form script as a subprocess; demo mode generates a deterministic fallback
// tracking number so downstream stages always have an identifier.
type Submitter struct {
	runner *automation.Runner
	live   bool
}

// NewSubmitter creates the stage. live=false skips the form scripts and
// fabricates tracking numbers instead.
func NewSubmitter(runner *automation.Runner, live bool) *Submitter {
	return &Submitter{runner: runner, live: live}
}

// Submit files the report with the city. A StageFailure means the script ran
// and failed; the raw diagnostics ride on the Submission for operator review.
// An unknown category is a plain error: there is no generic form script.
func (s *Submitter) Submit(ctx context.Context, cls *model.Classification, disc *model.Discovery, addr model.Address, imagePath string) (*model.Submission, *StageFailure, error) {
	if !automation.Supported(cls.Category) {
		return nil, nil, eris.Errorf("submit: no automation backend for category %q", cls.Category)
	}

	dept, eta := automation.Department(cls.Category)

	if !s.live {
		tracking := automation.FallbackTrackingNumber(addr.City)
		zap.L().Info("automation disabled, generated fallback tracking number",
			zap.String("tracking_number", tracking),
			zap.String("city", addr.City),
		)
		return &model.Submission{
			Success:               true,
			TrackingNumber:        tracking,
			Method:                model.MethodFallbackGenerated,
			Department:            dept,
			EstimatedResponseTime: eta,
		}, nil, nil
	}

	req := automation.Request{
		Category:            cls.Category,
		ServiceCode:         automation.ServiceCode(cls.Category),
		FormURL:             disc.URL,
		Address:             addr.Full(),
		Description:         cls.Description,
		LocationDescription: cls.LocationDescription,
		ImagePath:           imagePath,
		FormFields:          cls.FormFields,
	}

	res, err := s.runner.Submit(ctx, req)
	if err != nil {
		sub := &model.Submission{
			Success:               false,
			Method:                model.MethodAutomatedForm,
			Department:            dept,
			EstimatedResponseTime: eta,
		}
		if res != nil {
			sub.RawOutput = res.RawOutput
		}
		return sub, &StageFailure{Kind: FailureSubmission, Reason: err.Error(), Cause: err}, nil
	}

	// Submission success and tracking-number extraction are independent:
	// the form went through even if the confirmation page defeated every
	// pattern, and a human can recover the number from RawOutput later.
	if res.TrackingNumber == "" {
		zap.L().Warn("form submitted but no tracking number extracted",
			zap.String("category", string(cls.Category)),
			zap.String("form_url", disc.URL),
		)
	}

	return &model.Submission{
		Success:               true,
		TrackingNumber:        res.TrackingNumber,
		ConfirmedAddress:      res.Address,
		Method:                model.MethodAutomatedForm,
		Department:            dept,
		EstimatedResponseTime: eta,
		RawOutput:             res.RawOutput,
	}, nil, nil
}
