// Package automation drives the per-category Node form scripts that fill in
// and submit city reporting forms, and extracts tracking numbers and
// confirmed addresses from their output.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/model"
)

// categoryScripts maps each reportable category to its form script.
var categoryScripts = map[model.Category]string{
	model.CategoryRoadCrack:           "road_crack.js",
	model.CategorySidewalkCrack:       "sidewalk_crack.js",
	model.CategoryGraffiti:            "graffiti.js",
	model.CategoryOverflowingTrash:    "overflowing_trash.js",
	model.CategoryFadedStreetMarkings: "faded_street_markings.js",
	model.CategoryBrokenStreetLight:   "broken_street_light.js",
	model.CategoryFallenTree:          "fallen_tree.js",
}

// Request carries everything a form script needs to file one report.
type Request struct {
	Category            model.Category    `json:"category"`
	ServiceCode         string            `json:"service_code,omitempty"`
	FormURL             string            `json:"form_url"`
	Address             string            `json:"address"`
	Description         string            `json:"description"`
	LocationDescription string            `json:"location_description,omitempty"`
	ImagePath           string            `json:"image_path,omitempty"`
	FormFields          map[string]string `json:"form_fields,omitempty"`
}

// Result is the runner's view of one script invocation. Address is the
// confirmed address echoed back by the city's form, when the output had one.
type Result struct {
	Success        bool
	TrackingNumber string
	Address        string
	RawOutput      string
}

// Runner executes form scripts as subprocesses. Submissions are never
// retried: a second attempt could file a duplicate report.
type Runner struct {
	scriptsDir string
	nodePath   string
	timeout    time.Duration
}

// NewRunner creates a Runner. Empty nodePath falls back to "node".
func NewRunner(scriptsDir, nodePath string, timeout time.Duration) *Runner {
	if nodePath == "" {
		nodePath = "node"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Runner{scriptsDir: scriptsDir, nodePath: nodePath, timeout: timeout}
}

// Supported reports whether a form script exists for the category.
func Supported(c model.Category) bool {
	_, ok := categoryScripts[c]
	return ok
}

// Submit runs the category's form script with the request as its JSON
// argument and parses the confirmation output.
func (r *Runner) Submit(ctx context.Context, req Request) (*Result, error) {
	script, ok := categoryScripts[req.Category]
	if !ok {
		return nil, eris.Errorf("automation: no form script for category %q", req.Category)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "automation: marshal request")
	}

	// Detached from the caller: once a form submission starts, killing it
	// mid-flight could leave the city system in an unknown state. The script
	// runs to its own timeout even if the request that launched it is gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	scriptPath := filepath.Join(r.scriptsDir, script)
	cmd := exec.CommandContext(ctx, r.nodePath, scriptPath, string(payload))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	zap.L().Debug("form script finished",
		zap.String("script", script),
		zap.Duration("elapsed", elapsed),
		zap.Bool("success", runErr == nil),
	)

	if ctx.Err() == context.DeadlineExceeded {
		diag := &Result{RawOutput: stdout.String() + stderr.String()}
		return diag, eris.Errorf("automation: %s timed out after %s: %s", script, r.timeout, stderr.String())
	}
	if runErr != nil {
		diag := &Result{RawOutput: stdout.String() + stderr.String()}
		return diag, eris.Wrapf(runErr, "automation: %s failed: %s", script, stderr.String())
	}

	out := stdout.String()
	conf := ParseConfirmation(out)
	return &Result{
		Success:        true,
		TrackingNumber: conf.TrackingNumber,
		Address:        conf.Address,
		RawOutput:      out,
	}, nil
}
