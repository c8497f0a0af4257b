package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/internal/resilience"
	"github.com/civicsight/civicsight/pkg/serp"
)

// titleKeywords earn a fixed bonus when present in a result title.
var titleKeywords = []string{"report", "form", "submit"}

// Discoverer is the reporting-form discovery stage. It searches for the
// city's reporting page and ranks candidates, trusting the search engine's
// own ordering as the dominant signal with domain and keyword bonuses as
// tie-breaking refinements.
type Discoverer struct {
	search serp.Client
	retry  resilience.RetryConfig
}

// NewDiscoverer creates the discovery stage. Searches are retried on
// transient provider errors; rerunning a search is harmless, unlike
// resubmitting a form.
func NewDiscoverer(search serp.Client) *Discoverer {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("serp", "search")
	return &Discoverer{search: search, retry: cfg}
}

// Discover finds the reporting form for a category in a city. A nil
// Discovery with a StageFailure means no form was found; submission cannot
// proceed without one.
func (d *Discoverer) Discover(ctx context.Context, city string, category model.Category) (*model.Discovery, *StageFailure, error) {
	query := fmt.Sprintf("%s report %s", city, category)

	results, err := resilience.DoVal(ctx, d.retry, func(ctx context.Context) ([]serp.Result, error) {
		return d.search.Search(ctx, query)
	})
	if err != nil {
		return nil, nil, eris.Wrapf(err, "discover: search %q", query)
	}
	if len(results) == 0 {
		return nil, &StageFailure{
			Kind:   FailureFormNotFound,
			Reason: fmt.Sprintf("no search results for %q", query),
		}, nil
	}

	candidates := rankCandidates(results, city)
	zap.L().Info("reporting form discovered",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
		zap.String("url", candidates[0].URL),
		zap.Float64("score", candidates[0].Score),
	)

	return &model.Discovery{
		URL:        candidates[0].URL,
		Query:      query,
		Candidates: candidates,
	}, nil, nil
}

// rankCandidates scores results and sorts descending. The sort is stable so
// ties keep the provider's original ordering.
func rankCandidates(results []serp.Result, city string) []model.FormCandidate {
	candidates := make([]model.FormCandidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, model.FormCandidate{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
			Rank:    r.Rank,
			Score:   scoreCandidate(r, city),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

func scoreCandidate(r serp.Result, city string) float64 {
	// Rank anchors the score: the engine's ordering already encodes most of
	// the relevance signal.
	score := float64(11 - r.Rank)
	if score < 1 {
		score = 1
	}

	titleLower := strings.ToLower(r.Title)
	urlLower := strings.ToLower(r.URL)
	cityLower := strings.ToLower(city)

	if isGovDomain(r.URL) {
		score += 5.0
	}
	for _, kw := range titleKeywords {
		if strings.Contains(titleLower, kw) {
			score += 2.0
			break
		}
	}
	if strings.Contains(titleLower, "311") || strings.Contains(urlLower, "311") {
		score += 1.5
	}
	if cityLower != "" {
		// Hostnames drop the space in multi-word city names (sanfrancisco.gov),
		// so the URL check also tries the compacted form.
		cityCompact := strings.ReplaceAll(cityLower, " ", "")
		if strings.Contains(urlLower, cityLower) || strings.Contains(urlLower, cityCompact) {
			score += 1.0
		}
		if strings.Contains(titleLower, cityLower) {
			score += 0.5
		}
	}

	return score
}

func isGovDomain(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return strings.HasSuffix(host, ".gov") || strings.Contains(host, ".gov.")
}
