package automation

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// trackingPatterns are tried in order against script output. The first
// match containing enough digits wins.
var trackingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tracking\s*(?:number|#|id)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{6,})`),
	regexp.MustCompile(`(?i)case\s*(?:number|#|id)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{6,})`),
	regexp.MustCompile(`(?i)service\s*request\s*(?:number|#)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{6,})`),
	regexp.MustCompile(`(?i)confirmation\s*(?:number|#|code)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{6,})`),
	regexp.MustCompile(`(?i)reference\s*(?:number|#)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{6,})`),
}

// addressPatterns recover the address the city recorded for the request.
// Structured confirmation payloads are tried before the loose text form.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"requestAddress":\s*"([^"]+)"`),
	regexp.MustCompile(`(?i)requestAddress:\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)Address:\s*([^\n]+)`),
}

// minTrackingDigits filters out matches like dates or zip codes that slip
// through the patterns.
const minTrackingDigits = 8

// Confirmation holds whatever a form script's output gave up. Either field
// may be empty; a submission that yields neither is still a successful
// submission.
type Confirmation struct {
	TrackingNumber string
	Address        string
}

// ParseConfirmation scans script output for a tracking number and the
// confirmed address the city's form echoed back.
func ParseConfirmation(output string) Confirmation {
	return Confirmation{
		TrackingNumber: parseTrackingNumber(output),
		Address:        parseAddress(output),
	}
}

func parseTrackingNumber(output string) string {
	for _, pat := range trackingPatterns {
		for _, m := range pat.FindAllStringSubmatch(output, -1) {
			candidate := strings.TrimSpace(m[1])
			if digitCount(candidate) >= minTrackingDigits {
				return candidate
			}
		}
	}
	return ""
}

func parseAddress(output string) string {
	for _, pat := range addressPatterns {
		if m := pat.FindStringSubmatch(output); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// cityPrefixes maps known cities to their 311 tracking prefixes.
var cityPrefixes = map[string]string{
	"san francisco": "SF311",
	"oakland":       "OAK311",
	"berkeley":      "BERK311",
}

// FallbackTrackingNumber generates a synthetic tracking number of the form
// PREFIX-YEAR-NNNNNN for reports filed without an automatable form.
func FallbackTrackingNumber(city string) string {
	prefix, ok := cityPrefixes[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		prefix = "CITY311"
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, time.Now().Year(), rand.Intn(1_000_000))
}
