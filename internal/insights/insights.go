// Package insights turns engagement samples into posting-style hints. When no
// live samples are available the per-city default table answers instead, so
// amplification never blocks on the analytics provider.
package insights

import (
	_ "embed"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/pkg/engage"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type styleEntry struct {
	OptimalLength int      `yaml:"optimal_length"`
	Hashtags      []string `yaml:"hashtags"`
	EmojiUsage    string   `yaml:"emoji_usage"`
	CTAStyle      string   `yaml:"cta_style"`
}

type defaultsTable struct {
	Default styleEntry            `yaml:"default"`
	Cities  map[string]styleEntry `yaml:"cities"`
}

var defaults defaultsTable

func init() {
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// Embedded data, a parse failure is a build defect.
		panic("insights: parse defaults.yaml: " + err.Error())
	}
}

var hashtagRe = regexp.MustCompile(`#(\w+)`)

// ctaMarkers are phrases that mark a post as carrying a call to action.
var ctaMarkers = []string{
	"report", "call ", "contact", "join", "help", "fix this",
	"rt ", "retweet", "sign", "demand", "follow",
}

// Derive computes style hints from sampled posts. It never fails: an empty
// sample set falls through to the city default table.
func Derive(posts []engage.Post, city string) model.StyleHints {
	if len(posts) == 0 {
		return Defaults(city)
	}

	totalLen := 0
	totalEmoji := 0
	withCTA := 0
	tagFreq := map[string]int{}
	tagOrder := []string{}

	for _, p := range posts {
		totalLen += len([]rune(p.Text))
		totalEmoji += countEmoji(p.Text)
		if hasCTA(p.Text) {
			withCTA++
		}

		tags := p.Hashtags
		if len(tags) == 0 {
			for _, m := range hashtagRe.FindAllStringSubmatch(p.Text, -1) {
				tags = append(tags, m[1])
			}
		}
		for _, tag := range tags {
			if tagFreq[tag] == 0 {
				tagOrder = append(tagOrder, tag)
			}
			tagFreq[tag]++
		}
	}

	// Stable by first appearance so equal counts keep sample order.
	sort.SliceStable(tagOrder, func(i, j int) bool {
		return tagFreq[tagOrder[i]] > tagFreq[tagOrder[j]]
	})
	if len(tagOrder) > 5 {
		tagOrder = tagOrder[:5]
	}
	if len(tagOrder) == 0 {
		tagOrder = fallbackHashtags(city)
	}

	n := len(posts)
	avgEmoji := float64(totalEmoji) / float64(n)
	emojiUsage := "moderate"
	switch {
	case avgEmoji > 4:
		emojiUsage = "high"
	case avgEmoji <= 2:
		emojiUsage = "low"
	}

	ctaRatio := float64(withCTA) / float64(n)
	ctaStyle := "community"
	switch {
	case ctaRatio > 0.7:
		ctaStyle = "urgent"
	case ctaRatio > 0.4:
		ctaStyle = "direct"
	}

	hints := model.StyleHints{
		OptimalLength: totalLen / n,
		Hashtags:      tagOrder,
		EmojiUsage:    emojiUsage,
		CTAStyle:      ctaStyle,
		PostsAnalyzed: n,
	}
	zap.L().Debug("style hints derived",
		zap.Int("posts", n),
		zap.Float64("avg_emoji", avgEmoji),
		zap.Float64("cta_ratio", ctaRatio),
	)
	return hints
}

// Defaults returns the default style hints for a city. Unknown cities get the
// generic entry with a city-branded lead hashtag.
func Defaults(city string) model.StyleHints {
	if entry, ok := defaults.Cities[city]; ok {
		return model.StyleHints{
			OptimalLength: entry.OptimalLength,
			Hashtags:      append([]string(nil), entry.Hashtags...),
			EmojiUsage:    entry.EmojiUsage,
			CTAStyle:      entry.CTAStyle,
		}
	}
	d := defaults.Default
	return model.StyleHints{
		OptimalLength: d.OptimalLength,
		Hashtags:      fallbackHashtags(city),
		EmojiUsage:    d.EmojiUsage,
		CTAStyle:      d.CTAStyle,
	}
}

// fallbackHashtags prepends a "Fix{City}" tag to the generic defaults.
func fallbackHashtags(city string) []string {
	tags := append([]string(nil), defaults.Default.Hashtags...)
	city = strings.TrimSpace(city)
	if city == "" {
		return tags
	}
	titled := cases.Title(language.English).String(city)
	tag := "Fix" + strings.ReplaceAll(titled, " ", "")
	return append([]string{tag}, tags...)
}

func hasCTA(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range ctaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func countEmoji(text string) int {
	n := 0
	for _, r := range text {
		if isEmoji(r) {
			n++
		}
	}
	return n
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, transport, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	}
	return false
}
