package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/insights"
	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/pkg/engage"
	"github.com/civicsight/civicsight/pkg/social"
)

// categoryEmojis head the post for each category.
var categoryEmojis = map[model.Category]string{
	model.CategoryRoadCrack:           "🚗🕳️",
	model.CategorySidewalkCrack:       "🚶‍♂️⚠️",
	model.CategoryGraffiti:            "🎨🚫",
	model.CategoryOverflowingTrash:    "🗑️♻️",
	model.CategoryFadedStreetMarkings: "🚦⚠️",
	model.CategoryBrokenStreetLight:   "💡🔧",
	model.CategoryFallenTree:          "🌳⚠️",
}

const engageSampleLimit = 20

// Amplifier is the social-amplification stage: mine engagement samples for
// style hints, compose post text, publish with the photo. Publishing failure
// is recorded but never fails the pipeline.
type Amplifier struct {
	engage engage.Client
	social social.Client
	limit  int
}

// NewAmplifier creates the stage. limit is the platform character budget.
func NewAmplifier(eng engage.Client, soc social.Client, limit int) *Amplifier {
	if limit <= 0 {
		limit = 280
	}
	return &Amplifier{engage: eng, social: soc, limit: limit}
}

// Amplify publishes the report socially. The returned Amplification always
// carries the composed text and the hints used, whether or not publishing
// succeeded.
func (a *Amplifier) Amplify(ctx context.Context, category model.Category, district string, addr model.Address, trackingNumber string, image []byte) (*model.Amplification, *StageFailure) {
	hints := a.styleHints(ctx, category, district, addr.City)
	text := ComposePost(category, addr, trackingNumber, hints, a.limit)

	amp := &model.Amplification{PostText: text, Insights: hints}

	var mediaIDs []string
	if len(image) > 0 {
		mediaID, err := a.social.UploadMedia(ctx, image, "report.jpg")
		if err != nil {
			// Post without the photo rather than not at all.
			zap.L().Warn("media upload failed, posting text only", zap.Error(err))
		} else {
			mediaIDs = append(mediaIDs, mediaID)
		}
	}

	post, err := a.social.CreatePost(ctx, text, mediaIDs)
	if err != nil {
		return amp, &StageFailure{Kind: FailurePost, Reason: err.Error()}
	}

	amp.Success = true
	amp.PostURL = post.URL
	zap.L().Info("report amplified",
		zap.String("post_url", post.URL),
		zap.Int("post_len", len([]rune(text))),
	)
	return amp, nil
}

// styleHints asks the analytics provider for samples and falls back to the
// city default table. This step never fails for lack of live data.
func (a *Amplifier) styleHints(ctx context.Context, category model.Category, district, city string) model.StyleHints {
	topic := string(category)
	if district != "" {
		topic = district + " " + topic
	}
	topic = strings.ToLower(topic)

	posts, err := a.engage.TopPosts(ctx, city, topic, engageSampleLimit)
	if err != nil {
		zap.L().Warn("engagement analytics unavailable, using city defaults",
			zap.String("city", city),
			zap.Error(err),
		)
		return insights.Defaults(city)
	}
	return insights.Derive(posts, city)
}

// ComposePost renders the post text deterministically from its inputs. Line
// order is fixed: header, location, tracking, CTA, hashtags. Over the limit
// the CTA goes first, then the address shrinks to street-only, then the text
// is hard-truncated.
func ComposePost(category model.Category, addr model.Address, trackingNumber string, hints model.StyleHints, limit int) string {
	emoji, ok := categoryEmojis[category]
	if !ok {
		emoji = "🚨"
	}

	var header string
	switch hints.EmojiUsage {
	case "high":
		header = fmt.Sprintf("%s %s REPORTED %s", emoji, strings.ToUpper(string(category)), emoji)
	case "low":
		header = fmt.Sprintf("%s reported at", category)
	default:
		header = fmt.Sprintf("%s %s reported", emoji, category)
	}

	trackingLine := ""
	if trackingNumber != "" {
		trackingLine = "🔢 Track repairs: " + trackingNumber
	}

	var cta string
	switch hints.CTAStyle {
	case "urgent":
		cta = "Help us fix this! RT to get city attention 🚀"
	case "community":
		cta = "Join us in making our streets safer 💪"
	default:
		cta = "Follow for updates"
	}

	tags := hints.Hashtags
	if len(tags) > 3 {
		tags = tags[:3]
	}
	hashtagLine := ""
	for _, tag := range tags {
		if hashtagLine != "" {
			hashtagLine += " "
		}
		hashtagLine += "#" + tag
	}

	assemble := func(location string, withCTA bool) string {
		parts := []string{header, "📍 " + location}
		if trackingLine != "" {
			parts = append(parts, trackingLine)
		}
		if withCTA {
			parts = append(parts, cta)
		}
		if hashtagLine != "" {
			parts = append(parts, hashtagLine)
		}
		return strings.Join(parts, "\n")
	}

	text := assemble(addr.Full(), true)
	if len([]rune(text)) > limit {
		text = assemble(addr.Full(), false)
	}
	if len([]rune(text)) > limit {
		street := addr.Line
		if street == "" {
			street = addr.Full()
		}
		text = assemble(street, false)
	}
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit])
	}
	return text
}
