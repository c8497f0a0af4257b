package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civicsight/civicsight/pkg/engage"
)

func samplePost(text string, tags ...string) engage.Post {
	return engage.Post{Text: text, Hashtags: tags}
}

func TestDeriveEmojiUsage(t *testing.T) {
	tests := []struct {
		name  string
		posts []engage.Post
		want  string
	}{
		{
			name: "high above four per post",
			posts: []engage.Post{
				samplePost("🚗🕳️⚠️🚨🔧 pothole on Mission"),
				samplePost("🎨🚫🗑️♻️💡 cleanup day"),
			},
			want: "high",
		},
		{
			name: "moderate between two and four",
			posts: []engage.Post{
				samplePost("🚗🕳️⚠️ pothole on Mission"),
				samplePost("🎨🚫🗑️ graffiti removed"),
			},
			want: "moderate",
		},
		{
			name: "low at two or fewer",
			posts: []engage.Post{
				samplePost("🚗 pothole on Mission"),
				samplePost("road work ahead"),
			},
			want: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints := Derive(tt.posts, "San Francisco")
			assert.Equal(t, tt.want, hints.EmojiUsage)
			assert.Equal(t, len(tt.posts), hints.PostsAnalyzed)
		})
	}
}

func TestDeriveCTAStyle(t *testing.T) {
	cta := samplePost("Report this to the city! Help us fix our streets")
	plain := samplePost("pothole spotted on Valencia")

	tests := []struct {
		name  string
		posts []engage.Post
		want  string
	}{
		{"urgent above 0.7", []engage.Post{cta, cta, cta, plain}, "urgent"},
		{"direct above 0.4", []engage.Post{cta, cta, plain, plain}, "direct"},
		{"community otherwise", []engage.Post{cta, plain, plain, plain}, "community"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.posts, "Oakland").CTAStyle)
		})
	}
}

func TestDeriveHashtagRanking(t *testing.T) {
	posts := []engage.Post{
		samplePost("", "FixSF", "SF311"),
		samplePost("", "SF311", "VisionZero"),
		samplePost("", "SF311", "FixSF"),
	}

	hints := Derive(posts, "San Francisco")
	assert.Equal(t, []string{"SF311", "FixSF", "VisionZero"}, hints.Hashtags)
}

func TestDeriveHashtagsFromText(t *testing.T) {
	posts := []engage.Post{
		samplePost("huge pothole #FixSF #SF311"),
		samplePost("still there #SF311"),
	}

	hints := Derive(posts, "San Francisco")
	assert.Equal(t, []string{"SF311", "FixSF"}, hints.Hashtags)
}

func TestDeriveOptimalLength(t *testing.T) {
	posts := []engage.Post{
		samplePost("1234567890"),
		samplePost("12345678901234567890"),
	}

	assert.Equal(t, 15, Derive(posts, "").OptimalLength)
}

func TestDeriveEmptyFallsBackToDefaults(t *testing.T) {
	hints := Derive(nil, "Oakland")
	assert.Equal(t, 0, hints.PostsAnalyzed)
	assert.Equal(t, "high", hints.EmojiUsage)
	assert.Equal(t, "community", hints.CTAStyle)
	assert.Contains(t, hints.Hashtags, "FixOakland")
}

func TestDefaultsKnownCities(t *testing.T) {
	sf := Defaults("San Francisco")
	assert.Equal(t, 180, sf.OptimalLength)
	assert.Equal(t, "moderate", sf.EmojiUsage)
	assert.Equal(t, "direct", sf.CTAStyle)
	assert.Contains(t, sf.Hashtags, "FixSF")

	berkeley := Defaults("Berkeley")
	assert.Contains(t, berkeley.Hashtags, "Berkeley311")
}

func TestDefaultsUnknownCityBrandedHashtag(t *testing.T) {
	hints := Defaults("san jose")
	assert.Equal(t, "FixSanJose", hints.Hashtags[0])
	assert.Contains(t, hints.Hashtags, "CivicAction")
	assert.Equal(t, 150, hints.OptimalLength)
	assert.Equal(t, "direct", hints.CTAStyle)
}

func TestDefaultsEmptyCity(t *testing.T) {
	hints := Defaults("")
	assert.Equal(t, []string{"FixOurStreets", "CivicAction", "CommunityFirst"}, hints.Hashtags)
}
