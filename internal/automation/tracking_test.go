package automation

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civicsight/civicsight/internal/model"
)

func TestParseConfirmation_TrackingNumber(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			"tracking number with label",
			"Submission complete. Tracking Number: SF311-20260815-0042319",
			"SF311-20260815-0042319",
		},
		{
			"case number",
			"Your case #10482937 has been filed.",
			"10482937",
		},
		{
			"service request",
			"Service Request: 311-2026-0815123 created",
			"311-2026-0815123",
		},
		{
			"confirmation code",
			"confirmation code 88812345678",
			"88812345678",
		},
		{
			"reference",
			"Reference # CASE-30118267",
			"CASE-30118267",
		},
		{
			"too few digits rejected",
			"Tracking Number: ABC-1234",
			"",
		},
		{
			"no match",
			"Thank you for your submission.",
			"",
		},
		{
			"first qualifying match wins",
			"tracking: SHORT-12 ... tracking: LONG-202608150099",
			"LONG-202608150099",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseConfirmation(tt.output).TrackingNumber)
		})
	}
}

func TestParseConfirmation_Address(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			"json confirmation payload",
			`{"status":"ok","requestAddress": "123 Market St, San Francisco, CA 94103"}`,
			"123 Market St, San Francisco, CA 94103",
		},
		{
			"js object literal",
			"result = { requestAddress: '2000 Telegraph Ave, Oakland' }",
			"2000 Telegraph Ave, Oakland",
		},
		{
			"plain text line",
			"Submission received.\nAddress: 55 Shattuck Ave  \nThank you.",
			"55 Shattuck Ave",
		},
		{
			"structured payload wins over text line",
			"Address: wrong one\n{\"requestAddress\": \"77 Valencia St\"}",
			"77 Valencia St",
		},
		{
			"no address",
			"Tracking Number: SF311-20260815-0042319",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseConfirmation(tt.output).Address)
		})
	}
}

func TestParseConfirmation_Both(t *testing.T) {
	out := "Service Request: 311-2026-0815123 created\nAddress: 123 Market St"
	conf := ParseConfirmation(out)
	assert.Equal(t, "311-2026-0815123", conf.TrackingNumber)
	assert.Equal(t, "123 Market St", conf.Address)
}

func TestFallbackTrackingNumber_KnownCities(t *testing.T) {
	format := regexp.MustCompile(`^(SF311|OAK311|BERK311|CITY311)-\d{4}-\d{6}$`)

	for city, prefix := range map[string]string{
		"San Francisco": "SF311",
		"oakland":       "OAK311",
		"Berkeley":      "BERK311",
		"Fresno":        "CITY311",
	} {
		got := FallbackTrackingNumber(city)
		assert.True(t, format.MatchString(got), "unexpected format: %s", got)
		assert.Contains(t, got, prefix)
	}
}

func TestFallbackTrackingNumber_Varies(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[FallbackTrackingNumber("San Francisco")] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestDepartment(t *testing.T) {
	name, rt := Department(model.CategoryGraffiti)
	assert.Equal(t, "Public Works - Graffiti Abatement", name)
	assert.Equal(t, "48 hours", rt)

	name, rt = Department(model.CategoryNone)
	assert.Equal(t, "General Services", name)
	assert.Equal(t, "varies", rt)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(model.CategoryRoadCrack))
	assert.True(t, Supported(model.CategoryFallenTree))
	assert.False(t, Supported(model.CategoryNone))
}
