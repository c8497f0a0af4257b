package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/pkg/geocode"
)

// GeoResolver is the reverse-geocoding stage. Resolution failure is routine,
// not exceptional: the stage always hands back a usable address, substituting
// the configured default city/state when the provider has nothing. No retries,
// a single miss is cheaper than the added latency.
type GeoResolver struct {
	geo          geocode.Client
	defaultCity  string
	defaultState string
}

// NewGeoResolver creates the stage with the defaults substituted on failure.
func NewGeoResolver(geo geocode.Client, defaultCity, defaultState string) *GeoResolver {
	return &GeoResolver{geo: geo, defaultCity: defaultCity, defaultState: defaultState}
}

// Resolve turns a coordinate into a street address. A non-nil StageFailure
// means defaults were substituted; the address is usable either way.
func (g *GeoResolver) Resolve(ctx context.Context, lat, lon float64) (model.Address, *StageFailure) {
	addr := model.Address{City: g.defaultCity, State: g.defaultState}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return addr, &StageFailure{
			Kind:   FailureGeocode,
			Reason: fmt.Sprintf("coordinates out of range: (%f, %f)", lat, lon),
		}
	}

	res, err := g.geo.Reverse(ctx, lat, lon)
	if err != nil {
		zap.L().Warn("reverse geocoding failed, using default city",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return addr, &StageFailure{Kind: FailureGeocode, Reason: err.Error()}
	}
	if !res.Matched {
		return addr, &StageFailure{Kind: FailureGeocode, Reason: "no address at coordinate"}
	}

	addr.Line = res.Street
	addr.ZipCode = res.ZipCode
	if res.City != "" {
		addr.City = res.City
	}
	if res.State != "" {
		addr.State = res.State
	}
	return addr, nil
}
