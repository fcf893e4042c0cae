package geo

import (
	"context"

	"github.com/zerohunger/foodbridge/internal/logctx"
	"github.com/zerohunger/foodbridge/internal/telemetry"
)

// Fallback is a Geocoder decorator that converts any resolution failure into
// a single deterministic coordinate, so listing creation never fails on a
// geocoder outage. The degradation is logged; the fixed coordinate comes from
// configuration rather than being synthesized per address.
type Fallback struct {
	inner     Geocoder
	coords    Coordinates
	telemetry *telemetry.Telemetry
}

// NewFallback creates a fallback geocoder around inner.
func NewFallback(inner Geocoder, coords Coordinates, tel *telemetry.Telemetry) *Fallback {
	return &Fallback{
		inner:     inner,
		coords:    coords,
		telemetry: tel,
	}
}

func (f *Fallback) Resolve(ctx context.Context, address string) (Coordinates, error) {
	coords, err := f.inner.Resolve(ctx, address)
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "geocoding degraded, using fallback coordinates", "err", err)

		if f.telemetry != nil {
			f.telemetry.RecordGeocode("fallback", "success")
		}

		return f.coords, nil
	}

	return coords, nil
}
