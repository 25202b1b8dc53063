package fanout

import (
	"context"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/your-org/crowdwatch/internal/config"
	"github.com/your-org/crowdwatch/internal/models"
)

const earthRadiusMeters = 6371008.8

// StaticDirectory filters a configured recipient list by great-circle distance.
type StaticDirectory struct {
	entries []config.RecipientConfig
}

func NewStaticDirectory(entries []config.RecipientConfig) *StaticDirectory {
	return &StaticDirectory{entries: entries}
}

func (d *StaticDirectory) Nearby(_ context.Context, loc models.Location, radiusMeters float64) ([]models.Recipient, error) {
	origin := latLng(loc)

	type hit struct {
		r    models.Recipient
		dist float64
	}
	var hits []hit
	for _, e := range d.entries {
		dist := distanceMeters(origin, s2.LatLngFromDegrees(e.Latitude, e.Longitude))
		if dist <= radiusMeters {
			hits = append(hits, hit{r: models.Recipient{ID: e.ID, Address: e.Address}, dist: dist})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]models.Recipient, len(hits))
	for i, h := range hits {
		out[i] = h.r
	}
	return out, nil
}

func distanceMeters(a, b s2.LatLng) float64 {
	return a.Distance(b).Radians() * earthRadiusMeters
}

func latLng(l models.Location) s2.LatLng {
	return s2.LatLngFromDegrees(l.Latitude, l.Longitude)
}
