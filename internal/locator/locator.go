package locator

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"pinturapos/backend/internal/cache"
	"pinturapos/backend/internal/domain"
)

const earthRadiusKM = 6371.0

// Engine resolves the branch nearest to a point. Branch coordinates change
// rarely, so results are cached by rounded coordinates.
type Engine struct {
	cache    cache.NearestBranchCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.NearestBranchCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopNearestBranchCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Nearest picks the branch with the smallest great-circle distance to the
// given point. Branches without coordinates are skipped; a nil result means
// no branch is locatable.
func (e *Engine) Nearest(ctx context.Context, lat float64, lng float64, branches []domain.Branch) *domain.NearestBranch {
	if len(branches) == 0 {
		return nil
	}

	cacheKey := buildCacheKey(lat, lng, len(branches))
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached
	}

	var best *domain.NearestBranch
	for _, branch := range branches {
		if branch.Latitude == 0 && branch.Longitude == 0 {
			continue
		}
		distance := haversineKM(lat, lng, branch.Latitude, branch.Longitude)
		if best == nil || distance < best.DistanceKM {
			best = &domain.NearestBranch{
				Branch:     branch,
				DistanceKM: round2(distance),
			}
		}
	}

	if best != nil {
		_ = e.cache.Set(ctx, cacheKey, best, e.cacheTTL)
	}
	return best
}

func haversineKM(lat1 float64, lng1 float64, lat2 float64, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func buildCacheKey(lat float64, lng float64, branchCount int) string {
	// Four decimals is roughly 11 meters, close enough for branch routing.
	raw := fmt.Sprintf("%.4f|%.4f|%d", lat, lng, branchCount)
	hash := sha1.Sum([]byte(raw))
	return "pos:nearest-branch:" + hex.EncodeToString(hash[:])
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
