package location

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
)

const locationsKey = "locations"

type LocationServicer interface {
	Get(ctx context.Context) (*model.Locations, error)
	Reload(ctx context.Context) (*model.Locations, error)
}

type Service struct {
	repo     repository.VaccinationRepository
	cache    *cache.Cache
	pageSize int
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(repo repository.VaccinationRepository, ttl time.Duration, pageSize int, log *logger.Logger) *Service {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Service{
		repo:     repo,
		cache:    cache.New(ttl, 2*ttl),
		pageSize: pageSize,
		logger:   log.With("component", "locations"),
		now:      time.Now,
	}
}

// Get returns the cached locations, loading them on first use.
func (s *Service) Get(ctx context.Context) (*model.Locations, error) {
	if cached, ok := s.cache.Get(locationsKey); ok {
		return cached.(*model.Locations), nil
	}
	return s.Reload(ctx)
}

// Reload reads every region and sub-region page by page and replaces the
// cached lists.
func (s *Service) Reload(ctx context.Context) (*model.Locations, error) {
	regions := make(map[string]bool)
	subRegions := make(map[string]bool)

	for offset := 0; ; offset += s.pageSize {
		rows, err := s.repo.ListLocations(ctx, offset, s.pageSize)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if v := normalize(row.Region); v != "" {
				regions[v] = true
			}
			if v := normalize(row.SubRegion); v != "" {
				subRegions[v] = true
			}
		}
		if len(rows) < s.pageSize {
			break
		}
	}

	now := s.now().UTC()
	locations := &model.Locations{
		Regions:     sortedKeys(regions),
		SubRegions:  sortedKeys(subRegions),
		LastUpdated: &now,
	}
	s.cache.SetDefault(locationsKey, locations)
	s.logger.Debug("Locations reloaded",
		"regions", len(locations.Regions),
		"sub_regions", len(locations.SubRegions))
	return locations, nil
}

func normalize(v *string) string {
	return strings.ToUpper(strings.TrimSpace(model.Deref(v)))
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
