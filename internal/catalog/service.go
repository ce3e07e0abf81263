package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
)

var (
	ErrInvalidName = errors.New("catalog: name is required")
	ErrNotFound    = errors.New("catalog: not found")
	ErrDuplicate   = errors.New("catalog: already exists")
)

// DefaultBrands seeds an empty brand list.
var DefaultBrands = []string{"Apple", "Samsung", "Sony", "LG", "Microsoft", "Dell"}

const maxNameLen = 128

type cached struct {
	values  []string
	expires time.Time
}

// Service serves the reference lists with a short in-process cache in front
// of Redis. Concurrent misses for one list share a single Redis read.
type Service struct {
	store *RedisStore
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cached
}

// NewService builds the catalog service. ttl <= 0 disables the cache.
func NewService(store *RedisStore, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl, now: time.Now, cache: make(map[string]cached)}
}

// Brands lists the known brands, seeding DefaultBrands into an empty list.
func (s *Service) Brands(ctx context.Context) ([]string, error) {
	return s.load(ctx, brandsKey, func(ctx context.Context) error {
		defaults := make(map[string]string, len(DefaultBrands))
		for _, b := range DefaultBrands {
			defaults[s.key(b)] = b
		}
		return s.store.seed(ctx, brandsKey, defaults)
	})
}

// Categories lists the item categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.load(ctx, categoriesKey, nil)
}

// Models lists the models recorded for brand.
func (s *Service) Models(ctx context.Context, brand string) ([]string, error) {
	name, err := cleanName(brand)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.exists(ctx, brandsKey, s.key(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: brand %q", ErrNotFound, name)
	}
	return s.load(ctx, modelsKey(s.key(name)), nil)
}

// AddBrand records brand and returns the stored spelling.
func (s *Service) AddBrand(ctx context.Context, brand string) (string, error) {
	return s.add(ctx, brandsKey, brand)
}

// AddCategory records category and returns the stored spelling.
func (s *Service) AddCategory(ctx context.Context, category string) (string, error) {
	return s.add(ctx, categoriesKey, category)
}

// AddModel records model under brand, adding the brand when it is new.
func (s *Service) AddModel(ctx context.Context, brand, model string) (string, error) {
	brandName, err := cleanName(brand)
	if err != nil {
		return "", err
	}
	if _, err := s.store.add(ctx, brandsKey, s.key(brandName), brandName); err != nil {
		return "", err
	}
	s.invalidate(brandsKey)
	return s.add(ctx, modelsKey(s.key(brandName)), model)
}

// RemoveBrand deletes the brand and every model recorded for it.
func (s *Service) RemoveBrand(ctx context.Context, brand string) error {
	name, err := cleanName(brand)
	if err != nil {
		return err
	}
	removed, err := s.store.removeBrand(ctx, s.key(name))
	if err != nil {
		return err
	}
	s.invalidate(brandsKey, modelsKey(s.key(name)))
	if !removed {
		return fmt.Errorf("%w: brand %q", ErrNotFound, name)
	}
	return nil
}

// RemoveCategory deletes category. Unknown names return ErrNotFound.
func (s *Service) RemoveCategory(ctx context.Context, category string) error {
	return s.remove(ctx, categoriesKey, category)
}

// RemoveModel deletes model from brand. Unknown names return ErrNotFound.
func (s *Service) RemoveModel(ctx context.Context, brand, model string) error {
	brandName, err := cleanName(brand)
	if err != nil {
		return err
	}
	return s.remove(ctx, modelsKey(s.key(brandName)), model)
}

func (s *Service) add(ctx context.Context, key, raw string) (string, error) {
	name, err := cleanName(raw)
	if err != nil {
		return "", err
	}
	added, err := s.store.add(ctx, key, s.key(name), name)
	if err != nil {
		return "", err
	}
	s.invalidate(key)
	if !added {
		return "", fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	return name, nil
}

func (s *Service) remove(ctx context.Context, key, raw string) error {
	name, err := cleanName(raw)
	if err != nil {
		return err
	}
	removed, err := s.store.remove(ctx, key, s.key(name))
	if err != nil {
		return err
	}
	s.invalidate(key)
	if !removed {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

func (s *Service) load(ctx context.Context, key string, prepare func(context.Context) error) ([]string, error) {
	if values, ok := s.cached(key); ok {
		return values, nil
	}
	// The shared read outlives any single caller so one cancellation does
	// not fail the others waiting on it.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		ctx := shared
		if prepare != nil {
			if err := prepare(ctx); err != nil {
				return nil, err
			}
		}
		values, err := s.store.list(ctx, key)
		if err != nil {
			return nil, err
		}
		s.put(key, values)
		return values, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]string(nil), res.Val.([]string)...), nil
	}
}

func (s *Service) cached(key string) ([]string, bool) {
	if s.ttl <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || s.now().After(entry.expires) {
		return nil, false
	}
	return append([]string(nil), entry.values...), true
}

func (s *Service) put(key string, values []string) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.cache[key] = cached{values: values, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

func (s *Service) invalidate(keys ...string) {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.cache, k)
	}
	s.mu.Unlock()
}

// key folds case for lookups. A Caser keeps state, so each call gets its own.
func (s *Service) key(name string) string {
	return cases.Fold().String(name)
}

func cleanName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", ErrInvalidName
	}
	if len(name) > maxNameLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLen)
	}
	return name, nil
}
