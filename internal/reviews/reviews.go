// Package reviews serves the third-party store review feed through a
// short-TTL redis cache. Stale data up to the TTL is acceptable; an admin
// refresh invalidates explicitly.
package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
)

const cacheKey = "reviews:place"

type Service struct {
	Redis      *redis.Client
	HTTPClient *http.Client

	PlacesURL string
	APIKey    string
	PlaceID   string
	TTL       time.Duration
}

func NewService(rdb *redis.Client, placesURL, apiKey, placeID string, ttl time.Duration) *Service {
	return &Service{
		Redis:      rdb,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		PlacesURL:  placesURL,
		APIKey:     apiKey,
		PlaceID:    placeID,
		TTL:        ttl,
	}
}

// Get returns the cached review payload, fetching and caching on a miss.
func (s *Service) Get(ctx context.Context) (json.RawMessage, error) {
	val, err := s.Redis.Get(ctx, cacheKey).Result()
	if err == nil {
		return json.RawMessage(val), nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reviews: cache read: %w", err)
	}
	return s.fetchAndCache(ctx)
}

// Refresh drops the cache and refetches. Admin-triggered.
func (s *Service) Refresh(ctx context.Context) (json.RawMessage, error) {
	if err := s.Redis.Del(ctx, cacheKey).Err(); err != nil {
		return nil, fmt.Errorf("reviews: cache invalidate: %w", err)
	}
	return s.fetchAndCache(ctx)
}

func (s *Service) fetchAndCache(ctx context.Context) (json.RawMessage, error) {
	u := fmt.Sprintf("%s?place_id=%s&fields=name,rating,reviews&key=%s",
		s.PlacesURL, url.QueryEscape(s.PlaceID), url.QueryEscape(s.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reviews: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reviews: fetch returned %d: %s", resp.StatusCode, body)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("reviews: upstream returned invalid JSON")
	}

	if err := s.Redis.Set(ctx, cacheKey, payload, s.TTL).Err(); err != nil {
		return nil, fmt.Errorf("reviews: cache write: %w", err)
	}
	return payload, nil
}
