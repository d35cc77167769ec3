package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-payments/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const userProfileCacheKeyPrefix = "go-payments::user_profile::v1"

// ProfileStore is the write side the cached reader invalidates through.
type ProfileStore interface {
	core.UserProfileReader
	UpdateUserProfile(ctx context.Context, externalID string, profile core.UserProfile) error
}

// CachedUserProfileReader serves checkout profile reads from a cache. Profiles
// never carry balances, so a stale entry cannot leak ledger state.
type CachedUserProfileReader struct {
	base  ProfileStore
	cache repositorycache.CacheService
}

func NewCachedUserProfileReader(base ProfileStore, cacheService repositorycache.CacheService) (*CachedUserProfileReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base profile store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: profile cache service is required")
	}
	return &CachedUserProfileReader{base: base, cache: cacheService}, nil
}

// UserProfileCacheKey returns go-payments::user_profile::v1::<external_id>
// with the id URL-path escaped.
func UserProfileCacheKey(externalID string) (string, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", fmt.Errorf("sqlstore: user external id is required")
	}
	return userProfileCacheKeyPrefix + "::" + url.PathEscape(externalID), nil
}

func (r *CachedUserProfileReader) GetUserProfile(ctx context.Context, externalID string) (core.UserProfile, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.UserProfile{}, fmt.Errorf("sqlstore: cached profile reader is not configured")
	}
	cacheKey, err := UserProfileCacheKey(externalID)
	if err != nil {
		return core.UserProfile{}, err
	}
	externalID = strings.TrimSpace(externalID)
	return repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (core.UserProfile, error) {
		return r.base.GetUserProfile(ctx, externalID)
	})
}

func (r *CachedUserProfileReader) UpdateUserProfile(ctx context.Context, externalID string, profile core.UserProfile) error {
	if r == nil || r.base == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached profile reader is not configured")
	}
	cacheKey, err := UserProfileCacheKey(externalID)
	if err != nil {
		return err
	}
	if err := r.base.UpdateUserProfile(ctx, strings.TrimSpace(externalID), profile); err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}
