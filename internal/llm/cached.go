package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/spherical/paper-video/internal/cache"
	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// CacheKeyPrefix namespaces explanation entries in the shared cache
const CacheKeyPrefix = "explain:"

// CachedExplainer reuses explanations for identical (model, context, image)
// inputs. Cache failures degrade to a direct call.
type CachedExplainer struct {
	next   domain.ExplanationService
	cache  cache.Client
	model  string
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedExplainer wraps next with cache lookups. model is part of the key
// so switching models never serves stale text.
func NewCachedExplainer(next domain.ExplanationService, c cache.Client, model string, ttl time.Duration, logger *observability.Logger) *CachedExplainer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &CachedExplainer{
		next:   next,
		cache:  c,
		model:  model,
		ttl:    ttl,
		logger: logger,
	}
}

// Explain returns the cached explanation or delegates and stores the result
func (e *CachedExplainer) Explain(ctx context.Context, img domain.ImageAsset, contextText string) (string, error) {
	key := e.key(img, contextText)

	cached, err := e.cache.Get(ctx, key)
	switch {
	case err == nil:
		e.logger.WithContext(ctx).Debug().Stringer("image", img.ID).Msg("Explanation cache hit")
		return string(cached), nil
	case !errors.Is(err, cache.ErrCacheMiss):
		e.logger.Warn().Err(err).Msg("Explanation cache read failed")
	}

	text, err := e.next.Explain(ctx, img, contextText)
	if err != nil {
		return "", err
	}

	if err := e.cache.Set(ctx, key, []byte(text), e.ttl); err != nil {
		e.logger.Warn().Err(err).Msg("Explanation cache write failed")
	}
	return text, nil
}

func (e *CachedExplainer) key(img domain.ImageAsset, contextText string) string {
	h := sha256.New()
	h.Write([]byte(e.model))
	h.Write([]byte{0})
	h.Write([]byte(contextText))
	h.Write([]byte{0})
	h.Write(img.Data)
	return CacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
