package middleware

import (
	"context"
	"time"

	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/corebridge/llmgateway/pkg/modelcache"
)

// KeyFunc derives a cache key from a request. Callers typically hash the
// normalized messages + parameters, deliberately excluding Metadata.RequestID
// so identical conversations share a cache entry.
type KeyFunc func(ir.ChatRequest) string

// Caching keys by KeyFunc over the IR request; on a hit it returns a clone
// (ir.ChatResponse.Clone) so callers can't mutate the cached entry, and on
// a miss it calls next() and stores the result for TTL. Backed by the same
// modelcache.Store the model-listing cache uses. Streaming calls are never
// cached: caching an in-flight chunk channel would require collecting it
// into a stored value and replaying it, which this middleware does not do.
type Caching struct {
	Store *modelcache.Store
	Key   KeyFunc
	TTL   time.Duration
}

// NewCaching builds a Caching middleware over store, keying with key and
// expiring entries after ttl.
func NewCaching(store *modelcache.Store, key KeyFunc, ttl time.Duration) *Caching {
	return &Caching{Store: store, Key: key, TTL: ttl}
}

func (m *Caching) WrapUnary(next UnaryHandler) UnaryHandler {
	return func(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
		key := m.Key(req)
		v, err := m.Store.GetOrLoad(key, m.TTL, func() (interface{}, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp, nil
		})
		if err != nil {
			return ir.ChatResponse{}, err
		}
		return v.(ir.ChatResponse).Clone(), nil
	}
}

// WrapStream passes through unchanged; see the Caching doc comment.
func (m *Caching) WrapStream(next StreamHandler) StreamHandler {
	return next
}
