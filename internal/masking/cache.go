package masking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PolicyCache is the 5-minute-TTL cache keyed by (tenant, field_path)
// spec §4.D "Policy selection" names. Backed by redis (same as
// internal/authz's caches) so it is shared across process replicas.
// Invalidation is driven by Invalidate, called when a write to
// masking_policies publishes its invalidation event — there is no
// index-set bookkeeping here because a policy write only ever affects
// the one (tenant, field_path) key it targets.
type PolicyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPolicyCache(client *redis.Client, ttl time.Duration) *PolicyCache {
	return &PolicyCache{client: client, ttl: ttl}
}

func policyCacheKey(tenantID, fieldPath string) string {
	return "masking:policy:" + tenantID + ":" + fieldPath
}

func (c *PolicyCache) Get(ctx context.Context, tenantID, fieldPath string) (*Policy, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, policyCacheKey(tenantID, fieldPath)).Bytes()
	if err != nil {
		return nil, false
	}

	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}

	return &p, true
}

func (c *PolicyCache) Put(ctx context.Context, tenantID, fieldPath string, policy *Policy) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}

	_ = c.client.Set(ctx, policyCacheKey(tenantID, fieldPath), raw, c.ttl).Err()
}

func (c *PolicyCache) Invalidate(ctx context.Context, tenantID, fieldPath string) {
	if c == nil || c.client == nil {
		return
	}

	_ = c.client.Del(ctx, policyCacheKey(tenantID, fieldPath)).Err()
}

// decisionCacheKey hashes (subject, field, record) into a fixed-width
// redis key, avoiding delimiter-escaping over arbitrary record ids.
func decisionCacheKey(tenantID, subject, fieldPath, recordID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", tenantID, subject, fieldPath, recordID)))
	return "masking:decision:" + hex.EncodeToString(sum[:])
}

// DecisionCache is the 60s-TTL `(subject, field, record) -> pattern`
// cache of spec §4.D "Decision cache". Rule 1 (an active override) is
// never cached here — overrides change frequently and the engine must
// re-check the override store on every evaluation.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	return &DecisionCache{client: client, ttl: ttl}
}

func (c *DecisionCache) Get(ctx context.Context, tenantID, subject, fieldPath, recordID string) (*MaskPattern, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, decisionCacheKey(tenantID, subject, fieldPath, recordID)).Bytes()
	if err != nil {
		return nil, false
	}

	var pattern MaskPattern
	if err := json.Unmarshal(raw, &pattern); err != nil {
		return nil, false
	}

	return &pattern, true
}

func (c *DecisionCache) Put(ctx context.Context, tenantID, subject, fieldPath, recordID string, pattern MaskPattern) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(pattern)
	if err != nil {
		return
	}

	_ = c.client.Set(ctx, decisionCacheKey(tenantID, subject, fieldPath, recordID), raw, c.ttl).Err()
}
