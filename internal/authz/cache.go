package authz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dayBucket truncates a timestamp to a UTC day boundary, so a cache entry
// can never straddle a time-constraint boundary silently (spec §4.C
// "Caching").
func dayBucket(t time.Time) int64 {
	return t.UTC().Truncate(24 * time.Hour).Unix()
}

// decisionCacheKey hashes the full lookup tuple into a fixed-width redis
// key, avoiding delimiter-escaping concerns over subject/object ids of
// arbitrary shape.
func decisionCacheKey(tenantID string, subject SubjectRef, relation string, object ObjectRef, bucket int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%d",
		tenantID, subject.Type, subject.ID, subject.Relation, relation,
		object.Namespace, object.Type, object.ID, bucket)))
	return "authz:decision:" + hex.EncodeToString(sum[:])
}

func objectIndexKey(tenantID string, object ObjectRef) string {
	return "authz:decision-idx:obj:" + tenantID + ":" + object.Namespace + ":" + object.Type + ":" + object.ID
}

func subjectIndexKey(tenantID string, subject SubjectRef) string {
	return "authz:decision-idx:subj:" + tenantID + ":" + subject.Type + ":" + subject.ID + ":" + subject.Relation
}

// DecisionCache is the 60s-TTL cache keyed by (tenant, subject, relation,
// object, day-bucket), backed by redis so it is shared across process
// replicas rather than pinned to one evaluator instance (spec §4.C). A
// redis failure degrades to a cache miss — it never fails a Check, since
// the cache is a pure optimization over the authoritative TupleStore.
// Invalidation is tag-based: each Put registers its key in the object's
// and subject's index sets, and InvalidateObject/InvalidateSubject delete
// every key those sets name, rather than scanning the keyspace.
type DecisionCache struct {
	client   *redis.Client
	ttl      time.Duration
	indexTTL time.Duration
}

// NewDecisionCache builds a decision cache over an existing redis client.
func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	return &DecisionCache{client: client, ttl: ttl, indexTTL: ttl * 4}
}

// Get returns a cached decision for (subject, relation, object) as of
// asOf. A redis error or absent key is reported as a miss.
func (c *DecisionCache) Get(ctx context.Context, tenantID string, subject SubjectRef, relation string, object ObjectRef, asOf time.Time) (bool, bool) {
	if c == nil || c.client == nil {
		return false, false
	}

	key := decisionCacheKey(tenantID, subject, relation, object, dayBucket(asOf))

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return false, false
	}

	return val == "1", true
}

// Put stores a decision and registers it in the object/subject index sets
// used for write-time invalidation. Errors are swallowed — a failed cache
// write never fails the check that produced the decision.
func (c *DecisionCache) Put(ctx context.Context, tenantID string, subject SubjectRef, relation string, object ObjectRef, asOf time.Time, allowed bool) {
	if c == nil || c.client == nil {
		return
	}

	key := decisionCacheKey(tenantID, subject, relation, object, dayBucket(asOf))
	val := "0"
	if allowed {
		val = "1"
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, val, c.ttl)
	pipe.SAdd(ctx, objectIndexKey(tenantID, object), key)
	pipe.Expire(ctx, objectIndexKey(tenantID, object), c.indexTTL)
	pipe.SAdd(ctx, subjectIndexKey(tenantID, subject), key)
	pipe.Expire(ctx, subjectIndexKey(tenantID, subject), c.indexTTL)
	_, _ = pipe.Exec(ctx)
}

// InvalidateObject drops every cached decision about a specific object,
// scoped by (tenant, object_type, object_id) per spec §4.C write-time
// invalidation.
func (c *DecisionCache) InvalidateObject(ctx context.Context, tenantID string, object ObjectRef) {
	if c == nil || c.client == nil {
		return
	}
	c.invalidateIndex(ctx, objectIndexKey(tenantID, object))
}

// InvalidateSubject drops every cached decision about a specific subject.
func (c *DecisionCache) InvalidateSubject(ctx context.Context, tenantID string, subject SubjectRef) {
	if c == nil || c.client == nil {
		return
	}
	c.invalidateIndex(ctx, subjectIndexKey(tenantID, subject))
}

func (c *DecisionCache) invalidateIndex(ctx context.Context, indexKey string) {
	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return
	}

	if len(members) > 0 {
		_ = c.client.Del(ctx, members...).Err()
	}
	_ = c.client.Del(ctx, indexKey).Err()
}

func expansionCacheKey(tenantID string, object ObjectRef, relation string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s", tenantID, object.Namespace, object.Type, object.ID, relation)))
	return "authz:expansion:" + hex.EncodeToString(sum[:])
}

func expansionIndexKey(tenantID string, object ObjectRef) string {
	return "authz:expansion-idx:obj:" + tenantID + ":" + object.Namespace + ":" + object.Type + ":" + object.ID
}

// ExpansionCache caches Expand results, keyed by (tenant, object,
// relation), backed by the same redis client as DecisionCache.
type ExpansionCache struct {
	client   *redis.Client
	ttl      time.Duration
	indexTTL time.Duration
}

// NewExpansionCache builds an expansion cache over an existing redis client.
func NewExpansionCache(client *redis.Client, ttl time.Duration) *ExpansionCache {
	return &ExpansionCache{client: client, ttl: ttl, indexTTL: ttl * 4}
}

func (c *ExpansionCache) Get(ctx context.Context, tenantID string, object ObjectRef, relation string) (*UsersetTree, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, expansionCacheKey(tenantID, object, relation)).Bytes()
	if err != nil {
		return nil, false
	}

	var tree UsersetTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, false
	}

	return &tree, true
}

func (c *ExpansionCache) Put(ctx context.Context, tenantID string, object ObjectRef, relation string, tree *UsersetTree) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return
	}

	key := expansionCacheKey(tenantID, object, relation)
	idx := expansionIndexKey(tenantID, object)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, c.indexTTL)
	_, _ = pipe.Exec(ctx)
}

func (c *ExpansionCache) InvalidateObject(ctx context.Context, tenantID string, object ObjectRef) {
	if c == nil || c.client == nil {
		return
	}

	idx := expansionIndexKey(tenantID, object)
	members, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return
	}

	if len(members) > 0 {
		_ = c.client.Del(ctx, members...).Err()
	}
	_ = c.client.Del(ctx, idx).Err()
}
