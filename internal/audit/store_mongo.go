package audit

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// auditMongoModel is the wire shape persisted to MongoDB, mirroring the
// teacher's pattern of a dedicated *MongoDBModel type decoupled from the
// domain Record (components/audit/internal/adapters/mongodb/audit/audit.go).
type auditMongoModel struct {
	TenantID       string   `bson:"tenant_id"`
	SubjectType    string   `bson:"subject_type"`
	SubjectID      string   `bson:"subject_id"`
	FieldPath      string   `bson:"field_path"`
	RecordID       string   `bson:"record_id"`
	MaskApplied    string   `bson:"mask_applied"`
	Reason         string   `bson:"reason"`
	ZanzibarChecks []string `bson:"zanzibar_checks"`
	EvaluationMS   float64  `bson:"evaluation_ms"`
	Timestamp      int64    `bson:"timestamp_unix_ns"`
	IP             string   `bson:"ip"`
	RequestID      string   `bson:"request_id"`
	OverrideID     string   `bson:"override_id,omitempty"`
	Elevated       bool     `bson:"elevated"`
	Role           string   `bson:"role,omitempty"`
}

func modelFromRecord(r Record) auditMongoModel {
	return auditMongoModel{
		TenantID:       r.TenantID,
		SubjectType:    r.SubjectType,
		SubjectID:      r.SubjectID,
		FieldPath:      r.FieldPath,
		RecordID:       r.RecordID,
		MaskApplied:    r.MaskApplied,
		Reason:         r.Reason,
		ZanzibarChecks: r.ZanzibarChecks,
		EvaluationMS:   r.EvaluationMS,
		Timestamp:      r.Timestamp.UnixNano(),
		IP:             r.IP,
		RequestID:      r.RequestID,
		OverrideID:     r.OverrideID,
		Elevated:       r.Elevated,
		Role:           r.Role,
	}
}

// MongoStore is the append-only Sink backing audit retention: PHI access
// records land in monthly collections (`audit_phi_access_2026_07`),
// session/auth events in daily ones (`audit_session_2026_07_31`), per
// spec §3's ≥7-year PHI retention requirement. Grounded on the teacher's
// `components/audit/internal/adapters/mongodb/audit/audit.mongodb.go`
// collection-per-name connection shape, generalized from a single fixed
// collection to one resolved per record's Kind and timestamp.
type MongoStore struct {
	database *mongo.Database
}

// NewMongoStore wraps an already-connected *mongo.Client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{database: client.Database(strings.ToLower(database))}
}

func collectionFor(r Record) string {
	switch r.Kind {
	case KindSession:
		return fmt.Sprintf("audit_session_%s", r.Timestamp.UTC().Format("2006_01_02"))
	default:
		return fmt.Sprintf("audit_phi_access_%s", r.Timestamp.UTC().Format("2006_01"))
	}
}

// Write inserts one record. Audit collections are append-only: no Update
// or Delete path exists on this store.
func (s *MongoStore) Write(ctx context.Context, r Record) error {
	coll := s.database.Collection(collectionFor(r))

	if _, err := coll.InsertOne(ctx, modelFromRecord(r)); err != nil {
		return rcerrors.Internal("audit.mongo_insert", err)
	}

	return nil
}

// EnsureIndexes creates the indexes audit queries rely on
// (override_id lookups for break-glass reconstruction, tenant+record_id
// for per-patient access history). Idempotent; safe to call at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context, collection string) error {
	_, err := s.database.Collection(collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "override_id", Value: 1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "record_id", Value: 1}}},
	})
	if err != nil {
		return rcerrors.Internal("audit.mongo_index", err)
	}

	return nil
}
