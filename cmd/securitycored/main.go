// Command securitycored boots the RustCare data-plane security core: the
// fiber HTTP front wired to the Security Context Pipeline, the
// Authorization Engine, the Masking Engine, and the Envelope Encryption
// key management behind it. Mirrors the teacher's cmd/app/main.go +
// internal/bootstrap split, collapsed into one process since this
// module ships a single cohesive security core rather than midaz's
// multiple ledger components.
package main

import (
	"context"
	"crypto/x509"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rustcare/core/internal/audit"
	"github.com/rustcare/core/internal/authz"
	"github.com/rustcare/core/internal/crypto"
	"github.com/rustcare/core/internal/kms"
	"github.com/rustcare/core/internal/masking"
	"github.com/rustcare/core/internal/platform/config"
	"github.com/rustcare/core/internal/platform/logging"
	"github.com/rustcare/core/internal/platform/tracing"
	"github.com/rustcare/core/internal/secctx"
)

const applicationName = "securitycored"

func main() {
	logger := logging.New()
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("startup failed", logging.F("error", err.Error()))
	}
}

func run(logger logging.Logger) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tracerProvider, err := tracing.NewProvider(applicationName)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background(), tracerProvider); err != nil {
			logger.Error("tracer shutdown failed", logging.F("error", err.Error()))
		}
	}()

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening postgres: %w", err)
	}
	defer sqlDB.Close()

	pgxPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening postgres pool: %w", err)
	}
	defer pgxPool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	auditSink, auditCloser, err := buildAuditSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building audit sink: %w", err)
	}
	defer auditCloser()

	auditQueue := audit.NewQueue(auditSink, cfg.AuditQueueCapacity, func(err error) {
		logger.Error("audit write failed", logging.F("error", err.Error()))
	})
	defer auditQueue.Close()

	keyProvider, ring, err := buildKMS(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building KMS: %w", err)
	}
	_ = keyProvider // exercised by internal/crypto-and-kms-facing domain code, not by this demo's routes directly

	dekCache := kms.NewDEKCache(
		time.Duration(cfg.DEKCacheTTLSecs)*time.Second,
		cfg.DEKCacheMax,
		crypto.MemoryPolicy{AllowDegradeOnMlockDenied: !cfg.EnableMemoryLock},
	)
	_ = kms.NewRotator(ring, dekCache)

	schema := defaultSchema()
	authzStore := authz.NewPostgresStore(sqlDB)
	authzDecisionCache := authz.NewDecisionCache(redisClient, 60*time.Second)
	authzExpansionCache := authz.NewExpansionCache(redisClient, 5*time.Minute)
	evaluator := authz.NewEvaluator(authzStore, schema, authzDecisionCache, authzExpansionCache, 0)

	maskingPolicies := masking.NewPostgresPolicyStore(sqlDB)
	maskingOverrides := masking.NewPostgresOverrideStore(sqlDB)
	maskingPolicyCache := masking.NewPolicyCache(redisClient, 5*time.Minute)
	maskingDecisionCache := masking.NewDecisionCache(redisClient, 60*time.Second)
	salts := kmsSaltSource{ring: ring}
	tokenizer := masking.HMACTokenizer{Keys: map[string][]byte{"default": cfg.MasterEncryptionKey}}
	maskingEngine := masking.NewEngine(maskingPolicies, maskingOverrides, evaluator, auditQueue, maskingPolicyCache, maskingDecisionCache, salts, tokenizer)

	keys, err := secctx.ParseSigningKeysJSON([]byte(cfg.JWTSigningKeysJSON))
	if err != nil {
		return fmt.Errorf("parsing JWT_SIGNING_KEYS: %w", err)
	}
	keyStore := secctx.NewStaticKeyStore(keys)
	authenticator := secctx.NewAuthenticator(keyStore)

	limiter := secctx.NewLimiter(secctx.LimiterConfig{
		RedisClient:        redisClient,
		Max:                cfg.RateLimitMax,
		Window:             time.Duration(cfg.RateLimitWindowSecs) * time.Second,
		LocalFallbackRate:  10,
		LocalFallbackBurst: 20,
	})

	var csrfIssuer *secctx.TokenIssuer
	samesite := secctx.SameSiteLax
	if cfg.StrictSameSite {
		samesite = secctx.SameSiteStrict
	}
	if len(cfg.CSRFSecret) > 0 {
		csrfIssuer = secctx.NewTokenIssuer(cfg.CSRFSecret)
	}

	projector := secctx.NewSessionProjector(pgxPool)

	certAuthenticator, err := buildCertAuthenticator(sqlDB, cfg)
	if err != nil {
		return fmt.Errorf("building certificate authenticator: %w", err)
	}

	pipeline := secctx.NewPipeline(secctx.Config{
		Authenticator:     authenticator,
		CertAuthenticator: certAuthenticator,
		Limiter:           limiter,
		CSRFIssuer:        csrfIssuer,
		SameSitePolicy:    samesite,
		AllowedOrigins:    cfg.AllowedOrigins,
		Resolver:          evaluator,
		ResourceRelation:  "viewer",
		ResourceType:      "patient_record",
		ElevatedRoles:     cfg.ElevatedRoles,
		Projector:         projector,
		Masking:           maskingEngine,
		AuditQueue:        auditQueue,
		IDGenerator:       newRequestID,
	})

	app := buildFiberApp(pipeline, logger, cfg)

	logger.Info("listening", logging.F("address", cfg.ServerAddress), logging.F("application", applicationName))

	return listen(app, cfg)
}

// listen starts the fiber app per the TLS posture cfg declares: mutual TLS
// when a client CA bundle is configured (spec §4.E step 2's certificate
// auth requires a real client-certificate handshake), plain TLS when only
// a server certificate is, and plaintext otherwise (local development).
func listen(app *fiber.App, cfg *config.Config) error {
	switch {
	case cfg.TLSCertFile != "" && cfg.MTLSClientCAFile != "":
		return app.ListenMutualTLS(cfg.ServerAddress, cfg.TLSCertFile, cfg.TLSKeyFile, cfg.MTLSClientCAFile)
	case cfg.TLSCertFile != "":
		return app.ListenTLS(cfg.ServerAddress, cfg.TLSCertFile, cfg.TLSKeyFile)
	default:
		return app.Listen(cfg.ServerAddress)
	}
}

// buildCertAuthenticator wires spec §4.E step 2's certificate-auth branch:
// the active certificate table (PostgresCertificateStore) checked against a
// client CA pool loaded from cfg.MTLSClientCAFile. Returns nil, nil when
// mTLS is not configured, leaving certificate authentication disabled.
func buildCertAuthenticator(db *sql.DB, cfg *config.Config) (*secctx.CertAuthenticator, error) {
	if cfg.MTLSClientCAFile == "" {
		return nil, nil
	}

	pemBytes, err := os.ReadFile(cfg.MTLSClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("reading MTLS_CLIENT_CA_FILE: %w", err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("MTLS_CLIENT_CA_FILE contains no valid PEM certificates")
	}

	store := secctx.NewPostgresCertificateStore(db)

	return secctx.NewCertAuthenticator(roots, store), nil
}

func buildAuditSink(ctx context.Context, cfg *config.Config) (audit.Sink, func(), error) {
	if cfg.MongoURI == "" {
		return nil, func() {}, fmt.Errorf("MONGO_URI is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, func() {}, err
	}

	closer := func() { _ = client.Disconnect(context.Background()) }

	primary := audit.NewMongoStore(client, cfg.MongoDatabase)

	if cfg.AMQPURL == "" {
		return primary, closer, nil
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return primary, closer, nil // fan-out is best-effort; Mongo alone is a valid sink
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return primary, closer, nil
	}

	fanoutCloser := func() {
		_ = channel.Close()
		_ = conn.Close()
		closer()
	}

	return audit.NewFanoutSink(primary, channel, cfg.AMQPExchange, nil), fanoutCloser, nil
}

func buildKMS(ctx context.Context, cfg *config.Config) (kms.KeyProvider, *kms.KeyRing, error) {
	var ring *kms.KeyRing
	if len(cfg.MasterEncryptionKey) > 0 {
		var err error
		ring, err = kms.NewKeyRing(map[kms.KeyVersion][]byte{kms.KeyVersion(cfg.EncryptionKeyVersion): cfg.MasterEncryptionKey}, kms.KeyVersion(cfg.EncryptionKeyVersion))
		if err != nil {
			return nil, nil, err
		}
	}

	switch cfg.KMSProvider {
	case config.KMSProviderExternal:
		provider, err := kms.NewExternalKMS(ctx, kms.ExternalKMSConfig{Region: cfg.AWSRegion, KeyID: cfg.AWSKMSKeyID})
		if err != nil {
			return nil, ring, err
		}

		return kms.NewBreakingProvider(provider, kms.BreakerSettings{Name: "aws-kms"}), ring, nil

	case config.KMSProviderTransit:
		provider, err := kms.NewTransitSecretEngine(kms.TransitSecretEngineConfig{Address: cfg.VaultAddress, Token: cfg.VaultToken, KeyID: cfg.VaultTransitKeyID})
		if err != nil {
			return nil, ring, err
		}

		return kms.NewBreakingProvider(provider, kms.BreakerSettings{Name: "vault-transit"}), ring, nil

	default:
		provider, err := kms.NewLocalMasterKey(cfg.MasterEncryptionKey, kms.KeyVersion(cfg.EncryptionKeyVersion))
		if err != nil {
			return nil, ring, err
		}

		return provider, ring, nil
	}
}
