// Package config loads the environment-variable configuration enumerated
// in spec §6 into a typed, eagerly validated Config struct.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// KMSProvider names which KeyProvider variant to construct at startup.
type KMSProvider string

const (
	KMSProviderNone     KMSProvider = "none"
	KMSProviderExternal KMSProvider = "external"
	KMSProviderTransit  KMSProvider = "transit"
)

// RateLimitBy names the dimension the rate limiter buckets requests by.
type RateLimitBy string

const (
	RateLimitByUser RateLimitBy = "user"
	RateLimitByIP   RateLimitBy = "ip"
)

const defaultEnvelopeThresholdBytes = 1048576

// Config is the typed form of every environment variable named in spec §6.
type Config struct {
	DatabaseURL string

	MasterEncryptionKey  []byte // decoded from base64, 32 bytes
	EncryptionKeyVersion uint16
	KMSProvider          KMSProvider

	AllowedOrigins []string

	RateLimitMax        int
	RateLimitWindowSecs int
	RateLimitBy         RateLimitBy

	StrictSameSite bool

	KeyRotationDays  uint16
	DEKCacheTTLSecs  int
	DEKCacheMax      int
	EnableMemoryLock bool

	EnvelopeThresholdBytes int

	ServerAddress string

	RedisAddr string

	MongoURI      string
	MongoDatabase string

	AuditQueueCapacity int

	CSRFSecret    []byte // decoded from base64
	ElevatedRoles []string

	// TLSCertFile/TLSKeyFile are the server's own certificate and key,
	// served over ListenTLS/ListenMutualTLS. Left empty, the server runs
	// plaintext (local development only).
	TLSCertFile string
	TLSKeyFile  string

	// MTLSClientCAFile is the PEM bundle of CAs trusted to sign client
	// certificates for spec §4.E step 2's certificate-auth branch. Left
	// empty, certificate authentication is disabled and only bearer-JWT
	// requests are accepted.
	MTLSClientCAFile string

	// JWTSigningKeysJSON is the raw JSON array of
	// {"kid","algorithm","public_key_pem"} the signing-key store is seeded
	// from at startup (spec §4.E step 2's KeyStore). Rotation thereafter
	// happens via an admin call against the running StaticKeyStore, not by
	// re-reading this value.
	JWTSigningKeysJSON string

	// AWS KMS provider settings, read when KMSProvider == "external".
	AWSRegion   string
	AWSKMSKeyID string

	// Vault Transit provider settings, read when KMSProvider == "transit".
	VaultAddress      string
	VaultToken        string
	VaultTransitKeyID string

	// AMQPURL/AMQPExchange configure the optional audit fan-out publish
	// (internal/audit.FanoutSink); left empty, audit records are written
	// to Mongo only.
	AMQPURL      string
	AMQPExchange string
}

// Load reads a local .env (if present, ignored if absent), then parses and
// validates the process environment into a Config. It fails fast: an
// invalid ENVELOPE_THRESHOLD_BYTES or a missing DATABASE_URL returns an
// error rather than producing a half-valid Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		EnvelopeThresholdBytes: defaultEnvelopeThresholdBytes,
	}

	var errs []string

	c.DatabaseURL = os.Getenv("DATABASE_URL")
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	c.KMSProvider = KMSProvider(getEnvDefault("KMS_PROVIDER", string(KMSProviderNone)))
	switch c.KMSProvider {
	case KMSProviderNone, KMSProviderExternal, KMSProviderTransit:
	default:
		errs = append(errs, fmt.Sprintf("KMS_PROVIDER must be one of none|external|transit, got %q", c.KMSProvider))
	}

	if masterKeyB64, ok := os.LookupEnv("MASTER_ENCRYPTION_KEY"); ok {
		key, err := base64.StdEncoding.DecodeString(masterKeyB64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("MASTER_ENCRYPTION_KEY is not valid base64: %v", err))
		} else if len(key) != 32 {
			errs = append(errs, fmt.Sprintf("MASTER_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key)))
		} else {
			c.MasterEncryptionKey = key
		}
	} else if c.KMSProvider == KMSProviderNone {
		errs = append(errs, "MASTER_ENCRYPTION_KEY is required unless KMS_PROVIDER is set")
	}

	if v, err := parseUint16(getEnvDefault("ENCRYPTION_KEY_VERSION", "1")); err != nil {
		errs = append(errs, fmt.Sprintf("ENCRYPTION_KEY_VERSION: %v", err))
	} else {
		c.EncryptionKeyVersion = v
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	c.RateLimitMax = parseIntDefault(getEnvDefault("RATE_LIMIT_MAX", "100"), 100, &errs, "RATE_LIMIT_MAX")
	c.RateLimitWindowSecs = parseIntDefault(getEnvDefault("RATE_LIMIT_WINDOW_SECS", "60"), 60, &errs, "RATE_LIMIT_WINDOW_SECS")

	c.RateLimitBy = RateLimitBy(getEnvDefault("RATE_LIMIT_BY", string(RateLimitByUser)))
	if c.RateLimitBy != RateLimitByUser && c.RateLimitBy != RateLimitByIP {
		errs = append(errs, fmt.Sprintf("RATE_LIMIT_BY must be one of user|ip, got %q", c.RateLimitBy))
	}

	c.StrictSameSite = parseBoolDefault(getEnvDefault("STRICT_SAME_SITE", "true"), true)

	if v, err := parseUint16(getEnvDefault("KEY_ROTATION_DAYS", "90")); err != nil {
		errs = append(errs, fmt.Sprintf("KEY_ROTATION_DAYS: %v", err))
	} else {
		c.KeyRotationDays = v
	}

	c.DEKCacheTTLSecs = parseIntDefault(getEnvDefault("DEK_CACHE_TTL_SECS", "3600"), 3600, &errs, "DEK_CACHE_TTL_SECS")
	c.DEKCacheMax = parseIntDefault(getEnvDefault("DEK_CACHE_MAX", "10000"), 10000, &errs, "DEK_CACHE_MAX")

	c.EnableMemoryLock = parseBoolDefault(getEnvDefault("ENABLE_MEMORY_LOCKING", "true"), true)

	if raw, ok := os.LookupEnv("ENVELOPE_THRESHOLD_BYTES"); ok {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			errs = append(errs, fmt.Sprintf("ENVELOPE_THRESHOLD_BYTES must be a positive integer, got %q", raw))
		} else {
			c.EnvelopeThresholdBytes = v
		}
	}

	c.ServerAddress = getEnvDefault("SERVER_ADDRESS", ":8443")
	c.RedisAddr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	c.MongoURI = os.Getenv("MONGO_URI")
	c.MongoDatabase = getEnvDefault("MONGO_DATABASE", "rustcare")
	c.AuditQueueCapacity = parseIntDefault(getEnvDefault("AUDIT_QUEUE_CAPACITY", "1024"), 1024, &errs, "AUDIT_QUEUE_CAPACITY")

	if secretB64, ok := os.LookupEnv("CSRF_SECRET"); ok {
		secret, err := base64.StdEncoding.DecodeString(secretB64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("CSRF_SECRET is not valid base64: %v", err))
		} else {
			c.CSRFSecret = secret
		}
	}

	c.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	c.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	c.MTLSClientCAFile = os.Getenv("MTLS_CLIENT_CA_FILE")

	if roles := os.Getenv("ELEVATED_ROLES"); roles != "" {
		for _, r := range strings.Split(roles, ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				c.ElevatedRoles = append(c.ElevatedRoles, r)
			}
		}
	}

	c.JWTSigningKeysJSON = os.Getenv("JWT_SIGNING_KEYS")

	c.AWSRegion = os.Getenv("AWS_REGION")
	c.AWSKMSKeyID = os.Getenv("AWS_KMS_KEY_ID")
	if c.KMSProvider == KMSProviderExternal && c.AWSKMSKeyID == "" {
		errs = append(errs, "AWS_KMS_KEY_ID is required when KMS_PROVIDER=external")
	}

	c.VaultAddress = os.Getenv("VAULT_ADDR")
	c.VaultToken = os.Getenv("VAULT_TOKEN")
	c.VaultTransitKeyID = os.Getenv("VAULT_TRANSIT_KEY")
	if c.KMSProvider == KMSProviderTransit && c.VaultTransitKeyID == "" {
		errs = append(errs, "VAULT_TRANSIT_KEY is required when KMS_PROVIDER=transit")
	}

	c.AMQPURL = os.Getenv("AMQP_URL")
	c.AMQPExchange = getEnvDefault("AMQP_AUDIT_EXCHANGE", "rustcare.audit")

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	return c, nil
}

func getEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}

	return def
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}

	return uint16(v), nil
}

func parseIntDefault(s string, def int, errs *[]string, name string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer, got %q", name, s))
		return def
	}

	return v
}

func parseBoolDefault(s string, def bool) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}

	return v
}
