package logging

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is the zap-backed implementation of Logger.
type ZapLogger struct {
	sugared *zap.SugaredLogger
}

// New builds a ZapLogger appropriate for the running environment: a
// colorized development encoder unless ENV_NAME=production, and LOG_LEVEL
// (fatal|error|warn|info|debug) overriding the default level when set.
func New() *ZapLogger {
	var cfg zap.Config

	if os.Getenv("ENV_NAME") == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if val, ok := os.LookupEnv("LOG_LEVEL"); ok {
		var lvl zapcore.Level
		if err := lvl.Set(val); err != nil {
			log.Printf("invalid LOG_LEVEL %q, falling back to info: %v", val, err)
			lvl = zapcore.InfoLevel
		}

		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}

	return &ZapLogger{sugared: logger.Sugar()}
}

func toZapArgs(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}

	return args
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.sugared.Debugw(msg, toZapArgs(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.sugared.Infow(msg, toZapArgs(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.sugared.Warnw(msg, toZapArgs(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.sugared.Errorw(msg, toZapArgs(fields)...) }
func (l *ZapLogger) Fatal(msg string, fields ...Field) { l.sugared.Fatalw(msg, toZapArgs(fields)...) }

//nolint:ireturn
func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{sugared: l.sugared.With(toZapArgs(fields)...)}
}

func (l *ZapLogger) Sync() error {
	return l.sugared.Sync()
}
