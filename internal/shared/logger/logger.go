package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options ajusta o logger por serviço. Campos zero mantêm o padrão do ambiente.
type Options struct {
	Level       string      // debug, info, warn, error
	OutputPaths []string    // padrão: stderr
	Fields      []zap.Field // campos fixos extras (ex.: consumer group)
}

// New monta o logger do serviço. Ambiente "local" usa o formato de desenvolvimento.
func New(serviceName string, env string, opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
	}
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	// sempre garantir que serviço e env entrem como campos padrão
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	fields := append([]zap.Field{
		zap.String("service", serviceName),
		zap.String("env", env),
	}, opts.Fields...)

	return cfg.Build(zap.Fields(fields...))
}
