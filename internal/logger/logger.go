package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap.Logger with additional functionality
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config contains logger configuration
type Config struct {
	Level  string
	Format string // json or console
	File   *FileConfig
}

// FileConfig contains file logging configuration
type FileConfig struct {
	Enabled  bool
	Path     string
	MaxSize  int
	MaxAge   int
	Compress bool
}

// New creates a new logger instance
func New(config Config) (*Logger, error) {
	parsed, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(parsed)

	var encoderConfig zapcore.EncoderConfig
	if config.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}

	if config.File != nil && config.File.Enabled {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(newFileWriter(config.File)),
			level,
		)
		cores = append(cores, fileCore)
	}

	core := zapcore.NewTee(cores...)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: logger, level: level}, nil
}

// newFileWriter rotates the log file once it reaches MaxSize megabytes and
// prunes rotated files older than MaxAge days.
func newFileWriter(cfg *FileConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename: cfg.Path,
		MaxSize:  cfg.MaxSize,
		MaxAge:   cfg.MaxAge,
		Compress: cfg.Compress,
	}
}

// Wrap adapts an existing zap logger, mainly for tests.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{Logger: l, level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return Wrap(zap.NewNop())
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(parsed)
	return nil
}

// WithRequestID adds a request ID to the logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("request_id", requestID)), level: l.level}
}

// WithRunID adds a pipeline run ID to the logger context
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("run_id", runID)), level: l.level}
}

// WithComponent adds a component name to the logger context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component)), level: l.level}
}

// SafeHeaders flattens headers to their first value and redacts credentials.
func SafeHeaders(headers map[string][]string) map[string]string {
	safe := make(map[string]string, len(headers))
	for k, v := range headers {
		if isSensitiveHeader(k) {
			safe[k] = "[REDACTED]"
		} else if len(v) > 0 {
			safe[k] = v[0]
		}
	}
	return safe
}

// isSensitiveHeader checks if a header contains sensitive information
func isSensitiveHeader(header string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"x-api-key",
		"cookie",
		"x-auth-token",
		"x-access-token",
		"bearer",
	}

	headerLower := strings.ToLower(header)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(headerLower, sensitive) {
			return true
		}
	}
	return false
}
