// Package observability builds the process logger and the router metrics.
// Every log entry passes through a core that scrubs credentials before it is
// encoded.
package observability

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "***REDACTED***"

type secretPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

var secretPatterns = []secretPattern{
	{
		pattern:     regexp.MustCompile(`(?i)(aws_access_key_id)\s*=\s*[A-Z0-9]+`),
		replacement: "${1}=" + redacted,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(aws_secret_access_key)\s*=\s*[A-Za-z0-9/+=]+`),
		replacement: "${1}=" + redacted,
	},
	{
		pattern:     regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		replacement: redacted,
	},
	{
		pattern:     regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		replacement: "Bearer " + redacted,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(token|key|password|secret|credential)["']?\s*[:=]\s*["']?([^"'\s,}]+)`),
		replacement: "${1}: " + redacted,
	},
}

// ScrubSecrets replaces credential-looking substrings in text
func ScrubSecrets(text string) string {
	if text == "" {
		return text
	}
	for _, p := range secretPatterns {
		if p.pattern.MatchString(text) {
			text = p.pattern.ReplaceAllString(text, p.replacement)
		}
	}
	return text
}

// NewLogger builds a zap logger. format is "json" (production encoder) or
// "text" (development console encoder).
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "text", "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.WrapCore(NewScrubbingCore))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// scrubbingCore redacts secrets from the message and string fields of every
// entry before handing it to the wrapped core.
type scrubbingCore struct {
	zapcore.Core
}

// NewScrubbingCore wraps core so that nothing it writes carries credentials
func NewScrubbingCore(core zapcore.Core) zapcore.Core {
	return &scrubbingCore{Core: core}
}

func (c *scrubbingCore) With(fields []zapcore.Field) zapcore.Core {
	return &scrubbingCore{Core: c.Core.With(scrubFields(fields))}
}

func (c *scrubbingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *scrubbingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = ScrubSecrets(entry.Message)
	return c.Core.Write(entry, scrubFields(fields))
}

func scrubFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = ScrubSecrets(f.String)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zap.String(f.Key, ScrubSecrets(err.Error()))
			}
		}
		out[i] = f
	}
	return out
}
