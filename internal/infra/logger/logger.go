package logger

import (
	"context"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

type options struct {
	level   string
	service string
}

// Option tunes the process logger built by New.
type Option func(*options)

// WithLevel overrides the environment's default level ("debug", "info", "warn", "error").
func WithLevel(level string) Option {
	return func(o *options) { o.level = strings.TrimSpace(level) }
}

// WithService stamps every entry with a service field.
func WithService(name string) Option {
	return func(o *options) { o.service = strings.TrimSpace(name) }
}

// New builds the process logger once; later calls return the same instance. Production uses
// JSON at info level, everything else a colored console encoder at debug level.
func New(env string, opts ...Option) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		var o options
		for _, opt := range opts {
			opt(&o)
		}

		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		if o.level != "" {
			var level zap.AtomicLevel
			if level, err = zap.ParseAtomicLevel(o.level); err != nil {
				return
			}
			cfg.Level = level
		}
		if o.service != "" {
			cfg.InitialFields = map[string]any{"service": o.service}
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// WithContext returns the process logger tagged with the request id carried by ctx.
func WithContext(ctx context.Context) *zap.Logger {
	if lg == nil {
		return zap.NewNop()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return lg.With(zap.String("request_id", id))
	}
	return lg
}

type requestIDKey struct{}

// ContextWithRequestID stores the request identifier on the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request identifier or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail keeps the first three characters of the local part and the domain:
// john.doe@example.com becomes joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	if m := emailRegex.FindStringSubmatch(email); len(m) == 3 {
		return m[1] + "***" + m[2]
	}
	if _, domain, ok := strings.Cut(email, "@"); ok {
		return "***@" + domain
	}
	return "***"
}

// MaskIP reduces an address to its network: the /16 of an IPv4 address (192.168.*.*) or the
// /64 of an IPv6 one. Anything unparseable becomes "***".
func MaskIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		if ip == "" {
			return ""
		}
		return "***"
	}
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + ".*.*"
	}
	prefix, err := addr.WithZone("").Prefix(64)
	if err != nil {
		return "***"
	}
	return prefix.String()
}

// MaskIdentifier masks a submitted login identifier, which may be a login name or an email.
// Example: "secret123" -> "se***23"
func MaskIdentifier(s string) string {
	if strings.Contains(s, "@") {
		return MaskEmail(s)
	}
	if s == "" {
		return ""
	}

	length := len(s)
	if length <= 4 {
		return "***"
	}

	return s[:2] + "***" + s[length-2:]
}
