package logging

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// sensitiveKeyPatterns lists substrings that indicate a log attribute key holds a secret value.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"private_key",
	"mnemonic",
}

// ethPrivateKeyPattern matches Ethereum-style private keys (0x followed by 64 hex chars).
var ethPrivateKeyPattern = regexp.MustCompile(`\b0x[0-9a-fA-F]{64}\b`)

// bareKeyPattern matches un-prefixed 64 hex char strings (raw private key exports).
var bareKeyPattern = regexp.MustCompile(`\b[0-9a-fA-F]{64}\b`)

// rpcURLPattern matches http(s)/ws(s) URLs so embedded provider keys can be masked.
var rpcURLPattern = regexp.MustCompile(`\b(?:https?|wss?)://[^\s"']+`)

// RedactingHandler wraps an slog.Handler and redacts sensitive values before they
// are passed to the inner handler.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler creates a RedactingHandler that wraps the given inner handler.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

// Enabled reports whether the inner handler handles records at the given level.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts sensitive attribute values and forwards the record to the inner handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	var redacted []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		redacted = append(redacted, redactAttr(a))
		return true
	})

	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	newRecord.AddAttrs(redacted...)

	return h.inner.Handle(ctx, newRecord)
}

// WithAttrs returns a new handler with the given attributes redacted.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted)}
}

// WithGroup returns a new handler with the given group name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)

	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(key, pattern) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	// Transaction and block hashes share the private key shape.
	if strings.Contains(key, "hash") {
		return a
	}

	if a.Value.Kind() == slog.KindString {
		val := a.Value.String()
		if redacted := RedactString(val); redacted != val {
			return slog.String(a.Key, redacted)
		}
	}

	return a
}

// RedactString masks private keys and RPC provider credentials inside val.
// Inline keys keep a short prefix/suffix so log lines stay correlatable.
func RedactString(val string) string {
	val = rpcURLPattern.ReplaceAllStringFunc(val, RedactURL)

	val = ethPrivateKeyPattern.ReplaceAllStringFunc(val, func(match string) string {
		return match[:6] + "..." + match[len(match)-4:]
	})

	val = bareKeyPattern.ReplaceAllStringFunc(val, func(match string) string {
		return match[:4] + "...[REDACTED]"
	})

	return val
}

// RedactURL strips userinfo, query strings and the trailing path segment of
// provider URLs (Infura/Alchemy style keys live in the last path element).
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	if u.User != nil {
		u.User = url.User("[REDACTED]")
	}
	if u.RawQuery != "" {
		u.RawQuery = "[REDACTED]"
	}

	path := strings.TrimSuffix(u.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 && len(path[idx+1:]) >= 16 {
		u.Path = path[:idx+1] + "[REDACTED]"
	}

	out := u.String()
	// url.String escapes brackets in userinfo/path.
	out = strings.ReplaceAll(out, "%5BREDACTED%5D", "[REDACTED]")
	return out
}

// EnableRedaction wraps the current global logger with a RedactingHandler.
func EnableRedaction() {
	mu.Lock()
	defer mu.Unlock()

	handler := defaultLogger.Handler()
	if _, ok := handler.(*RedactingHandler); ok {
		return
	}

	defaultLogger = slog.New(NewRedactingHandler(handler))
}

// NewRedactingLogger creates a new slog.Logger with redaction enabled.
func NewRedactingLogger(inner slog.Handler) *slog.Logger {
	return slog.New(NewRedactingHandler(inner))
}
