package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	redacted = "[REDACTED]"

	// Free-text symptom descriptions are cut to this many runes in logs.
	maxTextRunes = 24
)

type redactor struct {
	enabled bool
	salt    string
}

func newRedactor(cfg Config) *redactor {
	r := &redactor{enabled: true, salt: strings.TrimSpace(cfg.HashSalt)}
	switch strings.TrimSpace(strings.ToLower(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		r.enabled = false
	}
	if cfg.Redact != nil {
		r.enabled = *cfg.Redact
	}
	if r.salt == "" {
		r.salt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	}
	return r
}

func (r *redactor) kvs(kv []interface{}) []interface{} {
	if r == nil || !r.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		name := toString(kv[i])
		out = append(out, name, r.value(strings.TrimSpace(strings.ToLower(name)), kv[i+1]))
	}
	return out
}

func (r *redactor) value(key string, val interface{}) interface{} {
	switch {
	case key == "":
	case isSecretKey(key):
		return redacted
	case isTextKey(key):
		return truncate(toString(val))
	case isHashKey(key):
		return r.hash(val)
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = r.value(strings.TrimSpace(strings.ToLower(k)), inner)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = r.value(strings.TrimSpace(strings.ToLower(k)), inner)
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return redacted
		}
	}
	return val
}

func isSecretKey(key string) bool {
	for _, s := range []string{"password", "token", "jwt", "secret", "authorization", "api_key", "apikey"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// Patient descriptions and questions are health data.
func isTextKey(key string) bool {
	return key == "user_text" || key == "question" || key == "message"
}

func isHashKey(key string) bool {
	return strings.Contains(key, "client_ip") || strings.Contains(key, "session_id")
}

func (r *redactor) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if r.salt != "" {
		_, _ = h.Write([]byte(r.salt))
	}
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxTextRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxTextRunes]) + "…"
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
