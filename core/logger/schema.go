package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"error":        "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"degraded":     "degraded",
}

var allowedOutcome = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"ignored":      "ignored",
	"rejected":     "rejected",
	"rate_limited": "rate_limited",
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := allowedStatus[status]; ok {
		return mapped
	}
	return status
}

func normalizeOutcome(outcome string) (string, bool) {
	val, ok := allowedOutcome[strings.ToLower(strings.TrimSpace(outcome))]
	return val, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"verb",
	"form",
	"decision",
	"outcome",
	"duration_ms",
	"messages",
	"text_len",
	"voice_id",
	"key",
	"credentials",
	"maintenance",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"path",
	"http_code",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"attempts",
	"backoff_ms",
}
