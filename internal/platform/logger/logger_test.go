package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSensitiveKeys(t *testing.T) {
	out := sanitizeKVs([]interface{}{"contact_email", "a@b.c", "session_id", "s-1", "jwt_token", "x"})

	assert.Equal(t, []interface{}{"contact_email", "[REDACTED]", "session_id", "s-1", "jwt_token", "[REDACTED]"}, out)
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"checkout_id", "c-1", "orphan"})

	assert.Equal(t, []interface{}{"checkout_id", "c-1", "orphan"}, out)
}
