package mask

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for name, want := range map[string]Strategy{
		"redact":  Redact,
		"hash":    Hash,
		"partial": Partial,
		"null":    Null,
	} {
		got, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseStrategy("rot13")
	assert.Error(t, err)
}

func TestStrategyApply(t *testing.T) {
	assert.Equal(t, "***", Redact.Apply("secret"))
	assert.Nil(t, Null.Apply("secret"))
	assert.Nil(t, Redact.Apply(nil))

	sum := sha256.Sum256([]byte("secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Hash.Apply("secret"))

	assert.Equal(t, "s****t", Partial.Apply("secret"))
	assert.Equal(t, "***", Partial.Apply("ab"), "short values fully redacted")
}

func TestEngineApply(t *testing.T) {
	engine, err := NewEngine(map[string]string{
		"email": "hash",
		"name":  "redact",
		"phone": "null",
	})
	require.NoError(t, err)

	record := map[string]interface{}{
		"id":    "1",
		"email": "a@example.com",
		"name":  "Alex",
	}
	engine.Apply(record)

	assert.Equal(t, "1", record["id"])
	assert.Equal(t, "***", record["name"])
	assert.NotEqual(t, "a@example.com", record["email"])
	assert.NotContains(t, record, "phone", "absent fields stay absent")
}

func TestEngineRejectsUnknownStrategy(t *testing.T) {
	_, err := NewEngine(map[string]string{"email": "rot13"})
	assert.Error(t, err)
}
