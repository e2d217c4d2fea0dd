package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardFor(t *testing.T) {
	assert.Equal(t, 0, ShardFor("anything", 0))
	assert.Equal(t, 0, ShardFor("anything", 1))

	for _, key := range []string{"", "a", "upload-1", "8f14e45f-ceea-467f-a0f6-1b0e5b1d6b1c"} {
		shard := ShardFor(key, 32)
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, 32)
		assert.Equal(t, shard, ShardFor(key, 32), "shard must be stable for %q", key)
	}
}

func TestContentDigest(t *testing.T) {
	digest, err := ContentDigest(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digest)
	assert.Equal(t, strings.TrimPrefix(digest, DigestPrefix), ChunkSHA256([]byte("hello")))
}
