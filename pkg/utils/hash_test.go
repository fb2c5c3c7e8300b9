package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	h := HashString("What is your return policy?")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashString("What is your return policy?"))
	assert.NotEqual(t, h, HashString("what is your return policy?"))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("model", "text"), CacheKey("model", "text"))
	assert.NotEqual(t, CacheKey("a", "bc"), CacheKey("ab", "c"))
}
