package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableKey_SortsParamsForCacheCoherence(t *testing.T) {
	a := StableKey("widgets", NewParams("b", 2, "a", 1))
	b := StableKey("widgets", NewParams("a", 1, "b", 2))
	assert.Equal(t, a, b)
	assert.Equal(t, "widgets:a=1&b=2", a)
}

func TestStableKey_StripsForce(t *testing.T) {
	k := StableKey("widgets", NewParams("a", 1, "_force", true))
	assert.Equal(t, "widgets:a=1", k)
}

func TestStableKey_NoParams(t *testing.T) {
	assert.Equal(t, "widgets", StableKey("widgets", nil))
}

func TestIsForced(t *testing.T) {
	assert.True(t, IsForced(NewParams("_force", true)))
	assert.False(t, IsForced(NewParams("_force", false)))
	assert.False(t, IsForced(nil))
}

func TestEncodeQuery_PreservesInsertionOrderNotAlphabetical(t *testing.T) {
	url, leftover, err := buildURL("/widgets", NewParams("zebra", "1", "alpha", "2"))
	assert.NoError(t, err)
	assert.Equal(t, "/widgets", url)
	assert.Equal(t, "zebra=1&alpha=2", encodeQuery(leftover))
}
