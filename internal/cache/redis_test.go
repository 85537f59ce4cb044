package cache

import (
	"strings"
	"testing"

	"github.com/fortuna/clio/internal/ingest/fetch"
	"github.com/stretchr/testify/assert"
)

var _ fetch.PageCache = (*RedisCache)(nil)

func TestPageKey(t *testing.T) {
	a := PageKey("https://www.basketball-reference.com/players/a/abdulka01.html")
	b := PageKey("https://www.basketball-reference.com/players/a/abdelal01.html")

	assert.True(t, strings.HasPrefix(a, "clio:page:"))
	assert.Len(t, a, len("clio:page:")+16)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, PageKey("https://www.basketball-reference.com/players/a/abdulka01.html"))
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("not a url", 0)
	assert.Error(t, err)
}
