package device

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const firefox = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

func TestParse(t *testing.T) {
	info := Parse(firefox)
	assert.Equal(t, "Firefox", info.Browser)
	assert.Equal(t, "128.0", info.Version)
	assert.False(t, info.Bot)
	assert.Contains(t, info.Label(), "Firefox 128.0")

	bot := Parse("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot.Bot)

	assert.Equal(t, Info{}, Parse(""))
	assert.Empty(t, Info{}.Label())
}

func TestMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", firefox)

	Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Firefox", FromContext(r.Context()).Browser)
	})).ServeHTTP(httptest.NewRecorder(), req)
}
