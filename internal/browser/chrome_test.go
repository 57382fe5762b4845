package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEventChrome() *Chrome {
	return &Chrome{
		logger:   zap.NewNop(),
		inflight: make(map[network.RequestID]time.Time),
		pending:  make(map[network.RequestID]Response),
	}
}

func TestChromeRedirectCountsOnce(t *testing.T) {
	c := newEventChrome()

	c.onEvent(&network.EventRequestWillBeSent{RequestID: "r1", Request: &network.Request{URL: "http://shop.test/a"}})
	c.onEvent(&network.EventRequestWillBeSent{
		RequestID:        "r1",
		Request:          &network.Request{URL: "https://shop.test/a"},
		RedirectResponse: &network.Response{URL: "http://shop.test/a", Status: 301},
	})
	assert.True(t, c.busy(time.Now()))

	c.onEvent(&network.EventLoadingFinished{RequestID: "r1"})
	assert.False(t, c.busy(time.Now()), "redirected request must be released by one finish")
}

func TestChromeFailedRequestReleased(t *testing.T) {
	c := newEventChrome()
	c.onEvent(&network.EventRequestWillBeSent{RequestID: "r2", Request: &network.Request{URL: "https://shop.test/b"}})
	c.onEvent(&network.EventLoadingFailed{RequestID: "r2"})
	assert.False(t, c.busy(time.Now()))
}

func TestChromeStaleRequestDoesNotBlockIdle(t *testing.T) {
	c := newEventChrome()
	c.onEvent(&network.EventRequestWillBeSent{RequestID: "poll", Request: &network.Request{URL: "https://shop.test/poll"}})

	assert.True(t, c.busy(time.Now()))
	assert.False(t, c.busy(time.Now().Add(staleRequest+time.Second)))
}

func TestChromeWaitIdleReturnsAfterQuiet(t *testing.T) {
	c := newEventChrome()
	c.onEvent(&network.EventRequestWillBeSent{RequestID: "r3", Request: &network.Request{URL: "https://shop.test/c"}})
	c.onEvent(&network.EventLoadingFinished{RequestID: "r3"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitIdle(ctx, 200*time.Millisecond))
}
