package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClient_PushAfterCloseIsNoop(t *testing.T) {
	c := &Client{send: make(chan []byte, 4)}
	c.closeSend()

	// A tracker callback captured before the unsubscribe can still fire
	// after teardown; it must drop silently instead of panicking
	c.push(&OutboundMessage{Type: "entities"})

	_, open := <-c.send
	assert.False(t, open)
}

func TestClient_CloseSendIdempotent(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.closeSend()
	c.closeSend()
	assert.True(t, c.closed)
}

func TestClient_ConcurrentPushAndClose(t *testing.T) {
	c := &Client{send: make(chan []byte, 4)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.push(&OutboundMessage{Type: "entities"})
		}()
	}
	c.closeSend()
	wg.Wait()
}

func TestClient_PushDropsWhenBufferFull(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.push(&OutboundMessage{Type: "entities"})
	c.push(&OutboundMessage{Type: "entities"})
	assert.Len(t, c.send, 1)
}
