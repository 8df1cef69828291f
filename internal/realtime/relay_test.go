package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopbackPublisher struct {
	mu       sync.Mutex
	channel  string
	payloads [][]byte
}

func (p *loopbackPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channel = channel
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestNewRelayValidation(t *testing.T) {
	_, err := NewRelay(nil, "c", "o", nil)
	assert.Error(t, err)
	_, err = NewRelay(&loopbackPublisher{}, " ", "o", nil)
	assert.Error(t, err)
	_, err = NewRelay(&loopbackPublisher{}, "c", "", nil)
	assert.Error(t, err)
}

func TestRelayIgnoresOwnOriginAndDeliversForeign(t *testing.T) {
	pubA := &loopbackPublisher{}
	pubB := &loopbackPublisher{}
	relayA, err := NewRelay(pubA, "sw:events", "instance-a", nil)
	require.NoError(t, err)
	relayB, err := NewRelay(pubB, "sw:events", "instance-b", nil)
	require.NoError(t, err)

	w1 := uuid.New()
	ev := mustEvent(t, ProductUpdated, w1, map[string]string{"id": "p1"})
	require.NoError(t, relayA.Forward(context.Background(), ev))
	require.NoError(t, relayB.Forward(context.Background(), ev))
	assert.Equal(t, "sw:events", pubA.channel)

	messages := make(chan []byte, 4)
	messages <- pubA.payloads[0]
	messages <- []byte("not json")
	messages <- pubB.payloads[0]
	close(messages)

	var mu sync.Mutex
	var got []Event
	deliver := func(_ context.Context, e Event) int {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return 1
	}

	err = relayA.Consume(context.Background(), messages, deliver)
	require.Error(t, err, "closed subscription should end Consume with an error")

	require.Len(t, got, 1)
	assert.Equal(t, ProductUpdated, got[0].Type)
	assert.Equal(t, w1, got[0].WishlistID)
}

func TestRelayConsumeStopsOnContextCancel(t *testing.T) {
	relay, err := NewRelay(&loopbackPublisher{}, "sw:events", "instance-a", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay.Consume(ctx, make(chan []byte), func(context.Context, Event) int { return 0 })
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after cancel")
	}
}

func TestRelayFeedsBroadcasterLocalDelivery(t *testing.T) {
	reg := NewRegistry(nil)
	b := NewBroadcaster(reg, nil, nil)
	w1 := uuid.New()
	s := NewSession(uuid.New(), 4)
	reg.Join(s, w1)

	remote, err := NewRelay(&loopbackPublisher{}, "sw:events", "instance-remote", nil)
	require.NoError(t, err)
	local, err := NewRelay(&loopbackPublisher{}, "sw:events", "instance-local", nil)
	require.NoError(t, err)

	pub := &loopbackPublisher{}
	remote.pub = pub
	require.NoError(t, remote.Forward(context.Background(), mustEvent(t, ProductAdded, w1, map[string]string{"id": "p9"})))

	messages := make(chan []byte, 1)
	messages <- pub.payloads[0]
	close(messages)
	_ = local.Consume(context.Background(), messages, b.DeliverLocal)

	assert.Len(t, drain(s), 1)
}
