package redis

import (
	"sync"

	"github.com/redis/go-redis/v9"
)

// Subscription adapts a go-redis PubSub into a plain payload channel.
type Subscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	once   sync.Once
	done   chan struct{}
}

func newSubscription(pubsub *redis.PubSub) *Subscription {
	s := &Subscription{
		pubsub: pubsub,
		out:    make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.pump(pubsub.Channel())
	return s
}

func (s *Subscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

// Messages yields raw payloads until Close is called or the connection drops.
func (s *Subscription) Messages() <-chan []byte {
	return s.out
}

// Close unsubscribes and stops delivery.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
