package client

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/internal/groutine"
)

// subscription delivers the notifications of one characteristic to its
// handler on a goroutine of its own, so a slow handler never stalls the
// event loop.
type subscription struct {
	ch       bluetooth.Characteristic
	values   chan []byte
	stopOnce sync.Once
	done     chan struct{}
}

// subscriptionKey groups the subscriptions of one characteristic type on
// a peripheral. A peripheral may expose the same type more than once, so
// the group is searched by handle.
func subscriptionKey(ch bluetooth.Characteristic) string {
	return ch.Peripheral().ID().String() + "/" + ch.UUID().String()
}

func (c *Client) newSubscription(ch bluetooth.Characteristic, fn func(value []byte)) *subscription {
	sub := &subscription{
		ch:     ch,
		values: make(chan []byte, c.opts.NotificationBuffer),
		done:   make(chan struct{}),
	}
	groutine.Go(context.Background(), "client.notify", func(ctx context.Context) {
		for {
			select {
			case v := <-sub.values:
				fn(v)
			case <-sub.done:
				return
			}
		}
	})
	return sub
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Subscribe enables notifications of ch and calls fn with every value
// received, in order. A previous handler of ch is replaced.
func (c *Client) Subscribe(ctx context.Context, ch bluetooth.Characteristic, fn func(value []byte)) error {
	if !ch.IsValid() {
		return errInvalidHandle
	}
	p := ch.Peripheral()
	sub := c.newSubscription(ch, fn)
	c.addSubscription(sub)

	_, err := await(ctx, c, call{
		name:  "subscribe",
		key:   opKey{kind: opNotify, peripheral: p, handle: ch},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("characteristic", ch.UUID())},
		issue: func() error { return p.Subscribe(ch) },
	}, func(ev bluetooth.SubscriptionChanged) error { return ev.Err })
	if err != nil {
		c.removeSubscription(sub)
	}
	return err
}

// Unsubscribe disables notifications of ch and removes its handler.
func (c *Client) Unsubscribe(ctx context.Context, ch bluetooth.Characteristic) error {
	if !ch.IsValid() {
		return errInvalidHandle
	}
	p := ch.Peripheral()
	_, err := await(ctx, c, call{
		name:  "unsubscribe",
		key:   opKey{kind: opNotify, peripheral: p, handle: ch},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("characteristic", ch.UUID())},
		issue: func() error { return p.Unsubscribe(ch) },
	}, func(ev bluetooth.SubscriptionChanged) error { return ev.Err })

	if sub, ok := c.subscription(ch); ok {
		c.removeSubscription(sub)
	}
	return err
}

// subscription returns the live subscription of ch.
func (c *Client) subscription(ch bluetooth.Characteristic) (*subscription, bool) {
	group, _ := c.subs.Get(subscriptionKey(ch))
	for _, sub := range group {
		if sub.ch == ch {
			return sub, true
		}
	}
	return nil, false
}

// addSubscription registers sub, stopping the one it replaces. Groups are
// copied on write so notify can read them without locking.
func (c *Client) addSubscription(sub *subscription) {
	key := subscriptionKey(sub.ch)
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	old, _ := c.subs.Get(key)
	group := make([]*subscription, 0, len(old)+1)
	for _, o := range old {
		if o.ch == sub.ch {
			o.stop()
			continue
		}
		group = append(group, o)
	}
	c.subs.Set(key, append(group, sub))
}

func (c *Client) removeSubscription(sub *subscription) {
	key := subscriptionKey(sub.ch)
	c.subsMu.Lock()
	old, _ := c.subs.Get(key)
	group := make([]*subscription, 0, len(old))
	for _, o := range old {
		if o != sub {
			group = append(group, o)
		}
	}
	if len(group) == 0 {
		c.subs.Del(key)
	} else {
		c.subs.Set(key, group)
	}
	c.subsMu.Unlock()
	sub.stop()
}

// notify hands a notified value to the subscription of its characteristic.
func (c *Client) notify(ev bluetooth.CharacteristicValue) {
	if ev.Err != nil || !ev.Characteristic.IsValid() {
		return
	}
	sub, ok := c.subscription(ev.Characteristic)
	if !ok {
		c.logger.WithField("characteristic", ev.Characteristic).Debug("value without reader dropped")
		return
	}
	select {
	case sub.values <- ev.Value:
	case <-sub.done:
	default:
		c.logger.WithField("characteristic", ev.Characteristic).Warn("notification buffer full, value dropped")
	}
}

// dropSubscriptions removes the subscriptions of a disconnected peripheral.
func (c *Client) dropSubscriptions(p *bluetooth.Peripheral) {
	c.dropSubscriptionsWhere(func(key string) bool {
		return strings.HasPrefix(key, p.ID().String()+"/")
	})
}

func (c *Client) dropSubscriptionsWhere(match func(key string) bool) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs.Range(func(key string, group []*subscription) bool {
		if match(key) {
			c.subs.Del(key)
			for _, sub := range group {
				sub.stop()
			}
		}
		return true
	})
}
