package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherRoutesByKey(t *testing.T) {
	d := NewDispatcher()

	var reloads int
	var banner *bool
	d.Register(KeyReloadPlayer, func(context.Context, json.RawMessage) {
		reloads++
	})
	d.Register(KeyShowAdBanner, func(_ context.Context, value json.RawMessage) {
		var midroll bool
		if err := json.Unmarshal(value, &midroll); err != nil {
			t.Fatalf("banner value: %v", err)
		}
		banner = &midroll
	})

	d.Dispatch(context.Background(), `{"key":"ReloadPlayer"}`)
	d.Dispatch(context.Background(), `{"key":"ShowAdBanner","value":true}`)

	if reloads != 1 {
		t.Fatalf("reloads = %d, want 1", reloads)
	}
	if banner == nil || !*banner {
		t.Fatalf("banner = %v, want midroll true", banner)
	}
}

func TestDispatcherDropsUnknownAndMalformed(t *testing.T) {
	d := NewDispatcher()
	var called int
	d.Register(KeyReloadPlayer, func(context.Context, json.RawMessage) { called++ })

	d.Dispatch(context.Background(), `{"key":"SomethingElse","value":1}`)
	d.Dispatch(context.Background(), `not json`)
	d.Dispatch(context.Background(), `{"value":true}`)

	if called != 0 {
		t.Fatalf("handler called %d times for dropped messages", called)
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()

	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	evt := NewEvent("ad_detected", `{"channel":"somechannel"}`)
	if evt.ID == "" {
		t.Fatal("event ID not assigned")
	}
	b.Publish(evt)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Kind != "ad_detected" || got.ID != evt.ID {
				t.Fatalf("event = %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	if got := b.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	b.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() = %d, want 0", got)
	}
}

func TestBrokerDropsForSlowConsumers(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < subscriberBufSize+10; i++ {
		b.Publish(NewEvent("tick", ""))
	}

	// The buffer holds exactly subscriberBufSize events; the rest were
	// dropped rather than blocking the publisher.
	if got := len(ch); got != subscriberBufSize {
		t.Fatalf("buffered events = %d, want %d", got, subscriberBufSize)
	}
}
