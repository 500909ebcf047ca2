package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublishFanOut(t *testing.T) {
	h := NewHub(nil)
	a := h.Subscribe(RideRoom("r1"))
	defer a.Cancel()
	b := h.Subscribe(RideRoom("r1"))
	defer b.Cancel()
	other := h.Subscribe(RideRoom("r2"))
	defer other.Cancel()

	h.Publish(RideRoom("r1"), KindRideAccepted, map[string]string{"ride_id": "r1"})

	for _, sub := range []*Subscription{a, b} {
		ev := recvEvent(t, sub)
		if ev.Kind != KindRideAccepted || ev.Topic != RideRoom("r1") {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.ID == "" || ev.Origin != h.Origin() {
			t.Fatalf("event missing id or origin: %+v", ev)
		}
	}

	select {
	case ev := <-other.C:
		t.Fatalf("r2 subscriber must not see r1 events, got %+v", ev)
	default:
	}
}

func TestPerTopicOrder(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe(TopicPending)
	defer sub.Cancel()

	const n = 30
	for i := 0; i < n; i++ {
		h.Publish(TopicPending, KindPendingList, map[string]int{"seq": i})
	}
	for i := 0; i < n; i++ {
		ev := recvEvent(t, sub)
		want := fmt.Sprintf(`{"seq":%d}`, i)
		if string(ev.Payload) != want {
			t.Fatalf("event %d payload = %s, want %s", i, ev.Payload, want)
		}
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	h := NewHub(nil)
	h.Publish(TopicPending, KindPendingList, nil)

	sub := h.Subscribe(TopicPending)
	defer sub.Cancel()
	select {
	case ev := <-sub.C:
		t.Fatalf("late subscriber must not see earlier events, got %+v", ev)
	default:
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	h := NewHub(nil)
	slow := h.Subscribe(TopicPending)

	for i := 0; i < subscriptionBuffer+1; i++ {
		h.Publish(TopicPending, KindPendingList, nil)
	}

	// channel is closed once the subscriber is dropped
	drained := 0
	for range slow.C {
		drained++
	}
	if drained != subscriptionBuffer {
		t.Fatalf("drained %d buffered events, want %d", drained, subscriptionBuffer)
	}

	// a fresh subscriber still works
	fresh := h.Subscribe(TopicPending)
	defer fresh.Cancel()
	h.Publish(TopicPending, KindPendingList, nil)
	recvEvent(t, fresh)
}

func TestCancelDuringPublish(t *testing.T) {
	h := NewHub(nil)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.Publish(TopicPending, KindPendingList, nil)
				}
			}
		}()
	}

	// churn subscriptions while publishers are mid-flight; some cancel
	// with a full buffer, some empty, some are dropped by the hub itself
	for i := 0; i < 2000; i++ {
		sub := h.Subscribe(TopicPending)
		if i%3 == 0 {
			select {
			case <-sub.C:
			default:
			}
		}
		sub.Cancel()
	}
	close(stop)
	wg.Wait()
}

type recordingBridge struct {
	events []Event
}

func (b *recordingBridge) Forward(ev Event) { b.events = append(b.events, ev) }

func TestBridgeForwardAndInject(t *testing.T) {
	h := NewHub(nil)
	bridge := &recordingBridge{}
	h.SetBridge(bridge)

	sub := h.Subscribe(RideRoom("r1"))
	defer sub.Cancel()

	h.Publish(RideRoom("r1"), KindChatMessage, nil)
	recvEvent(t, sub)
	if len(bridge.events) != 1 {
		t.Fatalf("bridge saw %d events, want 1", len(bridge.events))
	}

	// echoes of our own events must be dropped
	h.Inject(bridge.events[0])
	select {
	case ev := <-sub.C:
		t.Fatalf("own-origin inject must be ignored, got %+v", ev)
	default:
	}

	// a remote event is delivered locally
	remote := bridge.events[0]
	remote.ID = "remote-1"
	remote.Origin = "other-instance"
	h.Inject(remote)
	ev := recvEvent(t, sub)
	if ev.ID != "remote-1" {
		t.Fatalf("expected injected remote event, got %+v", ev)
	}
}
