package events

import "testing"

func TestBusDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var first, second []Event
	bus.Subscribe(func(evt Event) { first = append(first, evt) })
	bus.Subscribe(func(evt Event) { second = append(second, evt) })

	bus.Publish(Event{Kind: CustomerAuthenticated, CustomerID: "cus_1"})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers notified, got %d/%d", len(first), len(second))
	}
	if first[0].Kind != CustomerAuthenticated || first[0].CustomerID != "cus_1" {
		t.Fatalf("unexpected event %+v", first[0])
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var got []Event
	cancel := bus.Subscribe(func(evt Event) { got = append(got, evt) })

	bus.Publish(Event{Kind: CustomerLoggedOut})
	cancel()
	bus.Publish(Event{Kind: CustomerLoggedOut})

	if len(got) != 1 {
		t.Fatalf("expected one delivery after unsubscribe, got %d", len(got))
	}
}
