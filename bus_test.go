package docsync

import (
	"errors"
	"testing"
)

type relayFunc func(Change) error

func (f relayFunc) Relay(c Change) error { return f(c) }

func TestBus_ExactPathOnly(t *testing.T) {
	bus := NewBus()
	var title, other []Change
	bus.Subscribe("doc", P("fields", "title"), func(c Change) { title = append(title, c) })
	bus.Subscribe("doc", P("fields", "body"), func(c Change) { other = append(other, c) })
	bus.Subscribe("other-doc", P("fields", "title"), func(c Change) { other = append(other, c) })

	bus.Publish(Change{DocID: "doc", Path: P("fields", "title"), Kind: OpSet, Value: "x"})

	if len(title) != 1 || title[0].Value != "x" {
		t.Errorf("title subscriber got %+v", title)
	}
	if len(other) != 0 {
		t.Errorf("unrelated subscribers got %+v", other)
	}
}

func TestBus_DescendantsReceiveSubtreeValue(t *testing.T) {
	bus := NewBus()
	var got []Change
	bus.Subscribe("doc", P("fields", "title", "en-US"), func(c Change) { got = append(got, c) })
	bus.Subscribe("doc", P("fields", "tags", 1), func(c Change) { got = append(got, c) })

	bus.Publish(Change{
		DocID: "doc",
		Path:  P("fields"),
		Kind:  OpSet,
		Value: map[string]any{"title": map[string]any{"en-US": "Hello"}},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	for _, c := range got {
		switch {
		case c.Path.Equal(P("fields", "title", "en-US")):
			if c.Kind != OpSet || c.Value != "Hello" {
				t.Errorf("title change = %+v", c)
			}
		case c.Path.Equal(P("fields", "tags", 1)):
			if c.Kind != OpRemove || c.Value != nil {
				t.Errorf("missing descendant must be a removal: %+v", c)
			}
		default:
			t.Errorf("unexpected path %v", c.Path)
		}
	}
}

func TestBus_UnsubscribeDropsTopic(t *testing.T) {
	bus := NewBus()
	u1 := bus.Subscribe("doc", P("a"), func(Change) {})
	u2 := bus.Subscribe("doc", P("a"), func(Change) {})
	if bus.Topics() != 1 {
		t.Fatalf("Topics() = %d, want 1", bus.Topics())
	}
	u1()
	u1()
	if bus.Topics() != 1 {
		t.Fatalf("topic dropped while a subscriber remains")
	}
	u2()
	if bus.Topics() != 0 {
		t.Errorf("Topics() = %d after unsubscribing all", bus.Topics())
	}
}

func TestBus_Relay(t *testing.T) {
	bus := NewBus()
	var relayed []Change
	bus.SetRelay(relayFunc(func(c Change) error {
		relayed = append(relayed, c)
		return errors.New("relay down")
	}))
	var delivered int
	bus.Subscribe("doc", P("a"), func(Change) { delivered++ })

	bus.Publish(Change{DocID: "doc", Path: P("a")})
	if len(relayed) != 1 || relayed[0].Origin != bus.ID() {
		t.Fatalf("relayed = %+v", relayed)
	}

	// Inbound from another process.
	bus.Deliver(Change{DocID: "doc", Path: P("a"), Origin: "elsewhere"})
	// Our own change coming back from the relay.
	bus.Deliver(Change{DocID: "doc", Path: P("a"), Origin: bus.ID()})

	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
	if len(relayed) != 1 {
		t.Errorf("inbound changes must not be relayed again")
	}
}
