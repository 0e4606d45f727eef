package notify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	received := make(chan ProcessStartedEvent, 1)

	unsub := bus.Subscribe(func(e ProcessStartedEvent) {
		received <- e
	})
	defer unsub()

	bus.Emit(EventProcessStarted, nil)

	select {
	case got := <-received:
		if got.Timestamp.IsZero() {
			t.Errorf("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("no started event delivered")
	}
}

func TestBus_SubscribeAllKeepsOrder(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Channel(16)
	defer unsub()

	want := []string{EventProcessStarted, EventProcessStopped, EventProcessStarted, EventProcessStopped}
	for _, name := range want {
		bus.Emit(name, nil)
	}
	for i, name := range want {
		select {
		case e := <-ch:
			if e.Name != name {
				t.Fatalf("event %d: got %q want %q", i, e.Name, name)
			}
			if e.Payload == nil {
				t.Fatalf("payload should be an empty map, got nil")
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestBus_TemplatesChanged(t *testing.T) {
	bus := NewBus()
	received := make(chan TemplatesChangedEvent, 1)
	unsub := bus.Subscribe(func(e TemplatesChangedEvent) { received <- e })
	defer unsub()

	bus.Emit(EventTemplatesChanged, map[string]any{"templates": []string{"a", "b"}})
	select {
	case e := <-received:
		if len(e.Templates) != 2 || e.Templates[1] != "b" {
			t.Fatalf("unexpected templates: %#v", e.Templates)
		}
	case <-time.After(time.Second):
		t.Fatal("templates event not delivered")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	received := make(chan ProcessStoppedEvent, 2)
	unsub := bus.Subscribe(func(e ProcessStoppedEvent) { received <- e })

	bus.Emit(EventProcessStopped, nil)
	<-received
	unsub()

	bus.Emit(EventProcessStopped, nil)
	select {
	case <-received:
		t.Fatal("should not have received event after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}

	if noop := bus.Subscribe(func(string) {}); noop == nil {
		t.Fatal("unknown handler types must get a no-op unsubscribe")
	}
}

func TestFileTray(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultActiveIcon), []byte("A"), 0o600); err != nil {
		t.Fatal(err)
	}
	var applied []string
	tray := &FileTray{Dir: dir, Apply: func(v Icon, b []byte) error {
		applied = append(applied, v.String()+":"+string(b))
		return nil
	}}

	if err := tray.SetIcon(IconActive); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if cur, ok := tray.Current(); !ok || cur != IconActive {
		t.Fatalf("current: %v %v", cur, ok)
	}
	// idle asset is missing
	if err := tray.SetIcon(IconIdle); err == nil {
		t.Fatalf("expected error for missing idle icon")
	}
	if cur, _ := tray.Current(); cur != IconActive {
		t.Fatalf("failed SetIcon must not change current")
	}
	if len(applied) != 1 || applied[0] != "active:A" {
		t.Fatalf("unexpected apply calls: %v", applied)
	}

	tray.Apply = func(Icon, []byte) error { return errors.New("no tray") }
	if err := tray.SetIcon(IconActive); err == nil {
		t.Fatalf("apply error should surface")
	}
}

func TestRecorderAndNop(t *testing.T) {
	var r Recorder
	r.Emit(EventProcessStarted, nil)
	if err := r.SetIcon(IconActive); err != nil {
		t.Fatal(err)
	}
	r.FailTray(nil)
	if err := r.SetIcon(IconIdle); err == nil {
		t.Fatal("expected tray failure")
	}
	if ev := r.Events(); len(ev) != 1 || ev[0] != EventProcessStarted {
		t.Fatalf("events: %v", ev)
	}
	if ic := r.Icons(); len(ic) != 1 || ic[0] != IconActive {
		t.Fatalf("icons: %v", ic)
	}

	Nop{}.Emit("x", nil)
	if err := (Nop{}).SetIcon(IconIdle); err != nil {
		t.Fatal(err)
	}
	if err := (LogTray{}).SetIcon(IconActive); err != nil {
		t.Fatal(err)
	}
	if Icon(7).String() != "icon(7)" {
		t.Fatalf("unexpected string for unknown icon")
	}
}
