package session

import (
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

// startTestServer starts an in-process COMMS (NATS) server for testing,
// mirroring the teacher's pkg/events/comms_publisher_integration_test.go.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("session:natsbus_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("session:natsbus_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("session:natsbus_integration_test - failed to connect: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func TestNatsBus_PublishSubscribe(t *testing.T) {
	nc, cleanup := startTestServer(t, 14231)
	defer cleanup()

	bus := NewNatsBus(nc)

	received := make(chan []byte, 1)
	unsubscribe, err := bus.Subscribe("dispatcher.test.subject", func(payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	if err := bus.Publish("dispatcher.test.subject", []byte("ping")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "ping" {
			t.Errorf("expected ping, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNatsBus_BlockingPop(t *testing.T) {
	nc, cleanup := startTestServer(t, 14232)
	defer cleanup()

	bus := NewNatsBus(nc)

	ch, unsubscribe, err := bus.BlockingPop("sockethub:test:dispatcher:outgoing:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	if err := bus.Push("sockethub:test:dispatcher:outgoing:1", []byte("frame")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-ch:
		if string(got) != "frame" {
			t.Errorf("expected frame, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed frame")
	}
}
