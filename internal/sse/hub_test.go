package sse

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return log
}

func recvMessage(t *testing.T, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return Message{}
}

func TestBroadcastReachesSubscribedClient(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	userID := uuid.New()
	client := hub.NewClient(userID)
	hub.AddChannel(client, userID.String())

	hub.Broadcast(Message{
		Channel: userID.String(),
		Event:   EventJobProgress,
		Data:    map[string]any{"progress": 0.5},
	})

	msg := recvMessage(t, client.Outbound, time.Second)
	if msg.Event != EventJobProgress {
		t.Fatalf("event: want=%s got=%s", EventJobProgress, msg.Event)
	}
}

func TestBroadcastSkipsOtherChannels(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, client.UserID.String())

	hub.Broadcast(Message{
		Channel: uuid.NewString(),
		Event:   EventJobDone,
	})

	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, client.UserID.String())

	// Fill the outbound buffer and one more; the extra must not block.
	for i := 0; i < cap(client.Outbound)+1; i++ {
		hub.Broadcast(Message{Channel: client.UserID.String(), Event: EventJobProgress})
	}

	if got := len(client.Outbound); got != cap(client.Outbound) {
		t.Fatalf("outbound length: want=%d got=%d", cap(client.Outbound), got)
	}
}

func TestRemoveClientStopsDelivery(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, client.UserID.String())
	hub.RemoveClient(client)

	hub.Broadcast(Message{Channel: client.UserID.String(), Event: EventJobDone})

	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message after removal: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
