package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(time.Hour, nil)
	srv := httptest.NewServer(http.HandlerFunc(NewServer(ctx, hub, time.Second, nil).HandleWS))
	defer srv.Close()

	a := dial(t, srv.URL)
	defer a.Close()
	b := dial(t, srv.URL)
	defer b.Close()
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish(Event{Type: EntryRegistered, Data: map[string]string{"ticket_code": "TK1"}})

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var got struct {
			Type Type              `json:"type"`
			At   time.Time         `json:"at"`
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, EntryRegistered, got.Type)
		assert.False(t, got.At.IsZero())
		assert.Equal(t, "TK1", got.Data["ticket_code"])
	}

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(0, nil)
	hub.Publish(Event{Type: ShiftClosed})
	Discard{}.Publish(Event{Type: ShiftClosed})
	assert.Zero(t, hub.Len())
}

func TestHubStartStops(t *testing.T) {
	hub := NewHub(time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done
}

func TestHubMembershipNotBlockedByStalledPing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(time.Hour, nil)
	srv := httptest.NewServer(http.HandlerFunc(NewServer(ctx, hub, time.Second, nil).HandleWS))
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	stalled := hub.snapshot()[0]
	stalled.writeMu.Lock()
	pinged := make(chan struct{})
	go func() {
		hub.pingAll()
		close(pinged)
	}()
	time.Sleep(20 * time.Millisecond)

	changed := make(chan struct{})
	go func() {
		other := &Subscriber{}
		hub.Add(other)
		hub.Remove(other)
		close(changed)
	}()
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Error("add and remove blocked behind a stalled ping")
	}

	stalled.writeMu.Unlock()
	<-pinged
	<-changed

	require.NoError(t, conn.Close())
	cancel()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}
