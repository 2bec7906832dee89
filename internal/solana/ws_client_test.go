package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain keeps a server connection open until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ackSubscribe reads one logsSubscribe request and acknowledges it with subID.
func ackSubscribe(t *testing.T, conn *websocket.Conn, subID int64) wsRequest {
	t.Helper()
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("read subscribe: %v", err)
		return wsRequest{}
	}
	var req wsRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Errorf("unmarshal request: %v", err)
		return wsRequest{}
	}
	if req.Method != "logsSubscribe" {
		t.Errorf("expected logsSubscribe, got %s", req.Method)
	}
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID}
	if err := conn.WriteJSON(resp); err != nil {
		t.Errorf("write ack: %v", err)
	}
	return req
}

func sendNotification(conn *websocket.Conn, subID int64, sig string, slot int64, txErr interface{}) error {
	return conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value": map[string]interface{}{
					"signature": sig,
					"logs":      []string{"Program log: Instruction: Create"},
					"err":       txErr,
				},
			},
		},
	})
}

func TestWSClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		drain(conn)
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
	if client.Endpoint() != wsURL(server) {
		t.Errorf("unexpected endpoint %s", client.Endpoint())
	}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	commitment := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		req := ackSubscribe(t, conn, 0) // subscription id 0 is valid
		if len(req.Params) == 2 {
			if cfg, ok := req.Params[1].(map[string]interface{}); ok {
				commitment <- cfg["commitment"].(string)
			}
		}

		time.Sleep(50 * time.Millisecond)
		if err := sendNotification(conn, 0, "testsig", 100, nil); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}
		drain(conn)
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{
		Mentions:   []string{"testprogram"},
		Commitment: CommitmentProcessed,
	})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case got := <-commitment:
		if got != CommitmentProcessed {
			t.Errorf("expected processed commitment, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe params not observed")
	}

	select {
	case notif := <-ch:
		if notif.Signature != "testsig" {
			t.Errorf("expected testsig, got %s", notif.Signature)
		}
		if notif.Slot != 100 {
			t.Errorf("expected slot 100, got %d", notif.Slot)
		}
		if notif.Endpoint != wsURL(server) {
			t.Errorf("expected endpoint to be stamped, got %q", notif.Endpoint)
		}
		if notif.Err != nil {
			t.Errorf("expected nil err, got %v", notif.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_FailedTransactionErrPassedThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ackSubscribe(t, conn, 7)
		sendNotification(conn, 7, "failedsig", 5, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}})
		drain(conn)
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}
	select {
	case notif := <-ch:
		if notif.Err == nil {
			t.Error("expected transaction error to be preserved")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_ReconnectResubscribes(t *testing.T) {
	var conns atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := conns.Add(1)
		if n == 1 {
			ackSubscribe(t, conn, 1)
			// Drop the first connection right after subscribing.
			return
		}
		ackSubscribe(t, conn, 2)
		// Let the client remap the subscription id before notifying.
		time.Sleep(100 * time.Millisecond)
		sendNotification(conn, 2, "after-reconnect", 9, nil)
		drain(conn)
	}))
	defer server.Close()

	var reconnects atomic.Int32
	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond
	cfg.OnReconnect = func(string) { reconnects.Add(1) }

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), &cfg)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"p"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "after-reconnect" {
			t.Errorf("unexpected signature %s", notif.Signature)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification after reconnect")
	}
	if reconnects.Load() < 1 {
		t.Error("expected OnReconnect to fire")
	}
}

func TestWSClient_CloseClosesSubscriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ackSubscribe(t, conn, 3)
		drain(conn)
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	ch, err := client.SubscribeLogs(ctx, LogsFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}

	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err == nil {
		t.Error("expected error subscribing after close")
	}
}
