package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nichat/nichat-server/internal/proto"
)

func startWSServer(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler)
	t.Cleanup(ts.Close)
	return env, ts
}

func wsDial(t *testing.T, ctx context.Context, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendWS(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readEvent reads outbound frames until one carries the wanted event name,
// skipping unrelated events such as presence broadcasts.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("read waiting for %s: %v", event, err)
		}
		if outbound.Type == proto.OutboundTypeError {
			t.Fatalf("error frame while waiting for %s: %+v", event, outbound.Error)
		}
		if outbound.Event == event {
			return outbound.Data
		}
	}
}

func TestWSRejectsMissingOrBadToken(t *testing.T) {
	_, ts := startWSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	if _, resp, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatal("dial without token succeeded")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 refusal, got %+v", resp)
	}

	if _, resp, err := websocket.Dial(ctx, wsURL+"?token=garbage", nil); err == nil {
		t.Fatal("dial with bad token succeeded")
	} else if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 refusal, got %+v", resp)
	}
}

func TestWSMessageDeliveryToViewer(t *testing.T) {
	env, ts := startWSServer(t)
	tokenA, alice := env.registerUser(t, "alice")
	tokenB, bob := env.registerUser(t, "bob")

	chat, err := env.store.CreateDirectChat(context.Background(), DirectChatKey(alice.ID, bob.ID), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := wsDial(t, ctx, ts, tokenA)
	connB := wsDial(t, ctx, ts, tokenB)

	sendWS(t, ctx, connA, proto.InboundTypeJoinChat, proto.ChatData{ChatID: chat.ID})
	sendWS(t, ctx, connB, proto.InboundTypeJoinChat, proto.ChatData{ChatID: chat.ID})

	// Joins are processed by the hub loop; give them a moment to land
	// before sending into the room.
	time.Sleep(100 * time.Millisecond)

	sendWS(t, ctx, connA, proto.InboundTypeSendMessage, proto.SendMessageData{ChatID: chat.ID, Body: "hello bob"})

	raw := readEvent(t, ctx, connB, proto.EventMessageNew)
	var msg proto.EventMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal message event: %v", err)
	}
	if msg.Body != "hello bob" || msg.SenderID != alice.ID || msg.SenderName != "alice" {
		t.Fatalf("message event = %+v", msg)
	}
	if msg.ChatID != chat.ID || msg.ID == 0 {
		t.Fatalf("message event not persisted: %+v", msg)
	}
}

func TestWSNotificationForNonViewer(t *testing.T) {
	env, ts := startWSServer(t)
	tokenA, alice := env.registerUser(t, "alice")
	tokenB, bob := env.registerUser(t, "bob")

	chat, err := env.store.CreateDirectChat(context.Background(), DirectChatKey(alice.ID, bob.ID), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := wsDial(t, ctx, ts, tokenA)
	connB := wsDial(t, ctx, ts, tokenB)

	// Bob is connected but never joins the chat room.
	sendWS(t, ctx, connA, proto.InboundTypeJoinChat, proto.ChatData{ChatID: chat.ID})
	time.Sleep(100 * time.Millisecond)

	sendWS(t, ctx, connA, proto.InboundTypeSendMessage, proto.SendMessageData{ChatID: chat.ID, Body: "ping"})

	raw := readEvent(t, ctx, connB, proto.EventNotification)
	var notice proto.EventNotice
	if err := json.Unmarshal(raw, &notice); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	if notice.NoticeType != "message" || notice.ChatID != chat.ID {
		t.Fatalf("notification = %+v", notice)
	}
	if notice.Message == nil || notice.Message.Body != "ping" {
		t.Fatalf("notification message = %+v", notice.Message)
	}
}

func TestWSCallSignalingBetweenPeers(t *testing.T) {
	env, ts := startWSServer(t)
	tokenA, alice := env.registerUser(t, "alice")
	tokenB, bob := env.registerUser(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := wsDial(t, ctx, ts, tokenA)
	connB := wsDial(t, ctx, ts, tokenB)

	time.Sleep(100 * time.Millisecond)

	sendWS(t, ctx, connA, proto.InboundTypeCallOffer, proto.CallData{
		CallID:  "call-1",
		PeerID:  bob.ID,
		Kind:    "video",
		Payload: json.RawMessage(`{"sdp":"offer"}`),
	})

	raw := readEvent(t, ctx, connB, proto.EventCallIncoming)
	var incoming proto.EventCall
	if err := json.Unmarshal(raw, &incoming); err != nil {
		t.Fatalf("unmarshal incoming call: %v", err)
	}
	if incoming.CallID != "call-1" || incoming.FromID != alice.ID || incoming.FromName != "alice" {
		t.Fatalf("incoming = %+v", incoming)
	}
	if string(incoming.Payload) != `{"sdp":"offer"}` {
		t.Fatalf("offer payload = %s", incoming.Payload)
	}

	sendWS(t, ctx, connB, proto.InboundTypeCallAccept, proto.CallData{
		CallID:  "call-1",
		PeerID:  alice.ID,
		Payload: json.RawMessage(`{"sdp":"answer"}`),
	})

	raw = readEvent(t, ctx, connA, proto.EventCallAccept)
	var accepted proto.EventCall
	if err := json.Unmarshal(raw, &accepted); err != nil {
		t.Fatalf("unmarshal accept: %v", err)
	}
	if accepted.CallID != "call-1" || accepted.FromID != bob.ID {
		t.Fatalf("accepted = %+v", accepted)
	}

	sendWS(t, ctx, connB, proto.InboundTypeCallEnd, proto.CallData{CallID: "call-1", PeerID: alice.ID})
	raw = readEvent(t, ctx, connA, proto.EventCallEnd)
	var ended proto.EventCall
	if err := json.Unmarshal(raw, &ended); err != nil {
		t.Fatalf("unmarshal end: %v", err)
	}
	if ended.CallID != "call-1" {
		t.Fatalf("ended = %+v", ended)
	}
}

func TestWSRejectsUnknownFrameType(t *testing.T) {
	env, ts := startWSServer(t)
	tokenA, _ := env.registerUser(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := wsDial(t, ctx, ts, tokenA)

	sendWS(t, ctx, connA, "bogus:type", struct{}{})

	var frame struct {
		Type  string       `json:"type"`
		Error *proto.Error `json:"error"`
	}
	if err := wsjson.Read(ctx, connA, &frame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if frame.Type != proto.OutboundTypeError || frame.Error == nil || frame.Error.Code != "invalid_message" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := startWSServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}
