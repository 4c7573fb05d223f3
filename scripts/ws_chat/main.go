// Command ws_chat is a terminal client for manual testing: it logs in over
// the REST API, speaks the relay protocol over WebSocket and drives the
// client-side call state machine.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nichat/nichat-server/internal/call"
	"github.com/nichat/nichat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	user := flag.String("user", "cli-user", "username")
	pass := flag.String("pass", "password123", "password")
	chatID := flag.Int64("chat", 0, "chat to join on connect")
	ringTimeout := flag.Duration("ring-timeout", call.DefaultRingTimeout, "how long an outgoing call rings before giving up")
	qualityInterval := flag.Duration("quality-interval", call.DefaultQualityInterval, "interval between quality reports while on a call")
	flag.Parse()

	token, err := login(*server, *user, *pass)
	if err != nil {
		return err
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(msgType string, data any) {
		raw, marshalErr := json.Marshal(data)
		if marshalErr != nil {
			log.Printf("marshal %s: %v", msgType, marshalErr)
			return
		}
		if writeErr := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: raw}); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	machine := call.NewMachine(call.Config{
		RingTimeout:     *ringTimeout,
		QualityInterval: *qualityInterval,
	}, func(s call.Signal) {
		data := proto.CallData{
			CallID:  s.CallID,
			PeerID:  s.PeerID,
			Kind:    s.Kind,
			Reason:  s.Reason,
			Payload: s.Payload,
		}
		switch s.Type {
		case call.SignalOffer:
			send(proto.InboundTypeCallOffer, data)
		case call.SignalAccept:
			send(proto.InboundTypeCallAccept, data)
		case call.SignalReject:
			send(proto.InboundTypeCallReject, data)
		case call.SignalEnd:
			send(proto.InboundTypeCallEnd, data)
		case call.SignalQuality:
			send(proto.InboundTypeCallQuality, data)
		}
	})
	defer machine.Close()

	if *chatID != 0 {
		send(proto.InboundTypeJoinChat, proto.ChatData{ChatID: *chatID})
	}

	fmt.Printf("Connected to %s as %s\n", *server, *user)
	fmt.Println("Commands: /join N, /leave N, /read N, /call PEER, /accept, /reject, /hangup. Plain text sends to the current chat.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, machine)
	}()

	inputLoop(ctx, send, machine, *chatID)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// login authenticates against the REST API, registering the user first if
// needed.
func login(server, user, pass string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": user, "password": pass})

	try := func(path string) (string, int, error) {
		resp, err := http.Post(server+path, "application/json", bytes.NewReader(body))
		if err != nil {
			return "", 0, err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		var auth struct {
			Token string `json:"token"`
		}
		_ = json.Unmarshal(raw, &auth)
		return auth.Token, resp.StatusCode, nil
	}

	token, status, err := try("/api/login")
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if status == http.StatusUnauthorized {
		token, status, err = try("/api/register")
		if err != nil {
			return "", fmt.Errorf("register: %w", err)
		}
	}
	if token == "" {
		return "", fmt.Errorf("auth failed with status %d", status)
	}
	return token, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, machine *call.Machine) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			if ctx.Err() == nil {
				log.Printf("read: %v", err)
			}
			return
		}

		if outbound.Type == proto.OutboundTypeError {
			fmt.Printf("[error] %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case proto.EventMessageNew:
			var msg proto.EventMessage
			if json.Unmarshal(outbound.Data, &msg) == nil {
				fmt.Printf("[chat %d] %s: %s\n", msg.ChatID, msg.SenderName, msg.Body)
			}
		case proto.EventTypingStart:
			var typing proto.EventTyping
			if json.Unmarshal(outbound.Data, &typing) == nil {
				fmt.Printf("[chat %d] %s is typing...\n", typing.ChatID, typing.Username)
			}
		case proto.EventNotification:
			var notice proto.EventNotice
			if json.Unmarshal(outbound.Data, &notice) == nil && notice.Message != nil {
				fmt.Printf("[notify] new message in chat %d from %s\n", notice.ChatID, notice.Message.SenderName)
			}
		case proto.EventUserStatus:
			var status proto.EventStatus
			if json.Unmarshal(outbound.Data, &status) == nil {
				state := "offline"
				if status.Online {
					state = "online"
				}
				fmt.Printf("[presence] user %d is %s\n", status.UserID, state)
			}
		case proto.EventCallIncoming:
			var incoming proto.EventCall
			if json.Unmarshal(outbound.Data, &incoming) == nil {
				if err := machine.HandleIncoming(incoming.CallID, incoming.FromID, incoming.Kind); err == nil {
					fmt.Printf("[call] incoming %s call from %s, /accept or /reject\n", incoming.Kind, incoming.FromName)
				}
			}
		case proto.EventCallAccept:
			var accepted proto.EventCall
			if json.Unmarshal(outbound.Data, &accepted) == nil {
				if machine.HandleAccepted(accepted.CallID) == nil {
					fmt.Println("[call] accepted, media flowing")
				}
			}
		case proto.EventCallReject:
			var rejected proto.EventCall
			if json.Unmarshal(outbound.Data, &rejected) == nil {
				if machine.HandleRejected(rejected.CallID) == nil {
					fmt.Printf("[call] rejected: %s\n", rejected.Reason)
				}
			}
		case proto.EventCallEnd:
			var ended proto.EventCall
			if json.Unmarshal(outbound.Data, &ended) == nil {
				machine.HandleEnded(ended.CallID)
				fmt.Println("[call] ended by peer")
			}
		}
	}
}

func inputLoop(ctx context.Context, send func(string, any), machine *call.Machine, startChat int64) {
	currentChat := startChat
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if currentChat == 0 {
				fmt.Println("no chat joined, use /join N first")
				continue
			}
			send(proto.InboundTypeSendMessage, proto.SendMessageData{ChatID: currentChat, Body: line})
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/join":
			if id, ok := parseID(fields); ok {
				currentChat = id
				send(proto.InboundTypeJoinChat, proto.ChatData{ChatID: id})
			}
		case "/leave":
			if id, ok := parseID(fields); ok {
				if id == currentChat {
					currentChat = 0
				}
				send(proto.InboundTypeLeaveChat, proto.ChatData{ChatID: id})
			}
		case "/read":
			if id, ok := parseID(fields); ok {
				send(proto.InboundTypeMarkRead, proto.MarkReadData{ChatID: id})
			}
		case "/call":
			if peer, ok := parseID(fields); ok {
				if _, err := machine.Start(peer, "audio", json.RawMessage(`{"sdp":"offer"}`)); err != nil {
					fmt.Printf("cannot call: %v\n", err)
				} else {
					fmt.Println("[call] ringing...")
				}
			}
		case "/accept":
			if err := machine.Accept(json.RawMessage(`{"sdp":"answer"}`)); err != nil {
				fmt.Printf("cannot accept: %v\n", err)
			}
		case "/reject":
			if err := machine.Decline(call.ReasonDeclined); err != nil {
				fmt.Printf("cannot reject: %v\n", err)
			}
		case "/hangup":
			if err := machine.Hangup(); err != nil {
				fmt.Printf("cannot hang up: %v\n", err)
			}
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func parseID(fields []string) (int64, bool) {
	if len(fields) < 2 {
		fmt.Println("missing id argument")
		return 0, false
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id == 0 {
		fmt.Println("invalid id:", fields[1])
		return 0, false
	}
	return id, true
}
