package http

import (
	"encoding/json"

	"github.com/nichat/nichat-server/internal/core"
	"github.com/nichat/nichat-server/internal/proto"
	"github.com/nichat/nichat-server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinChat, proto.InboundTypeLeaveChat:
		var data proto.ChatData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChatID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		kind := core.CommandJoinChat
		if inbound.Type == proto.InboundTypeLeaveChat {
			kind = core.CommandLeaveChat
		}
		return &core.Command{Kind: kind, ChatID: data.ChatID}, nil, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChatID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		if data.Body == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "body is required"}, nil
		}
		contentType := store.ContentTypeText
		if data.ContentType != "" {
			contentType = store.ContentType(data.ContentType)
			switch contentType {
			case store.ContentTypeText, store.ContentTypeImage, store.ContentTypeAudio,
				store.ContentTypeVideo, store.ContentTypeFile:
			default:
				return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown content type"}, nil
			}
		}
		return &core.Command{
			Kind:        core.CommandSendMessage,
			ChatID:      data.ChatID,
			Body:        data.Body,
			ContentType: contentType,
			ReplyToID:   data.ReplyToID,
		}, nil, nil

	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var data proto.ChatData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChatID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandTyping,
			ChatID: data.ChatID,
			Typing: inbound.Type == proto.InboundTypeTypingStart,
		}, nil, nil

	case proto.InboundTypeMarkRead:
		var data proto.MarkReadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChatID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandMarkRead,
			ChatID:    data.ChatID,
			MessageID: data.MessageID,
		}, nil, nil

	case proto.InboundTypeCallOffer, proto.InboundTypeCallAccept, proto.InboundTypeCallReject,
		proto.InboundTypeCallEnd, proto.InboundTypeCallCandidate, proto.InboundTypeCallQuality:
		return callCommand(inbound)

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func callCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	var data proto.CallData
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return nil, nil, err
	}
	if data.CallID == "" {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "call_id is required"}, nil
	}
	if data.PeerID == 0 {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "peer_id is required"}, nil
	}

	cmd := &core.Command{
		ChatID:   data.ChatID,
		CallID:   data.CallID,
		PeerID:   data.PeerID,
		CallKind: data.Kind,
		Reason:   data.Reason,
		Payload:  data.Payload,
	}
	switch inbound.Type {
	case proto.InboundTypeCallOffer:
		if data.Kind != "audio" && data.Kind != "video" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "kind must be audio or video"}, nil
		}
		cmd.Kind = core.CommandCallOffer
	case proto.InboundTypeCallAccept:
		cmd.Kind = core.CommandCallAccept
	case proto.InboundTypeCallReject:
		cmd.Kind = core.CommandCallReject
	case proto.InboundTypeCallEnd:
		cmd.Kind = core.CommandCallEnd
	case proto.InboundTypeCallCandidate:
		cmd.Kind = core.CommandCallCandidate
	case proto.InboundTypeCallQuality:
		cmd.Kind = core.CommandCallQuality
	}
	return cmd, nil, nil
}

func eventMessage(msg *core.Message) *proto.EventMessage {
	if msg == nil {
		return nil
	}
	return &proto.EventMessage{
		ID:           msg.ID,
		ChatID:       msg.ChatID,
		SenderID:     msg.SenderID,
		SenderName:   msg.SenderName,
		SenderAvatar: msg.SenderAvatar,
		Body:         msg.Body,
		ContentType:  string(msg.ContentType),
		ReplyToID:    msg.ReplyToID,
		ReadBy:       msg.ReadBy,
		Deleted:      msg.Deleted,
		TS:           msg.CreatedAt.Unix(),
	}
}

func eventCall(call *core.CallEvent) *proto.EventCall {
	out := &proto.EventCall{
		CallID:     call.CallID,
		Kind:       call.CallKind,
		FromID:     call.FromID,
		FromName:   call.FromName,
		FromAvatar: call.FromAvatar,
		Reason:     call.Reason,
		Payload:    call.Payload,
		TS:         call.Timestamp,
	}
	if call.JoinInfo != nil {
		out.Join = &proto.CallJoin{
			URL:      call.JoinInfo.URL,
			Token:    call.JoinInfo.Token,
			RoomName: call.JoinInfo.RoomName,
			Identity: call.JoinInfo.Identity,
		}
	}
	return out
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	outboundEvent := func(name string, data any) proto.Outbound {
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
	}

	switch event.Kind {
	case core.EventMessageNew:
		return outboundEvent(proto.EventMessageNew, eventMessage(event.Message))

	case core.EventTyping:
		name := proto.EventTypingStop
		if event.Typing.Active {
			name = proto.EventTypingStart
		}
		return outboundEvent(name, proto.EventTyping{
			ChatID:   event.Typing.ChatID,
			UserID:   event.Typing.UserID,
			Username: event.Typing.Username,
		})

	case core.EventMessageRead:
		return outboundEvent(proto.EventMessageRead, proto.EventRead{
			ChatID:     event.Read.ChatID,
			UserID:     event.Read.UserID,
			MessageIDs: event.Read.MessageIDs,
		})

	case core.EventUserStatus:
		data := proto.EventStatus{
			UserID: event.Status.UserID,
			Online: event.Status.IsOnline,
		}
		if event.Status.LastSeen != nil {
			ts := event.Status.LastSeen.Unix()
			data.LastSeen = &ts
		}
		return outboundEvent(proto.EventUserStatus, data)

	case core.EventNotification:
		return outboundEvent(proto.EventNotification, proto.EventNotice{
			NoticeType: event.Notice.Type,
			ChatID:     event.Notice.ChatID,
			Message:    eventMessage(event.Notice.Message),
		})

	case core.EventCallIncoming:
		return outboundEvent(proto.EventCallIncoming, eventCall(event.Call))
	case core.EventCallAccepted:
		return outboundEvent(proto.EventCallAccept, eventCall(event.Call))
	case core.EventCallRejected:
		return outboundEvent(proto.EventCallReject, eventCall(event.Call))
	case core.EventCallEnded:
		return outboundEvent(proto.EventCallEnd, eventCall(event.Call))
	case core.EventCallCandidate:
		return outboundEvent(proto.EventCallCandidate, eventCall(event.Call))
	case core.EventCallQuality:
		return outboundEvent(proto.EventCallQuality, eventCall(event.Call))

	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
