package http

import (
	"encoding/json"

	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeChannelJoin, proto.InboundTypeChannelLeave,
		proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var data proto.ChannelData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChannelID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel_id is required"}, nil
		}
		return &core.Command{
			Kind:      channelCommandKind(inbound.Type),
			ChannelID: data.ChannelID,
		}, nil, nil

	case proto.InboundTypeMessageSend:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChannelID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel_id is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandSendMessage,
			ChannelID: data.ChannelID,
			Content:   data.Content,
			ParentID:  data.ParentID,
			TempID:    data.TempID,
		}, nil, nil

	case proto.InboundTypeMessageEdit:
		var data proto.EditData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.MessageID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandEditMessage,
			MessageID: data.MessageID,
			Content:   data.Content,
		}, nil, nil

	case proto.InboundTypeMessageDelete:
		var data proto.DeleteData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.MessageID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandDeleteMessage,
			MessageID: data.MessageID,
		}, nil, nil

	case proto.InboundTypeMessageRead:
		var data proto.ReadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.ChannelID == 0 || data.MessageID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel_id and message_id are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandMarkRead,
			ChannelID: data.ChannelID,
			MessageID: data.MessageID,
		}, nil, nil

	case proto.InboundTypePresenceRequest:
		var data proto.PresenceRequestData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:       core.CommandPresenceRequest,
			Identities: data.IdentityIDs,
		}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func channelCommandKind(inboundType string) core.CommandKind {
	switch inboundType {
	case proto.InboundTypeChannelJoin:
		return core.CommandJoinChannel
	case proto.InboundTypeChannelLeave:
		return core.CommandLeaveChannel
	case proto.InboundTypeTypingStart:
		return core.CommandTypingStart
	default:
		return core.CommandTypingStop
	}
}

func messagePayload(msg *core.Message, tempID string) proto.MessagePayload {
	p := proto.MessagePayload{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		ParentID:  msg.ParentID,
		TempID:    tempID,
		TS:        msg.CreatedAt.Unix(),
	}
	if msg.EditedAt != nil {
		ts := msg.EditedAt.Unix()
		p.EditedTS = &ts
	}
	return p
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageNew:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageNew,
			Data:  messagePayload(event.Message, event.TempID),
		}
	case core.EventMessageUpdated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageUpdated,
			Data:  messagePayload(event.Message, ""),
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageDeleted,
			Data: proto.MessageDeletedPayload{
				MessageID: event.MessageID,
				ChannelID: event.ChannelID,
			},
		}
	case core.EventTypingUpdate:
		users := event.Typers
		if users == nil {
			users = []int64{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventTypingUpdate,
			Data: proto.TypingPayload{
				ChannelID: event.ChannelID,
				Users:     users,
			},
		}
	case core.EventPresenceUpdate:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresenceUpdate,
			Data: proto.PresencePayload{
				IdentityID: event.Identity,
				Online:     event.Online,
			},
		}
	case core.EventPresenceSnapshot:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresenceSnapshot,
			Data:  proto.PresenceSnapshotPayload{Online: event.Snapshot},
		}
	case core.EventNotification:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNotificationNew,
			Data: proto.NotificationPayload{
				Event: event.Notify,
				Data:  event.Payload,
			},
		}
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
