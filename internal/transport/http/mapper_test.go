package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/proto"
)

func TestInboundToCommandJoin(t *testing.T) {
	data, _ := json.Marshal(proto.ChannelData{ChannelID: 7})
	cmd, protoErr, err := inboundToCommand(proto.Inbound{Type: proto.InboundTypeChannelJoin, Data: data})
	if err != nil || protoErr != nil {
		t.Fatalf("unexpected error: %v %v", err, protoErr)
	}
	if cmd.Kind != core.CommandJoinChannel || cmd.ChannelID != 7 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestInboundToCommandRejectsZeroChannel(t *testing.T) {
	data, _ := json.Marshal(proto.ChannelData{})
	for _, msgType := range []string{
		proto.InboundTypeChannelJoin,
		proto.InboundTypeChannelLeave,
		proto.InboundTypeTypingStart,
		proto.InboundTypeTypingStop,
	} {
		cmd, protoErr, err := inboundToCommand(proto.Inbound{Type: msgType, Data: data})
		if err != nil || cmd != nil {
			t.Fatalf("%s: expected protocol error, got cmd=%+v err=%v", msgType, cmd, err)
		}
		if protoErr == nil || protoErr.Code != core.ErrCodeBadRequest {
			t.Fatalf("%s: unexpected protocol error: %+v", msgType, protoErr)
		}
	}
}

func TestInboundToCommandSend(t *testing.T) {
	parent := int64(3)
	data, _ := json.Marshal(proto.SendData{ChannelID: 7, Content: "hi", ParentID: &parent, TempID: "t1"})
	cmd, protoErr, err := inboundToCommand(proto.Inbound{Type: proto.InboundTypeMessageSend, Data: data})
	if err != nil || protoErr != nil {
		t.Fatalf("unexpected error: %v %v", err, protoErr)
	}
	if cmd.Kind != core.CommandSendMessage || cmd.Content != "hi" || cmd.TempID != "t1" || *cmd.ParentID != 3 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestInboundToCommandMalformedData(t *testing.T) {
	_, _, err := inboundToCommand(proto.Inbound{Type: proto.InboundTypeMessageSend, Data: json.RawMessage(`{`)})
	if err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestInboundToCommandUnknownType(t *testing.T) {
	cmd, protoErr, err := inboundToCommand(proto.Inbound{Type: "nope"})
	if err != nil || cmd != nil {
		t.Fatalf("expected protocol error, got cmd=%+v err=%v", cmd, err)
	}
	if protoErr == nil || protoErr.Code != "invalid_message" {
		t.Fatalf("unexpected protocol error: %+v", protoErr)
	}
}

func TestOutboundFromMessageEvent(t *testing.T) {
	edited := time.Unix(2000, 0)
	out := outboundFromEvent(&core.Event{
		Kind:      core.EventMessageNew,
		ChannelID: 7,
		TempID:    "t1",
		Message: &core.Message{
			ID:        42,
			ChannelID: 7,
			AuthorID:  1,
			Content:   "hi",
			CreatedAt: time.Unix(1000, 0),
			EditedAt:  &edited,
		},
	})
	if out.Type != proto.OutboundTypeEvent || out.Event != proto.EventMessageNew {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	payload, ok := out.Data.(proto.MessagePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", out.Data)
	}
	if payload.ID != 42 || payload.TempID != "t1" || payload.TS != 1000 || *payload.EditedTS != 2000 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestOutboundTypingNeverNil(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventTypingUpdate, ChannelID: 7})
	payload, ok := out.Data.(proto.TypingPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", out.Data)
	}
	if payload.Users == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}

func TestOutboundErrorEvent(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: core.ErrCodeForbidden, Message: "nope"}})
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != core.ErrCodeForbidden {
		t.Fatalf("unexpected envelope: %+v", out)
	}
}
