package chat

import (
	"testing"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"
)

func TestParseFrameRoundTrip(t *testing.T) {
	in := &Frame{
		Type:    FrameSend,
		ConvID:  "c1",
		ConnID:  "sn-1",
		TraceID: "t-1",
		Payload: map[string]any{"client_msg_id": "cli-1", "content": "hi", "content_type": 1},
	}
	raw, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Type != FrameSend || out.ConvID != "c1" || out.TraceID != "t-1" {
		t.Fatalf("round trip mangled frame: %+v", out)
	}

	sp, err := ExtractSendPayload(out)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// JSON numbers arrive as float64 and must still land in the int field
	if sp.ClientMsgID != "cli-1" || sp.Content != "hi" || sp.ContentType != 1 {
		t.Fatalf("payload decode: %+v", sp)
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	if _, err := ParseFrame([]byte("{not json")); err == nil {
		t.Fatal("garbage accepted")
	}
	if _, err := ParseFrame([]byte(`{"conv_id":"c1"}`)); err == nil {
		t.Fatal("frame without type accepted")
	}
}

func TestBuildDeliverCarriesContract(t *testing.T) {
	msg := &chatmodel.MessageModel{
		ConversationID: "c1",
		Seq:            7,
		ServerMsgID:    "srv-7",
		ClientMsgID:    "cli-7",
		SenderID:       "alice",
		ContentType:    chatmodel.ContentTypeText,
		Content:        "hello",
		CreateTime:     1700000000000,
	}
	f := BuildDeliver(msg, "bob")
	if f.Type != FrameDeliver || f.ConvID != "c1" || f.Seq != 7 || f.From != "alice" || f.To != "bob" {
		t.Fatalf("deliver envelope: %+v", f)
	}
	if f.Ts != msg.CreateTime {
		t.Fatalf("deliver ts=%d want message create time %d", f.Ts, msg.CreateTime)
	}
	if f.TraceID == "" {
		t.Fatal("deliver frame without trace id")
	}
	if f.Payload["server_msg_id"] != "srv-7" || f.Payload["content"] != "hello" {
		t.Fatalf("deliver payload: %+v", f.Payload)
	}
}

func TestBuildErrorCarriesCode(t *testing.T) {
	req := &Frame{Type: FrameSend, ConnID: "sn-1", TraceID: "t-9"}
	f := BuildError(req, errs.ErrForbidden.WrapMsg("not a member"))
	if f.Type != FrameError || f.TraceID != "t-9" {
		t.Fatalf("error frame: %+v", f)
	}
	if f.Payload["code"] != errs.ErrForbidden.ECode() {
		t.Fatalf("error code: %v", f.Payload["code"])
	}
}

func TestBuildSendAckEchoesTrace(t *testing.T) {
	req := &Frame{Type: FrameSend, ConnID: "sn-1", TraceID: "t-3"}
	msg := &chatmodel.MessageModel{ConversationID: "c1", Seq: 4, ServerMsgID: "srv-4", ClientMsgID: "cli-4", SenderID: "alice"}
	f := BuildSendAck(req, msg)
	if f.Type != FrameSendAck || f.TraceID != "t-3" || f.Seq != 4 || f.To != "alice" {
		t.Fatalf("sack: %+v", f)
	}
	if f.Payload["server_msg_id"] != "srv-4" || f.Payload["client_msg_id"] != "cli-4" {
		t.Fatalf("sack payload: %+v", f.Payload)
	}
}
