package chat

import (
	"encoding/json"
	"time"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/decode"
	"SuperChat/tools/errs"

	"github.com/google/uuid"
)

// FrameType discriminates the JSON envelope.
type FrameType string

const (
	FrameConn    FrameType = "CONN"    // server -> client, connection ack
	FrameAuth    FrameType = "AUTH"    // client -> server token, server -> client ack
	FramePing    FrameType = "PING"    // app-level heartbeat
	FrameSend    FrameType = "SEND"    // client -> server message submit
	FrameDeliver FrameType = "DELIVER" // server -> client fan-out push
	FrameAck     FrameType = "ACK"     // client -> server delivery ack
	FrameSendAck FrameType = "SACK"    // server -> sender, message accepted
	FrameNotice  FrameType = "NOTICE"  // server -> client, e.g. delivery expired
	FrameError   FrameType = "ERR"     // server -> client error report
)

// Frame is the wire envelope on both the push and the ack channel.
type Frame struct {
	Type    FrameType      `json:"type"`
	ConvID  string         `json:"conv_id,omitempty"`
	Seq     int64          `json:"seq,omitempty"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to,omitempty"`
	ConnID  string         `json:"conn_id,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
	Ts      int64          `json:"ts,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func nowMilli() int64 { return time.Now().UnixMilli() }

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errs.WrapMsg(err, "unmarshal frame")
	}
	if f.Type == "" {
		return nil, errs.ErrArgs.WrapMsg("frame type missing")
	}
	return f, nil
}

func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// ---- typed payloads ----

type AuthPayload struct {
	Token string `json:"token"`
}

type SendPayload struct {
	ClientMsgID string `json:"client_msg_id"`
	Content     string `json:"content"`
	ContentType int32  `json:"content_type"`
}

type AckPayload struct {
	ServerMsgID string `json:"server_msg_id"`
}

func ExtractAuthPayload(f *Frame) (*AuthPayload, error) {
	return decode.DecodeMap[AuthPayload](f.Payload)
}

func ExtractSendPayload(f *Frame) (*SendPayload, error) {
	return decode.DecodeMap[SendPayload](f.Payload)
}

func ExtractAckPayload(f *Frame) (*AckPayload, error) {
	return decode.DecodeMap[AckPayload](f.Payload)
}

// ---- server-built frames ----

func BuildConnAck(connID, gatewayID string) *Frame {
	return &Frame{
		Type:    FrameConn,
		ConnID:  connID,
		TraceID: uuid.NewString(),
		Ts:      time.Now().UnixMilli(),
		Payload: map[string]any{"gateway_id": gatewayID},
	}
}

func BuildAuthAck(connID, userID string, pingInterval, pongTimeout time.Duration) *Frame {
	return &Frame{
		Type:    FrameAuth,
		To:      userID,
		ConnID:  connID,
		TraceID: uuid.NewString(),
		Ts:      time.Now().UnixMilli(),
		Payload: map[string]any{
			"ok":               true,
			"user_id":          userID,
			"ping_interval_ms": pingInterval.Milliseconds(),
			"pong_timeout_ms":  pongTimeout.Milliseconds(),
		},
	}
}

// BuildDeliver wraps a persisted message for the push channel. The envelope
// carries the semantic contract fields: conversation, sequence, sender,
// payload and timestamp.
func BuildDeliver(msg *chatmodel.MessageModel, to string) *Frame {
	return &Frame{
		Type:    FrameDeliver,
		ConvID:  msg.ConversationID,
		Seq:     msg.Seq,
		From:    msg.SenderID,
		To:      to,
		TraceID: uuid.NewString(),
		Ts:      msg.CreateTime,
		Payload: map[string]any{
			"server_msg_id": msg.ServerMsgID,
			"client_msg_id": msg.ClientMsgID,
			"content":       msg.Content,
			"content_type":  msg.ContentType,
		},
	}
}

func BuildSendAck(req *Frame, msg *chatmodel.MessageModel) *Frame {
	return &Frame{
		Type:    FrameSendAck,
		ConvID:  msg.ConversationID,
		Seq:     msg.Seq,
		To:      msg.SenderID,
		ConnID:  req.ConnID,
		TraceID: req.TraceID,
		Ts:      time.Now().UnixMilli(),
		Payload: map[string]any{
			"server_msg_id": msg.ServerMsgID,
			"client_msg_id": msg.ClientMsgID,
		},
	}
}

func BuildExpiredNotice(to, serverMsgID string) *Frame {
	return &Frame{
		Type:    FrameNotice,
		To:      to,
		TraceID: uuid.NewString(),
		Ts:      time.Now().UnixMilli(),
		Payload: map[string]any{
			"reason":        "delivery_expired",
			"server_msg_id": serverMsgID,
		},
	}
}

func BuildError(req *Frame, err error) *Frame {
	code := errs.Code(err)
	return &Frame{
		Type:    FrameError,
		ConnID:  req.ConnID,
		TraceID: req.TraceID,
		Ts:      time.Now().UnixMilli(),
		Payload: map[string]any{
			"code": code,
			"msg":  err.Error(),
		},
	}
}

func BuildPong(connID string) *Frame {
	return &Frame{
		Type:   FramePing,
		ConnID: connID,
		Ts:     time.Now().UnixMilli(),
	}
}
