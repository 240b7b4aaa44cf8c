package decode

import (
	"encoding/json"
	"testing"
)

type samplePayload struct {
	ClientMsgID string   `json:"client_msg_id"`
	ContentType int32    `json:"content_type"`
	Seq         int64    `json:"seq"`
	Tags        []string `json:"tags"`
}

func TestDecodeMapFromUnmarshaledJSON(t *testing.T) {
	var m map[string]any
	raw := `{"client_msg_id":"cli-1","content_type":3,"seq":42,"tags":["a","b"]}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p, err := DecodeMap[samplePayload](m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// numbers come out of encoding/json as float64 and must land in ints
	if p.ClientMsgID != "cli-1" || p.ContentType != 3 || p.Seq != 42 {
		t.Fatalf("decoded: %+v", p)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "a" {
		t.Fatalf("tags: %v", p.Tags)
	}
}

func TestDecodeMapAnySliceToStrings(t *testing.T) {
	m := map[string]any{"tags": []any{"x", "y"}}
	p, err := DecodeMap[samplePayload](m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p.Tags) != 2 || p.Tags[1] != "y" {
		t.Fatalf("tags: %v", p.Tags)
	}
}

func TestDecodeMapWeakTyping(t *testing.T) {
	m := map[string]any{"seq": "17"}
	p, err := DecodeMap[samplePayload](m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Seq != 17 {
		t.Fatalf("seq: %d", p.Seq)
	}
}

func TestDecodeMapNil(t *testing.T) {
	if _, err := DecodeMap[samplePayload](nil); err == nil {
		t.Fatal("nil payload accepted")
	}
}

func TestDecodeMapIgnoresUnknownKeys(t *testing.T) {
	m := map[string]any{"client_msg_id": "cli-2", "future_field": true}
	p, err := DecodeMap[samplePayload](m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ClientMsgID != "cli-2" {
		t.Fatalf("decoded: %+v", p)
	}
}
