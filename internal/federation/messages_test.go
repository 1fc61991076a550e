package federation

import "testing"

func TestTipAnnounceRoundTrip(t *testing.T) {
	msg := &TipAnnounce{Height: 12345, PrevHash: "deadbeef"}
	msg.Type = MsgTypeTipAnnounce

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	typ, err := decodeType(data)
	if err != nil {
		t.Fatalf("decodeType: %v", err)
	}
	if typ != MsgTypeTipAnnounce {
		t.Fatalf("type = %d, want MsgTypeTipAnnounce", typ)
	}

	got, err := DecodeTipAnnounce(data)
	if err != nil {
		t.Fatalf("DecodeTipAnnounce: %v", err)
	}
	if got.Height != msg.Height || got.PrevHash != msg.PrevHash {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestBlockEventRoundTrip(t *testing.T) {
	msg := &BlockEvent{BlockID: "abc123", Status: "unlocked", Depth: 60}
	msg.Type = MsgTypeBlockEvent

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := DecodeBlockEvent(data)
	if err != nil {
		t.Fatalf("DecodeBlockEvent: %v", err)
	}
	if got.BlockID != msg.BlockID || got.Status != msg.Status || got.Depth != msg.Depth {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestDecodeBlockEvent_RejectsOversizedBlockID(t *testing.T) {
	oversized := make([]byte, maxBlockIDLen+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	msg := &BlockEvent{BlockID: string(oversized)}
	msg.Type = MsgTypeBlockEvent

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := DecodeBlockEvent(data); err == nil {
		t.Error("expected an error decoding an oversized block id")
	}
}

func TestDecodeEvent_DispatchesOnType(t *testing.T) {
	tip := &TipAnnounce{Height: 1, PrevHash: "x"}
	tip.Type = MsgTypeTipAnnounce
	tipData, _ := Encode(tip)

	event, err := decodeEvent(tipData)
	if err != nil {
		t.Fatalf("decodeEvent(tip): %v", err)
	}
	if event.Tip == nil || event.Block != nil {
		t.Errorf("expected a Tip-only event, got %+v", event)
	}

	block := &BlockEvent{BlockID: "abc", Status: "pending"}
	block.Type = MsgTypeBlockEvent
	blockData, _ := Encode(block)

	event, err = decodeEvent(blockData)
	if err != nil {
		t.Fatalf("decodeEvent(block): %v", err)
	}
	if event.Block == nil || event.Tip != nil {
		t.Errorf("expected a Block-only event, got %+v", event)
	}
}

func TestDecodeEvent_RejectsUnknownType(t *testing.T) {
	data, err := Encode(&envelope{Type: 99})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := decodeEvent(data); err == nil {
		t.Error("expected an error for an unknown message type")
	}
}
