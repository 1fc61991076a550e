package federation

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	// maxBlockIDLen bounds BlockEvent.BlockID accepted from peers.
	maxBlockIDLen = 128
	// maxTemplateBlobSize bounds the template blob accepted from peers as
	// it arrives, before any decompression (a found-block announcement's
	// hex blob, well under a CryptoNote block's practical size). The zstd
	// decoder in compress.go separately caps its memory use at 1 MiB.
	maxTemplateBlobSize = 128 * 1024
)

const (
	// ProtocolVersion is the current federation gossip protocol version.
	ProtocolVersion = "1.0.0"

	// EventTopicName is the GossipSub topic both message types are
	// published on; they are distinguished by their Type field.
	EventTopicName = "/cnpool/federation/" + ProtocolVersion
)

// MessageType identifies the type of a gossiped federation event.
type MessageType uint8

const (
	MsgTypeTipAnnounce MessageType = 1
	MsgTypeBlockEvent  MessageType = 2
)

// envelope is decoded first to dispatch on Type before committing to a
// concrete message shape.
type envelope struct {
	Type MessageType `cbor:"1,keyasint"`
}

// TipAnnounce announces the height and previous-block hash of the
// template a TemplateRefresher just installed.
type TipAnnounce struct {
	Type     MessageType `cbor:"1,keyasint"`
	Height   int64       `cbor:"2,keyasint"`
	PrevHash string      `cbor:"3,keyasint"`
}

// BlockEvent announces a FoundBlock status transition. TemplateBlob is
// populated, zstd-compressed, only when Status reports a newly submitted
// candidate block; it is empty for maturation/orphan transitions.
type BlockEvent struct {
	Type         MessageType `cbor:"1,keyasint"`
	BlockID      string      `cbor:"2,keyasint"`
	Status       string      `cbor:"3,keyasint"`
	Depth        int64       `cbor:"4,keyasint"`
	TemplateBlob []byte      `cbor:"5,keyasint"`
}

// Encode serializes a federation message to CBOR.
func Encode(msg interface{}) ([]byte, error) {
	return cbor.Marshal(msg)
}

// decodeType peeks at the Type discriminator without committing to a
// concrete message shape.
func decodeType(data []byte) (MessageType, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return 0, err
	}
	return env.Type, nil
}

// DecodeTipAnnounce decodes a CBOR-encoded TipAnnounce.
func DecodeTipAnnounce(data []byte) (*TipAnnounce, error) {
	var msg TipAnnounce
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeBlockEvent decodes a CBOR-encoded BlockEvent.
func DecodeBlockEvent(data []byte) (*BlockEvent, error) {
	var msg BlockEvent
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if len(msg.BlockID) > maxBlockIDLen {
		return nil, fmt.Errorf("block id too long: %d bytes", len(msg.BlockID))
	}
	if len(msg.TemplateBlob) > maxTemplateBlobSize {
		return nil, fmt.Errorf("template blob too large: %d bytes", len(msg.TemplateBlob))
	}
	return &msg, nil
}
