package stream

import (
	"bytes"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// codec encodes replies in the same framing the client used for its request:
// text frames carry JSON, binary frames carry MessagePack.
type codec struct {
	messageType int
	marshal     func(v any) ([]byte, error)
	unmarshal   func(data []byte, v any) error
}

var (
	jsonCodec = codec{
		messageType: websocket.TextMessage,
		marshal:     json.Marshal,
		unmarshal:   json.Unmarshal,
	}
	msgpackCodec = codec{
		messageType: websocket.BinaryMessage,
		marshal:     marshalMsgpack,
		unmarshal:   unmarshalMsgpack,
	}
)

func codecFor(messageType int) codec {
	if messageType == websocket.BinaryMessage {
		return msgpackCodec
	}
	return jsonCodec
}

// MessagePack payloads share the JSON field names.
func marshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalMsgpack(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
