package shim

import (
	"sync"

	"github.com/ugorji/go/codec"
)

// resolver holds a shared JSON encoder and decoder.
type resolver struct {
	jsonEncoder *codec.Encoder
	jsonDecoder *codec.Decoder
	jsonHandle  codec.JsonHandle

	jsonData []byte

	jsonMu sync.Mutex
}

var gencoder resolver

func init() {
	gencoder.jsonHandle = codec.JsonHandle{}
	gencoder.jsonHandle.TypeInfos = codec.NewTypeInfos([]string{"json"})
	gencoder.jsonEncoder = codec.NewEncoderBytes(&gencoder.jsonData, &gencoder.jsonHandle)
	gencoder.jsonDecoder = codec.NewDecoderBytes(gencoder.jsonData, &gencoder.jsonHandle)

	gencoder.jsonData = make([]byte, 0, 8192)
}

// marshalJSON marshals a value of a specific type to UTF-8 bytes.
func marshalJSON[T any](v T) ([]byte, error) {
	gencoder.jsonMu.Lock()
	defer gencoder.jsonMu.Unlock()

	gencoder.jsonEncoder.ResetBytes(&gencoder.jsonData)
	if err := gencoder.jsonEncoder.Encode(v); err != nil {
		return nil, err
	}

	return gencoder.jsonData, nil
}

// unmarshalJSON unmarshals the provided JSON bytes to the value of a
// specific type.
func unmarshalJSON[T any](data []byte, marshalTo T) error {
	gencoder.jsonMu.Lock()
	defer gencoder.jsonMu.Unlock()

	gencoder.jsonDecoder.ResetBytes(data)

	return gencoder.jsonDecoder.Decode(marshalTo)
}
