// Package codec converts argument and result values to and from the opaque
// blobs carried in a frame.
//
// The link never looks inside a blob: a []byte value is sent verbatim and
// everything else goes through the Codec configured on the link.
package codec

import (
	"fmt"
)

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeGob  CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Gob
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeGob {
		return &GobCodec{}
	}

	return &JSONCodec{}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeGob:
		return "gob"
	}
	return "unknown"
}

// ByName returns the codec called name ("json" or "gob").
func ByName(name string) (Codec, error) {
	for _, t := range []CodecType{CodecTypeJSON, CodecTypeGob} {
		if t.String() == name {
			return GetCodec(t), nil
		}
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
