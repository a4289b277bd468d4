package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/wasm-hostbridge/errors"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireMessage struct {
	Kind   string `cbor:"kind"`
	JobID  uint32 `cbor:"jobId,omitempty"`
	Code   string `cbor:"code,omitempty"`
	Result string `cbor:"result,omitempty"`
	Text   string `cbor:"text,omitempty"`
}

// Marshal serializes a Message to canonical CBOR.
func Marshal(m Message) ([]byte, error) {
	if m.Kind == KindUnknown {
		return nil, errors.InvalidInput(errors.PhaseProtocol, "cannot marshal message of unknown kind")
	}
	data, err := cborEncMode.Marshal(wireMessage{
		Kind:   m.Kind.String(),
		JobID:  m.JobID,
		Code:   m.Code,
		Result: m.Result,
		Text:   m.Text,
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProtocol, errors.KindInvalidInput, err, "marshal message")
	}
	return data, nil
}

// Unmarshal deserializes a Message. A well-formed frame with an unknown
// kind yields KindUnknown and no error.
func Unmarshal(data []byte) (Message, error) {
	var w wireMessage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Message{}, errors.Wrap(errors.PhaseProtocol, errors.KindInvalidInput, err, "unmarshal message")
	}
	kind := ParseKind(w.Kind)
	if kind == KindUnknown {
		return Message{Kind: KindUnknown}, nil
	}
	return Message{
		Kind:   kind,
		JobID:  w.JobID,
		Code:   w.Code,
		Result: w.Result,
		Text:   w.Text,
	}, nil
}
