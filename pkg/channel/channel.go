// Package channel holds what every concrete binding shares: the JSON frame
// format used on text channels and the decode-or-report delivery step.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Goden-Gun/transport-core/pkg/codes"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
)

// ErrMissingType is returned by Decode for frames without a type.
var ErrMissingType = errors.New("frame has no message type")

// Receiver is the inbound half of the transport contract.
type Receiver interface {
	Receive(msg message.Message)
}

// Encode renders msg as a JSON frame.
func Encode(msg message.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %q frame: %w", msg.Type, err)
	}
	return data, nil
}

// Decode parses a JSON frame.
func Decode(data []byte) (message.Message, error) {
	var msg message.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message.Message{}, err
	}
	if err := message.Validate(msg); err != nil {
		return message.Message{}, ErrMissingType
	}
	return msg, nil
}

// DecodeError builds the error message delivered in place of an unreadable
// frame.
func DecodeError(err error) message.Message {
	if errors.Is(err, ErrMissingType) {
		return message.NewError(codes.ErrMissingType, err)
	}
	return message.NewError(codes.ErrDecodeFailed, err)
}

// Deliver decodes data and hands the message to r. Frames that cannot be
// decoded are reported to r as an error message instead of being dropped.
func Deliver(r Receiver, data []byte, entry *log.Entry) {
	msg, err := Decode(data)
	if err != nil {
		if entry != nil {
			entry.WithError(err).Warn("Failed to parse message")
		}
		r.Receive(DecodeError(err))
		return
	}
	r.Receive(msg)
}
