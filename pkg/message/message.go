// Package message defines the data exchanged by transports: the Message
// value, the pipeline Direction and the Result returned by middleware.
package message

import (
	"errors"
	"strings"

	"github.com/Goden-Gun/transport-core/pkg/codes"
)

// TypeError is the discriminator of synthetic messages produced when a
// channel binding cannot decode an inbound frame.
const TypeError = "error"

// Message is the unit exchanged in either direction. Payload is opaque to the
// transport core and only interpreted by middleware and consumers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// New builds a message.
func New(typ string, payload any) Message {
	return Message{Type: typ, Payload: payload}
}

// Validate reports whether msg carries a usable discriminator.
func Validate(msg Message) error {
	if strings.TrimSpace(msg.Type) == "" {
		return errors.New("message type is required")
	}
	return nil
}

// ErrorPayload is carried by error-typed messages.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int32  `json:"code,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// NewError builds an error-typed message from a structured code. err, when
// non-nil, is kept as the detail.
func NewError(code codes.ErrorCode, err error) Message {
	p := ErrorPayload{
		Message: code.Message,
		Code:    code.Numeric,
		Symbol:  code.Symbol,
	}
	if err != nil {
		p.Detail = err.Error()
	}
	return Message{Type: TypeError, Payload: p}
}

// IsError reports whether msg is an error-typed message.
func IsError(msg Message) bool {
	return msg.Type == TypeError
}
