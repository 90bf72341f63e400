// Package middleware provides stock pipeline stages: the JSON wire codec,
// type filters and the logging, tracing and metrics observers.
package middleware

import (
	"encoding/json"

	"github.com/Goden-Gun/transport-core/pkg/message"
)

// JSON encodes payloads to JSON text on the way out and decodes them on the
// way in. Malformed inbound JSON is vetoed. Inbound payloads that are not
// text (for example a binding's synthetic error payload) pass unchanged.
func JSON() message.Middleware {
	return func(msg message.Message, dir message.Direction) message.Result {
		if dir == message.Outbound {
			data, err := json.Marshal(msg.Payload)
			if err != nil {
				return message.Drop()
			}
			return message.Pass(message.New(msg.Type, string(data)))
		}

		var raw []byte
		switch p := msg.Payload.(type) {
		case string:
			raw = []byte(p)
		case []byte:
			raw = p
		case json.RawMessage:
			raw = p
		default:
			return message.Pass(msg)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return message.Drop()
		}
		return message.Pass(message.New(msg.Type, v))
	}
}
