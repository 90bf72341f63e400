package transport

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/reactive"
)

// TypedMessage is an inbound message whose payload has been narrowed to T.
type TypedMessage[T any] struct {
	Type    string
	Payload T
}

// DecodePayload narrows payload to T. Values already of type T are returned
// as is; maps and slices produced by a wire codec are decoded field by field
// using the `json` struct tags of T.
func DecodePayload[T any](payload any) (T, error) {
	var out T
	if v, ok := payload.(T); ok {
		return v, nil
	}
	if payload == nil {
		return out, fmt.Errorf("payload is nil")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(payload); err != nil {
		return out, fmt.Errorf("decode %T payload: %w", out, err)
	}
	return out, nil
}

// OnTypeOf subscribes fn to inbound messages of type typ whose payload can be
// narrowed to T. Messages that cannot be narrowed are skipped.
func OnTypeOf[T any](t Transport, typ string, fn func(TypedMessage[T])) *reactive.Subscription {
	return t.OnType(typ, func(msg message.Message) {
		payload, err := DecodePayload[T](msg.Payload)
		if err != nil {
			if b, ok := t.(interface{ Logger() *log.Entry }); ok {
				b.Logger().WithError(err).WithField("type", typ).Debug("typed subscriber skipped message")
			}
			return
		}
		fn(TypedMessage[T]{Type: msg.Type, Payload: payload})
	})
}
