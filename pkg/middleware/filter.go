package middleware

import "github.com/Goden-Gun/transport-core/pkg/message"

// AllowTypes vetoes every message whose type is not listed, in both
// directions. Error messages are let through so decode failures stay visible.
func AllowTypes(types ...string) message.Middleware {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(msg message.Message, _ message.Direction) message.Result {
		if _, ok := allowed[msg.Type]; ok || message.IsError(msg) {
			return message.Pass(msg)
		}
		return message.Drop()
	}
}

// RequireType vetoes messages without a discriminator.
func RequireType() message.Middleware {
	return func(msg message.Message, _ message.Direction) message.Result {
		if err := message.Validate(msg); err != nil {
			return message.Drop()
		}
		return message.Pass(msg)
	}
}

// Only applies mw to one direction and passes the other through.
func Only(dir message.Direction, mw message.Middleware) message.Middleware {
	return func(msg message.Message, d message.Direction) message.Result {
		if d != dir {
			return message.Pass(msg)
		}
		return mw(msg, d)
	}
}
