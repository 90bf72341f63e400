package transport

import "github.com/Goden-Gun/transport-core/pkg/message"

// Use appends mw to the pipeline. Registration order is execution order.
func (b *Base) Use(mw message.Middleware) {
	if mw == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// applyMiddleware folds msg through mws. A veto stops the fold: no later
// stage runs.
func applyMiddleware(mws []message.Middleware, msg message.Message, dir message.Direction) (message.Message, bool) {
	current := msg
	for _, mw := range mws {
		next, ok := mw(current, dir).Message()
		if !ok {
			return message.Message{}, false
		}
		current = next
	}
	return current, true
}

func (b *Base) middlewareSnapshot() []message.Middleware {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.middlewares) == 0 {
		return nil
	}
	out := make([]message.Middleware, len(b.middlewares))
	copy(out, b.middlewares)
	return out
}
