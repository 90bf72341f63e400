package message

// Direction tells a middleware which way a message is travelling.
type Direction int

const (
	// Outbound is the producer to channel direction.
	Outbound Direction = iota
	// Inbound is the channel to subscriber direction.
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "out"
	case Inbound:
		return "in"
	default:
		return "unknown"
	}
}

// Result is the outcome of one middleware stage: either a transformed
// message or a veto. The zero Result is a veto.
type Result struct {
	msg  Message
	pass bool
}

// Pass continues the pipeline with msg.
func Pass(msg Message) Result {
	return Result{msg: msg, pass: true}
}

// Drop vetoes the message; later stages are skipped.
func Drop() Result {
	return Result{}
}

// Message returns the transformed message and whether the stage let it pass.
func (r Result) Message() (Message, bool) {
	return r.msg, r.pass
}

// Dropped reports whether the stage vetoed the message.
func (r Result) Dropped() bool {
	return !r.pass
}

// Middleware transforms or vetoes a message for one direction.
type Middleware func(msg Message, dir Direction) Result
