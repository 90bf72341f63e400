package codes

// ErrorCode represents structured transport errors surfaced as error messages.
type ErrorCode struct {
	Numeric int32
	Symbol  string
	Message string
}

var (
	// ErrDecodeFailed indicates an inbound frame could not be parsed.
	ErrDecodeFailed = ErrorCode{Numeric: 41001, Symbol: "DECODE_FAILED", Message: "Failed to parse message"}
	// ErrMissingType indicates an inbound frame without a message type.
	ErrMissingType = ErrorCode{Numeric: 41002, Symbol: "MISSING_TYPE", Message: "Failed to parse message"}
	// ErrUnauthorized indicates channel token verification failure.
	ErrUnauthorized = ErrorCode{Numeric: 40101, Symbol: "TOKEN_INVALID", Message: "authentication failed"}
)

// Registry exposes a static list for validation or docs.
var Registry = []ErrorCode{
	ErrDecodeFailed,
	ErrMissingType,
	ErrUnauthorized,
}

// Lookup finds a registered code by symbol.
func Lookup(symbol string) (ErrorCode, bool) {
	for _, c := range Registry {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return ErrorCode{}, false
}
