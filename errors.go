package ninep

import "fmt"

// Kind classifies an Error independent of the layer that produced it,
// so that a client caller can branch on Kind without string-matching
// a server's Rerror text.
type Kind int

const (
	KindUnknown Kind = iota
	KindShortBuffer
	KindMalformedMessage
	KindUnknownVersion
	KindUnknownType
	KindUnknownFid
	KindFidInUse
	KindFidExhausted
	KindAuthRequired
	KindAuthFailed
	KindAuthTimeout
	KindBackendError
	KindNotSupported
	KindTimeout
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindShortBuffer:
		return "ShortBuffer"
	case KindMalformedMessage:
		return "MalformedMessage"
	case KindUnknownVersion:
		return "UnknownVersion"
	case KindUnknownType:
		return "UnknownType"
	case KindUnknownFid:
		return "UnknownFid"
	case KindFidInUse:
		return "FidInUse"
	case KindFidExhausted:
		return "FidExhausted"
	case KindAuthRequired:
		return "AuthRequired"
	case KindAuthFailed:
		return "AuthFailed"
	case KindAuthTimeout:
		return "AuthTimeout"
	case KindBackendError:
		return "BackendError"
	case KindNotSupported:
		return "NotSupported"
	case KindTimeout:
		return "Timeout"
	case KindTransportError:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// Error is the error type used throughout ninep. It carries enough
// structure for server to pick the right Rerror string and for client
// callers to branch on Kind, while still satisfying the standard error
// interface so it composes with errors.Is/As and %w.
type Error struct {
	Kind Kind
	Msg  string
	// Err, if set, is the underlying cause (e.g. a transport I/O
	// error); it is not shown to 9P peers, only to local callers.
	Err error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an Error of the given kind with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind, carrying err as its
// cause and err's message as the Rerror text unless msg is provided.
func Wrap(kind Kind, err error, msg string) *Error {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

var (
	ErrUnknownFid       = &Error{Kind: KindUnknownFid, Msg: "unknown fid"}
	ErrFidInUse         = &Error{Kind: KindFidInUse, Msg: "FID already in use"}
	ErrFidExhausted     = &Error{Kind: KindFidExhausted, Msg: "cannot allocate fid"}
	ErrAuthRequired     = &Error{Kind: KindAuthRequired, Msg: "authentication required"}
	ErrAuthNotRequired  = &Error{Kind: KindNotSupported, Msg: "authentication not required"}
	ErrAuthFailed       = &Error{Kind: KindAuthFailed, Msg: "authentication failed"}
	ErrAuthTimeout      = &Error{Kind: KindAuthTimeout, Msg: "authentication challenge expired"}
	ErrWstatNotSupported = &Error{Kind: KindNotSupported, Msg: "wstat not supported"}
	ErrOpNotSupported   = &Error{Kind: KindUnknownType, Msg: "operation not supported"}
	ErrTimeout          = &Error{Kind: KindTimeout, Msg: "request timed out"}
)
