package protocol

import "fmt"

// ErrorCode is the 16-bit code carried in place of the length field of an error frame.
type ErrorCode uint16

const (
	NoError        ErrorCode = 0
	NoInterpreter  ErrorCode = 1
	InvalidPayload ErrorCode = 2
)

// ErrorCodeSize is the wire size of an ErrorCode.
const ErrorCodeSize = 2

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "NO_ERROR"
	case NoInterpreter:
		return "NO_INTERPRETER"
	case InvalidPayload:
		return "INVALID_PAYLOAD"
	default:
		return fmt.Sprintf("ERROR_0x%04X", uint16(c))
	}
}

// Known reports whether c is one of the codes defined by the protocol.
func (c ErrorCode) Known() bool {
	return c <= InvalidPayload
}

// RemoteError is returned to callers that decode an error frame sent by a peer.
type RemoteError struct {
	Code ErrorCode
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("protocol: remote error %s (%d)", e.Code, uint16(e.Code))
}
