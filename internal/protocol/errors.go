package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrMissingField    = "E_MISSING_FIELD"

	// Resolution layer. These never reach the wire; they tag audit rows and logs.
	ErrUnknownKind   = "E_UNKNOWN_KIND"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrUnavailable   = "E_UNAVAILABLE"
	ErrBadOption     = "E_BAD_OPTION"

	ErrBusy     = "E_BUSY"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrMissingField:    {},
	ErrUnknownKind:     {},
	ErrInvalidTarget:   {},
	ErrUnavailable:     {},
	ErrBadOption:       {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
