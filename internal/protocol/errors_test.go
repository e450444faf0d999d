package protocol

import (
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestIsKnownCode(t *testing.T) {
	tests := map[string]struct {
		code string
		want bool
	}{
		"empty":       {code: "", want: true},
		"bad request": {code: ErrProtoBadRequest, want: true},
		"missing":     {code: ErrMissingField, want: true},
		"unknown":     {code: ErrUnknownKind, want: true},
		"target":      {code: ErrInvalidTarget, want: true},
		"unavailable": {code: ErrUnavailable, want: true},
		"option":      {code: ErrBadOption, want: true},
		"busy":        {code: ErrBusy, want: true},
		"internal":    {code: ErrInternal, want: true},
		"undefined":   {code: "E_NOT_DEFINED", want: false},
		"lowercase":   {code: "e_busy", want: false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "known", IsKnownCode(tt.code), tt.want)
		})
	}
}

func TestNewError_CarriesCode(t *testing.T) {
	m := NewError(ErrMissingField, "npcIndex")
	testutil.AssertEqual(t, "type", m.Type, TypeError)
	testutil.AssertEqual(t, "code", m.Code, ErrMissingField)
	testutil.AssertEqual(t, "message", m.Message, "npcIndex")
}
