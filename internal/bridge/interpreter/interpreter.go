// Package interpreter turns command envelopes into native interactions.
//
// Interpret only checks the envelope. The returned Deferred resolves its
// target against live state when it runs, which must be on the simulation
// turn.
package interpreter

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/bridge/layout"
	"simbridge.ai/internal/protocol"
	"simbridge.ai/internal/sim"
)

var (
	ErrUnknownKind    = errors.New("unknown command kind")
	ErrTargetNotFound = errors.New("target not found")
	ErrUnavailable    = errors.New("unavailable")
	ErrBadOption      = errors.New("option not available")
)

// FieldError reports a required field missing from an envelope.
type FieldError struct {
	Kind  string
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: missing required field %q", e.Kind, e.Field)
}

// Code maps an interpreter error onto a protocol error code.
func Code(err error) string {
	var fe *FieldError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return protocol.ErrMissingField
	case errors.Is(err, ErrUnknownKind):
		return protocol.ErrUnknownKind
	case errors.Is(err, ErrTargetNotFound):
		return protocol.ErrInvalidTarget
	case errors.Is(err, ErrUnavailable):
		return protocol.ErrUnavailable
	case errors.Is(err, ErrBadOption):
		return protocol.ErrBadOption
	}
	return protocol.ErrInternal
}

type Config struct {
	ClimbRadius int
	DoorRadius  int
}

func DefaultConfig() Config {
	return Config{ClimbRadius: 10, DoorRadius: 5}
}

type Interpreter struct {
	view    sim.View
	invoker sim.Invoker
	layout  layout.Layout
	cfg     Config
	finder  Finder
	log     logrus.FieldLogger
}

type Option func(*Interpreter)

// WithFinder replaces the default ScanFinder.
func WithFinder(f Finder) Option {
	return func(it *Interpreter) { it.finder = f }
}

func New(view sim.View, invoker sim.Invoker, l layout.Layout, cfg Config, log logrus.FieldLogger, opts ...Option) *Interpreter {
	it := &Interpreter{
		view:    view,
		invoker: invoker,
		layout:  l,
		cfg:     cfg,
		finder:  ScanFinder{},
		log:     log.WithField("component", "interpreter"),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Deferred is an accepted command waiting for its turn.
type Deferred struct {
	Kind    string
	Command protocol.Command

	resolve func() (sim.Invocation, error)
}

// Resolve looks the target up in current state and builds the invocation.
func (d *Deferred) Resolve() (sim.Invocation, error) { return d.resolve() }

type resolver func(it *Interpreter, cmd protocol.Command) (sim.Invocation, error)

type kindSpec struct {
	required []string
	resolve  resolver
}

var kinds = map[string]kindSpec{
	protocol.KindWalkTo:           {required: []string{"x", "z"}, resolve: (*Interpreter).walkTo},
	protocol.KindInteractNpc:      {required: []string{"npcIndex"}, resolve: (*Interpreter).interactNpc},
	protocol.KindTalkToNpc:        {required: []string{"npcIndex"}, resolve: (*Interpreter).talkToNpc},
	protocol.KindInteractLoc:      {required: []string{"x", "z", "locId"}, resolve: (*Interpreter).interactLoc},
	protocol.KindUseInventoryItem: {required: []string{"slot"}, resolve: (*Interpreter).useInventoryItem},
	protocol.KindDropItem:         {required: []string{"slot"}, resolve: (*Interpreter).dropItem},
	protocol.KindPickupItem:       {required: []string{"x", "z", "itemId"}, resolve: (*Interpreter).pickupItem},
	protocol.KindClickDialog:      {required: []string{"optionIndex"}, resolve: (*Interpreter).clickDialog},
	protocol.KindContinueDialog:   {resolve: (*Interpreter).continueDialog},
	protocol.KindClickComponent:   {required: []string{"componentId"}, resolve: (*Interpreter).clickComponent},
	protocol.KindSendKey:          {required: []string{"keyCode"}, resolve: (*Interpreter).sendKey},
	protocol.KindTypeText:         {required: []string{"text"}, resolve: (*Interpreter).typeText},
	protocol.KindBankDeposit:      {required: []string{"slot"}, resolve: (*Interpreter).bankDeposit},
	protocol.KindBankDepositAll:   {resolve: (*Interpreter).bankDepositAll},
	protocol.KindClimbUp:          {resolve: (*Interpreter).climbUp},
	protocol.KindClimbDown:        {resolve: (*Interpreter).climbDown},
	protocol.KindOpenDoor:         {resolve: (*Interpreter).openDoor},
}

func present(cmd protocol.Command, field string) bool {
	switch field {
	case "x":
		return cmd.X != nil
	case "z":
		return cmd.Z != nil
	case "npcIndex":
		return cmd.NpcIndex != nil
	case "locId":
		return cmd.LocID != nil
	case "itemId":
		return cmd.ItemID != nil
	case "optionIndex":
		return cmd.OptionIndex != nil
	case "slot":
		return cmd.Slot != nil
	case "amount":
		return cmd.Amount != nil
	case "componentId":
		return cmd.ComponentID != nil
	case "keyCode":
		return cmd.KeyCode != nil
	case "text":
		return cmd.Text != nil
	}
	return false
}

// Interpret checks that cmd names a known kind and carries its required
// fields. It never touches simulation state.
func (it *Interpreter) Interpret(cmd protocol.Command) (*Deferred, error) {
	spec, ok := kinds[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cmd.Type)
	}
	for _, f := range spec.required {
		if !present(cmd, f) {
			return nil, &FieldError{Kind: cmd.Type, Field: f}
		}
	}
	return &Deferred{
		Kind:    cmd.Type,
		Command: cmd,
		resolve: func() (sim.Invocation, error) { return spec.resolve(it, cmd) },
	}, nil
}

// Execute resolves d and invokes the result.
func (it *Interpreter) Execute(d *Deferred) (sim.Invocation, error) {
	inv, err := d.Resolve()
	if err != nil {
		return inv, err
	}
	it.log.WithFields(logrus.Fields{"kind": d.Kind, "invocation": inv.String()}).Debug("invoke")
	if err := it.invoker.Invoke(inv); err != nil {
		return inv, fmt.Errorf("invoke %s: %w", inv.Action, err)
	}
	return inv, nil
}
