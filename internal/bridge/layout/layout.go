// Package layout is the table of well-known UI component addresses the
// bridge polls and clicks. It is data so a client layout change only needs a
// config edit.
package layout

import (
	"fmt"

	"github.com/pixil98/go-errors"

	"simbridge.ai/internal/sim"
)

type DialogKind string

const (
	// DialogOptions reads the children of the component as selectable options.
	DialogOptions DialogKind = "options"
	// DialogText reads the component text; the dialog waits for a continue.
	DialogText DialogKind = "text"
)

type DialogProbe struct {
	Address sim.Address `yaml:"address"`
	Kind    DialogKind  `yaml:"kind"`
}

type Layout struct {
	// DialogProbes are polled in order; the first visible one describes the dialog.
	DialogProbes []DialogProbe `yaml:"dialog_probes"`
	// Continue lists the components clicked by continueDialog, in order.
	Continue []sim.Address `yaml:"continue"`

	Inventory     sim.Address `yaml:"inventory"`
	BankInventory sim.Address `yaml:"bank_inventory"`
	DepositAll    sim.Address `yaml:"deposit_all"`
	Shop          sim.Address `yaml:"shop"`
	Bank          sim.Address `yaml:"bank"`

	// DropOption and DepositOptions are the widget op indices used when the
	// item's own action table does not say otherwise.
	DropOption     int            `yaml:"drop_option"`
	DepositOptions DepositOptions `yaml:"deposit_options"`
}

type DepositOptions struct {
	One  int `yaml:"one"`
	Five int `yaml:"five"`
	Ten  int `yaml:"ten"`
	All  int `yaml:"all"`
}

// Default returns the layout of the stock client.
func Default() Layout {
	return Layout{
		DialogProbes: []DialogProbe{
			{Address: sim.Address{Group: 219, Child: 1}, Kind: DialogOptions},
			{Address: sim.Address{Group: 229, Child: 1}, Kind: DialogText},
		},
		Continue: []sim.Address{
			{Group: 229, Child: 2},
			{Group: 217, Child: 0},
			{Group: 193, Child: 0},
			{Group: 233, Child: 3},
		},
		Inventory:     sim.Address{Group: 149, Child: 0},
		BankInventory: sim.Address{Group: 12, Child: 13},
		DepositAll:    sim.Address{Group: 12, Child: 42},
		Shop:          sim.Address{Group: 300, Child: 0},
		Bank:          sim.Address{Group: 12, Child: 0},
		DropOption:    5,
		DepositOptions: DepositOptions{
			One:  2,
			Five: 3,
			Ten:  4,
			All:  8,
		},
	}
}

// DepositOption maps a requested amount to the bank inventory op index.
// Amounts of 28 or more, and -1, deposit everything.
func (l Layout) DepositOption(amount int) int {
	switch {
	case amount >= 28 || amount == -1:
		return l.DepositOptions.All
	case amount >= 10:
		return l.DepositOptions.Ten
	case amount >= 5:
		return l.DepositOptions.Five
	default:
		return l.DepositOptions.One
	}
}

func (l Layout) Validate() error {
	el := errors.NewErrorList()
	if len(l.DialogProbes) == 0 {
		el.Add(fmt.Errorf("dialog_probes must not be empty"))
	}
	for i, p := range l.DialogProbes {
		if p.Kind != DialogOptions && p.Kind != DialogText {
			el.Add(fmt.Errorf("dialog_probes[%d]: unknown kind %q", i, p.Kind))
		}
	}
	if l.DropOption < 1 {
		el.Add(fmt.Errorf("drop_option must be positive"))
	}
	d := l.DepositOptions
	if d.One < 1 || d.Five < 1 || d.Ten < 1 || d.All < 1 {
		el.Add(fmt.Errorf("deposit_options must all be positive"))
	}
	return el.Err()
}
