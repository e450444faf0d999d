package protocol

import "encoding/json"

// connected (server -> client)
type ConnectedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	ConnID  string `json:"connId,omitempty"`
}

// state (server -> client)
type StateMsg struct {
	Type string    `json:"type"`
	Data *Snapshot `json:"data"`
}

type AckMsg struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func NewConnected(message, connID string) ConnectedMsg {
	return ConnectedMsg{Type: TypeConnected, Message: message, ConnID: connID}
}

func NewState(s *Snapshot) StateMsg { return StateMsg{Type: TypeState, Data: s} }

func NewAck() AckMsg { return AckMsg{Type: TypeAck, Success: true} }

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: message, Code: code}
}

// Command is the client -> server envelope. Type carries the command kind;
// every other field is optional on the wire and checked per kind.
type Command struct {
	Type        string  `json:"type"`
	X           *int    `json:"x,omitempty"`
	Z           *int    `json:"z,omitempty"`
	NpcIndex    *int    `json:"npcIndex,omitempty"`
	LocID       *int    `json:"locId,omitempty"`
	ItemID      *int    `json:"itemId,omitempty"`
	OptionIndex *int    `json:"optionIndex,omitempty"`
	Slot        *int    `json:"slot,omitempty"`
	Amount      *int    `json:"amount,omitempty"`
	ComponentID *int    `json:"componentId,omitempty"`
	KeyCode     *int    `json:"keyCode,omitempty"`
	Text        *string `json:"text,omitempty"`
}

// Command kinds.
const (
	KindWalkTo           = "walkTo"
	KindInteractNpc      = "interactNpc"
	KindTalkToNpc        = "talkToNpc"
	KindInteractLoc      = "interactLoc"
	KindUseInventoryItem = "useInventoryItem"
	KindDropItem         = "dropItem"
	KindPickupItem       = "pickupItem"
	KindClickDialog      = "clickDialog"
	KindContinueDialog   = "continueDialog"
	KindClickComponent   = "clickComponent"
	KindSendKey          = "sendKey"
	KindTypeText         = "typeText"
	KindBankDeposit      = "bankDeposit"
	KindBankDepositAll   = "bankDepositAll"
	KindClimbUp          = "climbUp"
	KindClimbDown        = "climbDown"
	KindOpenDoor         = "openDoor"
)

// DecodeCommand validates raw against the command envelope schema and decodes it.
func DecodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := ValidateCommand(raw); err != nil {
		return cmd, err
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// Int is a small helper for building commands in code.
func Int(v int) *int { return &v }

func String(v string) *string { return &v }
