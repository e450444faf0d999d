package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const commandSchemaURL = "mem://simbridge/command.schema.json"

// commandSchema describes the shape of every inbound envelope. Per-kind
// required fields are checked by the interpreter so the error can name them.
const commandSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type":        {"type": "string", "minLength": 1},
    "x":           {"type": "integer"},
    "z":           {"type": "integer"},
    "npcIndex":    {"type": "integer", "minimum": 0},
    "locId":       {"type": "integer"},
    "itemId":      {"type": "integer"},
    "optionIndex": {"type": "integer"},
    "slot":        {"type": "integer", "minimum": 0},
    "amount":      {"type": "integer"},
    "componentId": {"type": "integer", "minimum": 0},
    "keyCode":     {"type": "integer"},
    "text":        {"type": "string"}
  }
}`

var compiledCommandSchema = jsonschema.MustCompileString(commandSchemaURL, commandSchema)

// ValidateCommand checks raw against the inbound envelope schema.
func ValidateCommand(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid json: trailing data")
	}
	if err := compiledCommandSchema.Validate(v); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	return nil
}
