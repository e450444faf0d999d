package protocol

import "github.com/invopop/jsonschema"

// Schemas reflects the wire envelopes into JSON schemas for client authors.
// Keys are file names.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	out := map[string]*jsonschema.Schema{}

	add := func(name, title string, v any) {
		s := reflector.Reflect(v)
		s.Title = title
		out[name] = s
	}
	add("connected.schema.json", "connected envelope", new(ConnectedMsg))
	add("state.schema.json", "state envelope", new(StateMsg))
	add("ack.schema.json", "ack envelope", new(AckMsg))
	add("error.schema.json", "error envelope", new(ErrorMsg))
	add("command.schema.json", "command envelope", new(Command))
	return out
}
