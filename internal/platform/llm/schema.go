package llm

import "github.com/invopop/jsonschema"

// SchemaFor reflects a strict JSON schema for structured outputs.
func SchemaFor[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}
