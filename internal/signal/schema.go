package signal

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaText string
)

// SchemaText returns the JSON Schema of Extract as indented JSON. It is
// embedded verbatim in the Analyze prompt.
func SchemaText() string {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema := reflector.Reflect(&Extract{})
		schema.Version = ""
		schema.ID = ""
		b, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			// Reflection of a fixed struct cannot fail at runtime.
			panic("signal: marshal schema: " + err.Error())
		}
		schemaText = string(b)
	})
	return schemaText
}
