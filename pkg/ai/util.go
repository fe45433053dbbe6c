package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema reflects a JSON Schema from a Go type for structured
// model output. Additional properties are disallowed and definitions are
// inlined so the schema works with strict response formats.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return reflector.Reflect(reflect.New(t).Interface())
}

// UnmarshalFlexible parses model-produced JSON into out, tolerating the
// usual failure shapes: a direct unmarshal is tried first, then the
// double-encoded case (the whole object wrapped in a JSON string), and
// finally a repair pass over malformed output before giving up.
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var wrapped string
	if err := json.Unmarshal([]byte(input), &wrapped); err == nil {
		wrapped = strings.TrimSpace(wrapped)
		if err := json.Unmarshal([]byte(wrapped), out); err == nil {
			return nil
		}
		input = wrapped
	}

	repaired, err := jsonrepair.JSONRepair(trimDoubledBrace(input))
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: input=%s repaired=%s", input, repaired)
	}
	return nil
}

// trimDoubledBrace drops a stuttered opening brace, a failure mode seen
// in streaming model output ("{{\"name\": ...").
func trimDoubledBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}
