package simproc

import "encoding/json"

// ParseJSONOrRaw returns stdout as structured JSON when it parses, and
// otherwise wraps the text as {"raw": s}. Simulators that emit non-JSON
// diagnostics still hand partial information back to the caller.
func ParseJSONOrRaw(stdout string) json.RawMessage {
	trimmed := []byte(stdout)
	if json.Valid(trimmed) && len(stdout) > 0 {
		return json.RawMessage(append([]byte(nil), trimmed...))
	}
	wrapped, err := json.Marshal(map[string]string{"raw": stdout})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return wrapped
}
