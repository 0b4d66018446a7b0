// pattern: Functional Core

package relay

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrContextNotObject is returned when an evaluation context is not a
// JSON object.
var ErrContextNotObject = errors.New("evaluation context must be a JSON object")

// Envelope is the request body of the evaluate endpoint.
type Envelope struct {
	Context json.RawMessage `json:"context"`
	Model   string          `json:"model"`
}

// BuildEnvelope embeds the model text and a JSON object context.
func BuildEnvelope(model, context []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(context)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrContextNotObject
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, ErrContextNotObject
	}

	return json.Marshal(Envelope{Context: compact.Bytes(), Model: string(model)})
}
