package relay

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestBuildEnvelope(t *testing.T) {
	model := []byte(`<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/">` + "\n\t</definitions>")

	body, err := BuildEnvelope(model, []byte(` {"n": 1, "m": 2} `))
	if err != nil {
		t.Fatalf("BuildEnvelope() error = %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if env.Model != string(model) {
		t.Errorf("Model = %q, want %q", env.Model, model)
	}
	if string(env.Context) != `{"n":1,"m":2}` {
		t.Errorf("Context = %s", env.Context)
	}
}

func TestBuildEnvelope_RejectsNonObjects(t *testing.T) {
	for _, ctx := range []string{"", "null", "[]", `"s"`, "42", "{broken"} {
		if _, err := BuildEnvelope([]byte("<x/>"), []byte(ctx)); !errors.Is(err, ErrContextNotObject) {
			t.Errorf("BuildEnvelope(ctx=%q) error = %v, want ErrContextNotObject", ctx, err)
		}
	}
}
