package jsonpatch

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	json "github.com/goccy/go-json"

	"pension-calculation-engine/internal/model"
)

type document struct {
	Situation model.Situation `json:"situation"`
}

// Apply replays patch against the serialized form of sit and decodes the
// result. It is the inverse check of Diff: Apply(prev, Diff(prev, curr))
// serializes identically to curr.
func Apply(sit model.Situation, patch model.Patch) (model.Situation, error) {
	doc, err := json.Marshal(document{Situation: sit})
	if err != nil {
		return model.Situation{}, fmt.Errorf("encode situation: %w", err)
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return model.Situation{}, fmt.Errorf("encode patch: %w", err)
	}

	decoded, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return model.Situation{}, fmt.Errorf("decode patch: %w", err)
	}
	patched, err := decoded.Apply(doc)
	if err != nil {
		return model.Situation{}, fmt.Errorf("apply patch: %w", err)
	}

	var out document
	if err := json.Unmarshal(patched, &out); err != nil {
		return model.Situation{}, fmt.Errorf("decode situation: %w", err)
	}
	return out.Situation, nil
}
