package gateway

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type schemaRegistry struct {
	once    sync.Once
	initErr error
	request *jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		compiled, err := jsonschema.CompileString("gateway_request", requestFrameSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.request = compiled
	})
	return schemas.initErr
}

// validateRequestFrame checks that a raw request frame matches the
// envelope shape before it's unmarshalled into inFrame. Resource- and
// action-specific argument shapes are validated by each handler itself,
// since the argument set varies per (resource, action) pair.
func validateRequestFrame(raw []byte) error {
	if err := initSchemas(); err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schemas.request.Validate(payload)
}

const requestFrameSchema = `{
  "type": "object",
  "required": ["type", "id", "resource", "payload"],
  "properties": {
    "type": { "const": "request" },
    "id": { "type": "string", "minLength": 1 },
    "resource": { "type": "string", "minLength": 1 },
    "payload": {
      "type": "object",
      "required": ["action"],
      "properties": {
        "action": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`
