package command

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lambda-feedback/agenthost/util"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed command.schema.json
var commandSchema json.RawMessage
var commandSchemaLoader = gojsonschema.NewBytesLoader(commandSchema)

var schema = util.Must(gojsonschema.NewSchema(commandSchemaLoader))

// Parse validates raw against the command schema and decodes it.
func Parse(raw json.RawMessage) (Command, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return Command{}, fmt.Errorf("%w: %s", ErrInvalidCommand, strings.Join(details, "; "))
	}

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	return cmd, nil
}
