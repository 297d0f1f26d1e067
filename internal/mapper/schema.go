// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapper

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed draft.schema.json
var draftSchema string

const draftSchemaURL = "https://invenio-migrator.local/schemas/draft.json"

func compileDraftSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(draftSchemaURL, strings.NewReader(draftSchema)); err != nil {
		return nil, fmt.Errorf("adding draft schema: %w", err)
	}
	schema, err := c.Compile(draftSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling draft schema: %w", err)
	}
	return schema, nil
}
