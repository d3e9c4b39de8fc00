// Package schemas embeds the JSON Schemas shipped with the binary.
package schemas

import _ "embed"

// RunSpecSchemaJSON is the JSON Schema for run spec YAML files.
//
//go:embed runspec.schema.json
var RunSpecSchemaJSON string
