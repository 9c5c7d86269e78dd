package template

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// shapeSchemas holds one compiled schema per document shape.
type shapeSchemas map[Shape]*jsonschema.Schema

func compileShapeSchemas() (shapeSchemas, error) {
	out := make(shapeSchemas, 3)
	for _, shape := range []Shape{ShapeRanked, ShapeMultiMode, ShapeSingleMode} {
		name := "schemas/" + string(shape) + ".schema.json"
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := "https://briefcheck.schemas.local/" + string(shape) + ".schema.json"
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("template schema load failed: %w", err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("template schema compile failed: %w", err)
		}
		out[shape] = compiled
	}
	return out, nil
}

func (s shapeSchemas) validate(shape Shape, doc any) error {
	sch, ok := s[shape]
	if !ok {
		return fmt.Errorf("no schema for shape %q", shape)
	}
	return sch.Validate(doc)
}
