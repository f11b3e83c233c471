package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Oscillant-Labs/crossform/pkg/form"
)

// SchemaCriterion validates request params against a JSON Schema
// (draft 2020-12). Params that fail validation answer Void; params the
// validator cannot even interpret answer Imaginary. An unparseable schema
// is a configuration error and fails construction.
func SchemaCriterion(name, schema string) (Criterion, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://crossform.schemas.local/gate/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return Criterion{}, fmt.Errorf("schema load failed for %s: %w", name, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return Criterion{}, fmt.Errorf("schema compile failed for %s: %w", name, err)
	}

	return Criterion{
		Name: name,
		Evaluate: func(ctx context.Context, req Request) form.Form {
			var params any = req.Params
			if req.Params == nil {
				params = map[string]any{}
			}
			if err := compiled.Validate(params); err != nil {
				var invalid jsonschema.InvalidJSONTypeError
				if errors.As(err, &invalid) {
					return form.Imaginary()
				}
				return form.Void()
			}
			return form.Mark()
		},
	}, nil
}

// MustSchemaCriterion is SchemaCriterion for statically known schemas.
func MustSchemaCriterion(name, schema string) Criterion {
	c, err := SchemaCriterion(name, schema)
	if err != nil {
		panic(err)
	}
	return c
}
