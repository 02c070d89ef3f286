package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/swncrew.json
var schemaFS embed.FS

const (
	schemaFile = "schemas/swncrew.json"
	schemaURL  = "https://swncrew.local/" + schemaFile
)

// schemas holds the compiled request body schemas.
type schemas struct {
	missions       *jsonschema.Schema
	classification *jsonschema.Schema
	reading        *jsonschema.Schema
	activeFlag     *jsonschema.Schema
	valveState     *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	data, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("reading embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compile := func(def string) (*jsonschema.Schema, error) {
		sch, err := compiler.Compile(schemaURL + "#/$defs/" + def)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", def, err)
		}
		return sch, nil
	}

	var s schemas
	for def, dst := range map[string]**jsonschema.Schema{
		"missionSubmission": &s.missions,
		"classification":    &s.classification,
		"reading":           &s.reading,
		"activeFlag":        &s.activeFlag,
		"valveState":        &s.valveState,
	} {
		if *dst, err = compile(def); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// checkBody decodes raw as generic JSON and validates it against sch.
// The returned error is suitable for a 400 response.
func checkBody(sch *jsonschema.Schema, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := sch.Validate(payload); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("request body does not match schema: %s", describe(verr))
		}
		return err
	}
	return nil
}

// describe returns the most specific schema failure.
func describe(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	loc := verr.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, verr.Message)
}
