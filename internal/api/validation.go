package api //nolint:revive // package name is intentional

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hishamos/secrets/internal/httputil"
)

const storeRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["path", "data"],
  "properties": {
    "path": {"type": "string"},
    "data": {"type": "object", "minProperties": 1},
    "metadata": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "string"}
    }
  }
}`

const rotateRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {"type": "object", "minProperties": 1}
  }
}`

// errInvalidBody marks a body that parsed as JSON but failed schema validation.
var errInvalidBody = errors.New("invalid request body")

// requestValidator checks request bodies against compiled JSON Schemas.
type requestValidator struct {
	store   *jsonschema.Schema
	rotate  *jsonschema.Schema
	printer *message.Printer
}

func newRequestValidator() (*requestValidator, error) {
	store, err := compileSchema("hishamos://schemas/store-request.json", storeRequestSchema)
	if err != nil {
		return nil, err
	}
	rotate, err := compileSchema("hishamos://schemas/rotate-request.json", rotateRequestSchema)
	if err != nil {
		return nil, err
	}
	return &requestValidator{
		store:   store,
		rotate:  rotate,
		printer: message.NewPrinter(language.English),
	}, nil
}

var bodyValidator = mustRequestValidator()

// mustRequestValidator panics when the embedded schemas do not compile.
func mustRequestValidator() *requestValidator {
	v, err := newRequestValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func compileSchema(url, doc string) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", url, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return schema, nil
}

// validate parses body and checks it against schema. Parse failures wrap
// httputil.ErrInvalidJSON; schema violations wrap errInvalidBody.
func (v *requestValidator) validate(schema *jsonschema.Schema, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", httputil.ErrInvalidJSON)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", httputil.ErrInvalidJSON, err)
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		return fmt.Errorf("%w: %s", errInvalidBody, strings.Join(v.violations(verr), "; "))
	}
	return nil
}

// decode reads a bounded body, validates it against schema and unmarshals it
// into dst.
func (v *requestValidator) decode(r io.Reader, maxBytes int64, schema *jsonschema.Schema, dst any) error {
	body, err := httputil.ReadLimitedBody(r, maxBytes)
	if err != nil {
		return err
	}
	if err := v.validate(schema, body); err != nil {
		return err
	}
	return httputil.DecodeJSON(bytes.NewReader(body), 0, dst)
}

func (v *requestValidator) violations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{loc + ": " + verr.ErrorKind.LocalizedString(v.printer)}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, v.violations(cause)...)
	}
	return out
}
