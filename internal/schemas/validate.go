// Package schemas validates stage outputs against embedded JSON Schemas and
// struct tags.
package schemas

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed stages/*.schema.json
var stageSchemas embed.FS

const schemaSuffix = ".schema.json"

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	if ve.Schema != "" {
		fmt.Fprintf(&sb, "validation failed for %s:\n", ve.Schema)
	} else {
		sb.WriteString("validation failed:\n")
	}
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, err.Field, err.Message)
	}
	return sb.String()
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// Validator checks model output documents. Schemas are compiled lazily and
// cached per stage name; a stage without a schema only gets struct checks.
type Validator struct {
	fsys    fs.FS
	structs *validator.Validate

	mu       sync.Mutex
	compiled map[string]*gojsonschema.Schema
}

// NewValidator returns a Validator over the embedded stage schemas.
func NewValidator() *Validator {
	sub, err := fs.Sub(stageSchemas, "stages")
	if err != nil {
		// embed paths are fixed at build time
		panic(err)
	}
	return NewValidatorFS(sub)
}

// NewValidatorFS reads "<stage>.schema.json" files from the root of fsys.
func NewValidatorFS(fsys fs.FS) *Validator {
	return &Validator{
		fsys:     fsys,
		structs:  validator.New(validator.WithRequiredStructEnabled()),
		compiled: make(map[string]*gojsonschema.Schema),
	}
}

// Stages lists the stage names that carry a JSON Schema.
func (v *Validator) Stages() []string {
	entries, err := fs.Glob(v.fsys, "*"+schemaSuffix)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(path.Base(e), schemaSuffix))
	}
	sort.Strings(names)
	return names
}

func (v *Validator) schema(stage string) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.compiled[stage]; ok {
		return s, nil
	}
	file := stage + schemaSuffix
	data, err := fs.ReadFile(v.fsys, file)
	if errors.Is(err, fs.ErrNotExist) {
		v.compiled[stage] = nil
		return nil, nil
	}
	if err != nil {
		return nil, &SchemaLoadError{Path: file, Message: "read failed", Cause: err}
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &SchemaLoadError{Path: file, Message: "compile failed", Cause: err}
	}
	v.compiled[stage] = s
	return s, nil
}

// ValidateDocument checks a JSON document against the stage's schema.
func (v *Validator) ValidateDocument(stage string, doc []byte) error {
	s, err := v.schema(stage)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("load document for %s: %w", stage, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Schema: stage, Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}

// ValidateStruct runs the `validate` struct tags on a decoded value.
func (v *Validator) ValidateStruct(value any) error {
	err := v.structs.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{Errors: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		verr.Errors = append(verr.Errors, FieldError{Field: fe.Namespace(), Message: msg})
	}
	return verr
}
