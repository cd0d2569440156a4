package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Validator is a compiled JSON Schema document with a display name.
type Validator struct {
	Name   string
	schema *jsonschema.Schema
}

// Load compiles the schema document at path. The file's base name (without
// extension) becomes the validator name unless name is set.
func Load(path, name string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Compile(name, data)
}

// Compile compiles a schema document held in memory.
func Compile(name string, doc []byte) (*Validator, error) {
	c := jsonschema.NewCompiler()
	url := "mem://" + name + ".json"
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Validator{Name: name, schema: s}, nil
}

// Violation is the first failing location reported by a validation.
type Violation struct {
	Path    string
	Message string
}

// Check validates candidate and returns the first violation, or nil when valid.
// Candidates must be plain decoded JSON values (map[string]any, []any, ...).
func (v *Validator) Check(candidate any) (*Violation, error) {
	err := v.schema.Validate(candidate)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	// only the first leaf is reported
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &Violation{
		Path:    strings.TrimPrefix(ve.InstanceLocation, "/"),
		Message: ve.Message,
	}, nil
}

// Passes validates candidate, logging the first failure at level. Anything other
// than a clean validation counts as a failure.
func (v *Validator) Passes(logger *zap.Logger, level zapcore.Level, candidate any) bool {
	violation, err := v.Check(candidate)
	if err != nil {
		logger.Warn("schema validation error", zap.String("schema", v.Name), zap.Error(err))
		return false
	}
	if violation == nil {
		return true
	}
	if ce := logger.Check(level, fmt.Sprintf("\tFailed %s @ %s: %s", v.Name, violation.Path, violation.Message)); ce != nil {
		ce.Write(zap.String("schema", v.Name), zap.String("path", violation.Path))
	}
	return false
}
