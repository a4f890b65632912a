// Package customfields validates administrator-defined profile fields. The
// active definitions are compiled into one JSON Schema and submitted values
// are checked against it.
package customfields

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/qri-io/jsonschema"
)

// Field types.
const (
	TypeText     = "text"
	TypeTextarea = "textarea"
	TypeCheck    = "check"
	TypeSelect   = "select"
	TypeRadio    = "radio"
)

// Types is the set of known field types.
var Types = map[string]bool{TypeText: true, TypeTextarea: true, TypeCheck: true, TypeSelect: true, TypeRadio: true}

const emailPattern = `^[^@\s]+@[^@\s]+\.[^@\s]+$`

var colNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,12}$`)

// Repo is the storage the validator needs.
type Repo interface {
	ListCustomFields(ctx context.Context, activeOnly bool) ([]models.CustomField, error)
}

// Options splits a select/radio option list.
func Options(f models.CustomField) []string {
	var out []string
	for _, o := range strings.Split(f.Options, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// CheckDefinition validates a field definition before it is stored.
func CheckDefinition(f models.CustomField) error {
	verr := &apperr.Validation{}
	if !colNamePattern.MatchString(f.ColName) {
		verr.Add("col_name", "custom_field_col_invalid")
	}
	if strings.TrimSpace(f.Name) == "" {
		verr.Add("field_name", "field_required")
	}
	if !Types[f.Type] {
		verr.Add("field_type", "custom_field_type_invalid")
	}
	if (f.Type == TypeSelect || f.Type == TypeRadio) && len(Options(f)) == 0 {
		verr.Add("field_options", "custom_field_options_required")
	}
	if f.Length < 0 || f.Length > 4096 {
		verr.Add("field_length", "setting_out_of_range")
	}
	switch {
	case f.Mask == "", f.Mask == "email", f.Mask == "number":
	case strings.HasPrefix(f.Mask, "regex:"):
		if _, err := regexp.Compile(strings.TrimPrefix(f.Mask, "regex:")); err != nil {
			verr.Add("mask", "custom_field_mask_invalid")
		}
	default:
		verr.Add("mask", "custom_field_mask_invalid")
	}
	if f.Private < models.FieldPublic || f.Private > models.FieldAdminOnly {
		verr.Add("private", "setting_out_of_range")
	}
	return verr.Err()
}

// property returns the JSON Schema for one field.
func property(f models.CustomField) map[string]any {
	p := map[string]any{"type": "string"}
	switch f.Type {
	case TypeCheck:
		p["enum"] = []string{"", "0", "1"}
		return p
	case TypeSelect, TypeRadio:
		p["enum"] = append([]string{""}, Options(f)...)
		return p
	}
	if f.Length > 0 {
		p["maxLength"] = f.Length
	}
	switch {
	case f.Mask == "email":
		p["pattern"] = `^$|` + emailPattern
	case f.Mask == "number":
		p["pattern"] = `^[0-9]*$`
	case strings.HasPrefix(f.Mask, "regex:"):
		p["pattern"] = `^$|` + strings.TrimPrefix(f.Mask, "regex:")
	}
	return p
}

// Schema builds the JSON Schema document for fields.
func Schema(fields []models.CustomField) ([]byte, error) {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.ColName] = property(f)
	}
	return json.Marshal(map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	})
}

// Validator holds the compiled schema for the active fields.
type Validator struct {
	repo   Repo
	mu     sync.RWMutex
	fields []models.CustomField
	schema *jsonschema.Schema
}

func NewValidator(ctx context.Context, r Repo) (*Validator, error) {
	v := &Validator{repo: r}
	if err := v.Reload(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Reload recompiles the schema from the stored definitions.
func (v *Validator) Reload(ctx context.Context) error {
	fields, err := v.repo.ListCustomFields(ctx, true)
	if err != nil {
		return fmt.Errorf("load custom fields: %w", err)
	}
	raw, err := Schema(fields)
	if err != nil {
		return fmt.Errorf("build custom field schema: %w", err)
	}
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, rs); err != nil {
		return fmt.Errorf("compile custom field schema: %w", err)
	}

	v.mu.Lock()
	v.fields = fields
	v.schema = rs
	v.mu.Unlock()
	return nil
}

// Fields returns the active definitions in display order.
func (v *Validator) Fields() []models.CustomField {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.CustomField(nil), v.fields...)
}

// Validate checks submitted values keyed by col_name and returns them keyed
// by field id. Admin-only fields may only be set when admin is true.
func (v *Validator) Validate(ctx context.Context, submitted map[string]string, admin bool) (map[int64]string, error) {
	v.mu.RLock()
	fields, schema := v.fields, v.schema
	v.mu.RUnlock()

	byCol := make(map[string]models.CustomField, len(fields))
	for _, f := range fields {
		byCol[f.ColName] = f
	}

	verr := &apperr.Validation{}
	doc := map[string]string{}
	cols := make([]string, 0, len(submitted))
	for c := range submitted {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		f, ok := byCol[c]
		switch {
		case !ok:
			verr.Add("customfield["+c+"]", "field_invalid")
		case f.Private == models.FieldAdminOnly && !admin:
			verr.Add("customfield["+c+"]", "no_access")
		default:
			doc[c] = strings.TrimSpace(submitted[c])
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	keyErrs, err := schema.ValidateBytes(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("validate custom fields: %w", err)
	}
	for _, ke := range keyErrs {
		col := strings.TrimPrefix(strings.TrimPrefix(ke.PropertyPath, "#"), "/")
		f, ok := byCol[col]
		if !ok || verr.Has("customfield["+col+"]") {
			continue
		}
		field := "customfield[" + col + "]"
		switch {
		case f.Type == TypeCheck || f.Type == TypeSelect || f.Type == TypeRadio:
			verr.Add(field, "field_not_in_options")
		case f.Length > 0 && len([]rune(doc[col])) > f.Length:
			verr.Add(field, "field_too_long", f.Length)
		case f.Mask == "email":
			verr.Add(field, "email_invalid")
		default:
			verr.Add(field, "field_invalid")
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	out := make(map[int64]string, len(doc))
	for c, val := range doc {
		out[byCol[c].ID] = val
	}
	return out, nil
}

// Display is a field prepared for a profile page.
type Display struct {
	ColName string `json:"col_name"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Value   string `json:"value"`
	Private int    `json:"private"`
}

// Visible filters fields by visibility: owner-only fields are shown to the
// owner and admins, admin-only fields to admins.
func Visible(fields []models.CustomField, values map[int64]string, owner, admin bool) []Display {
	var out []Display
	for _, f := range fields {
		switch f.Private {
		case models.FieldOwnerOnly:
			if !owner && !admin {
				continue
			}
		case models.FieldAdminOnly:
			if !admin {
				continue
			}
		}
		val, ok := values[f.ID]
		if !ok {
			val = f.Default
		}
		out = append(out, Display{ColName: f.ColName, Name: f.Name, Type: f.Type, Value: val, Private: f.Private})
	}
	return out
}
