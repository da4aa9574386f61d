package checker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/foundry-zero/jsoncheck/internal/jsonc"
	"github.com/foundry-zero/jsoncheck/internal/position"
	"github.com/foundry-zero/jsoncheck/internal/report"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

var printer = message.NewPrinter(language.English)

// Diagnose validates doc against sch and maps every violation to a
// positioned diagnostic.
func Diagnose(sch *schema.Compiled, doc *jsonc.Document) []report.Diagnostic {
	err := sch.Validate(doc.Value)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []report.Diagnostic{report.NewError(report.KeywordCode("false"), err.Error())}
	}
	absoluteIndices(sch.Schema, ve)

	var out []report.Diagnostic
	for _, leaf := range leaves(ve) {
		out = append(out, mapViolation(doc, leaf)...)
	}
	return out
}

// leaves flattens the error tree. Combinators whose causes only explain
// why each branch failed are reported as a single violation.
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 || terminal(ve.ErrorKind) {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func terminal(k jsonschema.ErrorKind) bool {
	switch k.(type) {
	case *kind.AnyOf, *kind.OneOf, *kind.Not, *kind.PropertyNames, *kind.Contains:
		return true
	}
	return false
}

// keyword returns the schema keyword that produced ve. False schemas carry
// no keyword path, so the keyword is taken from where the false schema sits
// (for example "unevaluatedProperties").
func keyword(ve *jsonschema.ValidationError) string {
	if kp := ve.ErrorKind.KeywordPath(); len(kp) > 0 {
		return kp[0]
	}
	segs := fragment(ve.SchemaURL)
	for i := len(segs) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(segs[i]); err != nil {
			return segs[i]
		}
	}
	return "false"
}

func fragment(u string) []string {
	_, frag, ok := strings.Cut(u, "#")
	if !ok || frag == "" {
		return nil
	}
	return position.ParsePointer(frag)
}

func schemaPath(ve *jsonschema.ValidationError) string {
	segs := fragment(ve.SchemaURL)
	segs = append(segs, ve.ErrorKind.KeywordPath()...)
	return position.Pointer(segs).String()
}

func mapViolation(doc *jsonc.Document, ve *jsonschema.ValidationError) []report.Diagnostic {
	kw := keyword(ve)
	base := report.Diagnostic{
		Code:       report.KeywordCode(kw),
		Message:    ve.ErrorKind.LocalizedString(printer),
		Severity:   report.SeverityError,
		Label:      label(ve.ErrorKind, kw),
		Help:       help(ve.ErrorKind, kw),
		SchemaPath: schemaPath(ve),
	}
	inst := ve.InstanceLocation

	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		out := make([]report.Diagnostic, 0, len(k.Missing))
		for _, name := range k.Missing {
			d := base
			d.Message = fmt.Sprintf("missing property '%s'", name)
			out = append(out, anchorValue(doc, d, inst))
		}
		return out

	case *kind.AdditionalProperties:
		out := make([]report.Diagnostic, 0, len(k.Properties))
		for _, name := range k.Properties {
			d := base
			d.Message = fmt.Sprintf("additional property '%s' is not allowed", name)
			out = append(out, anchorKey(doc, d, append(clone(inst), name)))
		}
		return out

	case *kind.AdditionalItems:
		return extraItems(doc, base, inst, k.Count)

	case *kind.FalseSchema:
		if kw == "unevaluatedProperties" && len(inst) > 0 {
			d := base
			d.Message = fmt.Sprintf("unevaluated property '%s' is not allowed", inst[len(inst)-1])
			return []report.Diagnostic{anchorKey(doc, d, inst)}
		}
		if len(inst) > 0 && (kw == "items" || kw == "additionalItems" || kw == "unevaluatedItems") {
			if _, err := strconv.Atoi(inst[len(inst)-1]); err == nil {
				d := base
				d.Message = fmt.Sprintf("item at index %s is not allowed", inst[len(inst)-1])
				return []report.Diagnostic{anchorValue(doc, d, inst)}
			}
		}
	}
	return []report.Diagnostic{anchorValue(doc, base, inst)}
}

// extraItems emits one diagnostic per item past the allowed count. If no
// item span resolves, a single diagnostic covers the whole array.
func extraItems(doc *jsonc.Document, base report.Diagnostic, inst []string, count int) []report.Diagnostic {
	arr, _ := valueAt(doc.Value, inst).([]any)
	var out []report.Diagnostic
	for i := len(arr) - count; i >= 0 && i < len(arr); i++ {
		span, ok := position.ValueSpan(&doc.Root, append(clone(inst), strconv.Itoa(i)))
		if !ok {
			break
		}
		d := base
		d.Message = fmt.Sprintf("item at index %d is not allowed", i)
		out = append(out, d.At(doc.Index, span))
	}
	if len(out) == 0 {
		return []report.Diagnostic{anchorValue(doc, base, inst)}
	}
	return out
}

func anchorValue(doc *jsonc.Document, d report.Diagnostic, ptr []string) report.Diagnostic {
	if span, ok := position.ValueSpan(&doc.Root, ptr); ok {
		return d.At(doc.Index, span)
	}
	return d
}

// anchorKey anchors to the property name, falling back to the value and
// then to the enclosing object.
func anchorKey(doc *jsonc.Document, d report.Diagnostic, ptr []string) report.Diagnostic {
	if span, ok := position.KeySpan(&doc.Root, ptr); ok {
		return d.At(doc.Index, span)
	}
	if span, ok := position.ValueSpan(&doc.Root, ptr); ok {
		return d.At(doc.Index, span)
	}
	return anchorValue(doc, d, ptr[:len(ptr)-1])
}

func valueAt(v any, ptr []string) any {
	for _, tok := range ptr {
		switch node := v.(type) {
		case map[string]any:
			v = node[tok]
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}

func clone(p []string) []string {
	return append([]string(nil), p...)
}

func label(k jsonschema.ErrorKind, kw string) string {
	switch k := k.(type) {
	case *kind.Type:
		if len(k.Want) == 1 {
			return fmt.Sprintf("expected type %q", k.Want[0])
		}
		quoted := make([]string, len(k.Want))
		for i, w := range k.Want {
			quoted[i] = strconv.Quote(w)
		}
		return "expected one of types " + strings.Join(quoted, ", ")
	case *kind.Required, *kind.DependentRequired, *kind.Dependency:
		return "required property missing here"
	case *kind.Enum:
		return "value not in allowed set"
	case *kind.Const:
		return "value doesn't match expected constant"
	case *kind.Pattern:
		return "value doesn't match pattern"
	case *kind.Minimum, *kind.Maximum, *kind.ExclusiveMinimum, *kind.ExclusiveMaximum:
		return "value out of range"
	case *kind.MinLength, *kind.MaxLength:
		return "string length out of range"
	case *kind.MinItems, *kind.MaxItems:
		return "array length out of range"
	case *kind.MinProperties, *kind.MaxProperties:
		return "property count out of range"
	case *kind.MultipleOf:
		return "value is not a valid multiple"
	case *kind.UniqueItems:
		return "array has duplicate items"
	case *kind.AdditionalProperties:
		return "unexpected property"
	case *kind.AdditionalItems:
		return "extra item not allowed"
	case *kind.AnyOf:
		return "no matching schema"
	case *kind.OneOf:
		if len(k.Subschemas) > 1 {
			return "multiple schemas matched"
		}
		return "no matching schema"
	case *kind.Not:
		return "value is disallowed"
	case *kind.Format:
		return "value doesn't match expected format"
	case *kind.Contains, *kind.MinContains, *kind.MaxContains:
		return "no matching item found"
	case *kind.PropertyNames:
		return "invalid property name"
	case *kind.ContentEncoding:
		return "invalid content encoding"
	case *kind.ContentMediaType:
		return "invalid content media type"
	case *kind.Reference, *kind.RefCycle:
		return "schema reference error"
	case *kind.FalseSchema:
		switch kw {
		case "unevaluatedProperties", "additionalProperties":
			return "unexpected property"
		case "unevaluatedItems":
			return "unexpected item"
		case "items", "additionalItems":
			return "extra item not allowed"
		}
		return "no value allowed here"
	}
	return kw + " validation failed"
}

// help returns remediation text for kinds whose message alone does not say
// what to do.
func help(k jsonschema.ErrorKind, kw string) string {
	switch k := k.(type) {
	case *kind.Required:
		return "Add the missing property to this object."
	case *kind.AdditionalProperties:
		return "Remove the property, or check for typos in the property name."
	case *kind.AdditionalItems:
		return "Remove the extra items, or update the schema to allow more."
	case *kind.AnyOf:
		return "The value must match at least one of the listed schemas."
	case *kind.OneOf:
		if len(k.Subschemas) > 1 {
			return "The value must match exactly one schema, but it matches multiple."
		}
		return "The value must match exactly one of the listed schemas."
	case *kind.Not:
		return "The value is explicitly disallowed by a 'not' constraint in the schema."
	case *kind.PropertyNames:
		return "One or more property names are invalid."
	case *kind.Reference, *kind.RefCycle:
		return "The schema could not resolve a reference. The schema itself may be broken."
	case *kind.FalseSchema:
		switch kw {
		case "unevaluatedProperties", "additionalProperties":
			return "Remove the property, or check for typos in the property name."
		case "unevaluatedItems", "items", "additionalItems":
			return "Remove the extra items, or update the schema to allow more."
		}
		return "This location does not allow any value."
	}
	return ""
}
