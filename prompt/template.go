// Package prompt provides prompt template functionality for LLM applications.
// Prompt templates allow dynamic construction of prompts with variable
// substitution while preserving literal JSON braces that appear in
// instructional text (e.g. "respond with {{"entities": []}}").
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Template represents a prompt template
type Template struct {
	template     string
	inputVars    []string
	partialVars  map[string]any
	templateType TemplateType
}

// TemplateType represents the template format type
type TemplateType string

const (
	// TemplateTypeGoTemplate uses Go template syntax: {{.variable}}
	TemplateTypeGoTemplate TemplateType = "go_template"

	// TemplateTypeFString uses Python f-string style: {variable}, with
	// literal braces escaped as {{ and }}
	TemplateTypeFString TemplateType = "f_string"
)

// TemplateConfig configures a prompt template
type TemplateConfig struct {
	// Template is the template string
	Template string

	// InputVariables are the required input variables
	InputVariables []string

	// PartialVariables are pre-filled variables
	PartialVariables map[string]any

	// TemplateType is the format type (default: go_template)
	TemplateType TemplateType
}

// NewTemplate creates a new prompt template
func NewTemplate(cfg TemplateConfig) (*Template, error) {
	templateType := cfg.TemplateType
	if templateType == "" {
		templateType = TemplateTypeGoTemplate
	}

	// Auto-detect input variables if not provided
	inputVars := cfg.InputVariables
	if len(inputVars) == 0 {
		inputVars = extractVariables(cfg.Template, templateType)
	}

	return &Template{
		template:     cfg.Template,
		inputVars:    inputVars,
		partialVars:  cfg.PartialVariables,
		templateType: templateType,
	}, nil
}

// Format formats the template with the given variables
func (t *Template) Format(vars map[string]any) (string, error) {
	// Merge partial variables with provided variables
	mergedVars := make(map[string]any)
	for k, v := range t.partialVars {
		mergedVars[k] = v
	}
	for k, v := range vars {
		mergedVars[k] = v
	}

	// Check for missing variables
	for _, key := range t.inputVars {
		if _, ok := mergedVars[key]; !ok {
			return "", fmt.Errorf("missing required variable: %s", key)
		}
	}

	switch t.templateType {
	case TemplateTypeFString:
		return t.formatFString(mergedVars)
	default:
		return t.formatGoTemplate(mergedVars)
	}
}

// formatGoTemplate formats using Go template syntax
func (t *Template) formatGoTemplate(vars map[string]any) (string, error) {
	result := t.template
	for key, val := range vars {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		strVal := fmt.Sprintf("%v", val)
		result = strings.ReplaceAll(result, placeholder, strVal)
	}
	return result, nil
}

// escapedOpenBrace and escapedCloseBrace are sentinels used to protect
// literal "{{" / "}}" escape sequences from the placeholder scan below.
// They contain bytes that never occur in template text.
const (
	escapedOpenBrace  = "\x00PROMPT_LBRACE\x00"
	escapedCloseBrace = "\x00PROMPT_RBRACE\x00"
)

// formatFString formats using f-string style placeholders ({name}),
// honoring {{ and }} as escapes for literal braces. Only declared
// placeholders are substituted; everything else, including JSON braces
// in the surrounding instructional text, passes through unchanged.
func (t *Template) formatFString(vars map[string]any) (string, error) {
	result := t.template

	// Step 1: pull out escaped literal braces so they never look like
	// placeholder delimiters during substitution.
	result = strings.ReplaceAll(result, "{{", escapedOpenBrace)
	result = strings.ReplaceAll(result, "}}", escapedCloseBrace)

	// Step 2: substitute only the declared placeholders.
	for key, val := range vars {
		placeholder := "{" + key + "}"
		strVal := fmt.Sprintf("%v", val)
		result = strings.ReplaceAll(result, placeholder, strVal)
	}

	// Step 3: restore literal braces.
	result = strings.ReplaceAll(result, escapedOpenBrace, "{")
	result = strings.ReplaceAll(result, escapedCloseBrace, "}")

	return result, nil
}

// InputVariables returns the required input variables
func (t *Template) InputVariables() []string {
	return t.inputVars
}

// Template returns the template string
func (t *Template) Template() string {
	return t.template
}

// PartialFormat creates a new template with some variables filled in
func (t *Template) PartialFormat(vars map[string]any) (*Template, error) {
	newPartials := make(map[string]any)
	for k, v := range t.partialVars {
		newPartials[k] = v
	}
	for k, v := range vars {
		newPartials[k] = v
	}

	// Remove filled variables from input variables
	var remainingVars []string
	for _, v := range t.inputVars {
		if _, ok := newPartials[v]; !ok {
			remainingVars = append(remainingVars, v)
		}
	}

	return &Template{
		template:     t.template,
		inputVars:    remainingVars,
		partialVars:  newPartials,
		templateType: t.templateType,
	}, nil
}

// extractVariables extracts variable names from template. For f-string
// templates, "{{"/"}}" escape sequences are stripped first so that
// literal JSON braces never get mistaken for a declared variable.
func extractVariables(template string, templateType TemplateType) []string {
	var pattern *regexp.Regexp
	scanned := template

	switch templateType {
	case TemplateTypeFString:
		scanned = strings.ReplaceAll(scanned, "{{", "")
		scanned = strings.ReplaceAll(scanned, "}}", "")
		pattern = regexp.MustCompile(`\{(\w+)\}`)
	default:
		pattern = regexp.MustCompile(`\{\{\.\s*(\w+)\s*\}\}`)
	}

	matches := pattern.FindAllStringSubmatch(scanned, -1)
	seen := make(map[string]bool)
	var vars []string

	for _, match := range matches {
		if len(match) > 1 && !seen[match[1]] {
			vars = append(vars, match[1])
			seen[match[1]] = true
		}
	}

	return vars
}
