package prompt

import (
	"testing"
)

// TestTemplate tests the basic template
func TestTemplate(t *testing.T) {
	t.Run("GoTemplate", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template: "Hello {{.name}}, welcome to {{.place}}!",
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		result, err := tmpl.Format(map[string]any{
			"name":  "Alice",
			"place": "Wonderland",
		})
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		expected := "Hello Alice, welcome to Wonderland!"
		if result != expected {
			t.Errorf("expected '%s', got '%s'", expected, result)
		}
	})

	t.Run("FStringTemplate", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template:     "Hello {name}, welcome to {place}!",
			TemplateType: TemplateTypeFString,
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		result, err := tmpl.Format(map[string]any{
			"name":  "Bob",
			"place": "Paradise",
		})
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		expected := "Hello Bob, welcome to Paradise!"
		if result != expected {
			t.Errorf("expected '%s', got '%s'", expected, result)
		}
	})

	t.Run("MissingVariable", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template: "Hello {{.name}}!",
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		_, err = tmpl.Format(map[string]any{})
		if err == nil {
			t.Error("expected error for missing variable")
		}
	})

	t.Run("PartialVariables", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template: "Hello {{.name}} from {{.company}}!",
			PartialVariables: map[string]any{
				"company": "Acme Inc",
			},
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		result, err := tmpl.Format(map[string]any{
			"name": "Charlie",
		})
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		expected := "Hello Charlie from Acme Inc!"
		if result != expected {
			t.Errorf("expected '%s', got '%s'", expected, result)
		}
	})

	t.Run("InputVariables", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template: "{{.a}} and {{.b}} and {{.c}}",
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		vars := tmpl.InputVariables()
		if len(vars) != 3 {
			t.Errorf("expected 3 input variables, got %d", len(vars))
		}
	})

	t.Run("PartialFormat", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template: "{{.a}} and {{.b}}",
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		partial, err := tmpl.PartialFormat(map[string]any{"a": "first"})
		if err != nil {
			t.Fatalf("partial format failed: %v", err)
		}

		if len(partial.InputVariables()) != 1 {
			t.Errorf("expected 1 remaining variable, got %d", len(partial.InputVariables()))
		}

		result, err := partial.Format(map[string]any{"b": "second"})
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		expected := "first and second"
		if result != expected {
			t.Errorf("expected '%s', got '%s'", expected, result)
		}
	})
}

// TestFStringEscaping verifies that literal JSON braces written as {{ and
// }} survive substitution untouched, while declared placeholders are still
// replaced. This matters for prompts that instruct the model to emit JSON,
// e.g. the knowledge agent's "respond with {{"entities": [...]}}" prompts.
func TestFStringEscaping(t *testing.T) {
	t.Run("EscapedJSONBracesSurvive", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template:       `Summarize {npc_name}'s day. Respond as JSON: {{"mood": "...", "topics": []}}`,
			InputVariables: []string{"npc_name"},
			TemplateType:   TemplateTypeFString,
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		result, err := tmpl.Format(map[string]any{"npc_name": "Elena"})
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		expected := `Summarize Elena's day. Respond as JSON: {"mood": "...", "topics": []}`
		if result != expected {
			t.Errorf("expected %q, got %q", expected, result)
		}
	})

	t.Run("UnescapedBraceNotMistakenForDeclaredVar", func(t *testing.T) {
		tmpl, err := NewTemplate(TemplateConfig{
			Template:       `Known facts: {{"key": "value"}} about {topic}`,
			InputVariables: []string{"topic"},
			TemplateType:   TemplateTypeFString,
		})
		if err != nil {
			t.Fatalf("failed to create template: %v", err)
		}

		result, err := tmpl.Format(map[string]any{"topic": "the harvest festival"})
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		expected := `Known facts: {"key": "value"} about the harvest festival`
		if result != expected {
			t.Errorf("expected %q, got %q", expected, result)
		}
	})

	t.Run("ExtractVariablesIgnoresEscapedBraces", func(t *testing.T) {
		vars := extractVariables(`{{"literal": true}} then {name}`, TemplateTypeFString)
		if len(vars) != 1 || vars[0] != "name" {
			t.Errorf("expected [name], got %v", vars)
		}
	})
}

// TestExtractVariables tests variable extraction
func TestExtractVariables(t *testing.T) {
	t.Run("GoTemplateVariables", func(t *testing.T) {
		vars := extractVariables("{{.a}} and {{.b}} and {{.a}}", TemplateTypeGoTemplate)
		if len(vars) != 2 {
			t.Errorf("expected 2 unique variables, got %d", len(vars))
		}
	})

	t.Run("FStringVariables", func(t *testing.T) {
		vars := extractVariables("{a} and {b} and {a}", TemplateTypeFString)
		if len(vars) != 2 {
			t.Errorf("expected 2 unique variables, got %d", len(vars))
		}
	})
}
