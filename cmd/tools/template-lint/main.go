// cmd/tools/template-lint/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"inspection-gateway/internal/forms"
	"inspection-gateway/pkg/registry"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)

	validatePath := validateCmd.String("path", "configs/form-templates.yaml", "Path to template registry")
	listPath := listCmd.String("path", "configs/form-templates.yaml", "Path to template registry")

	updatePath := updateCmd.String("path", "configs/form-templates.yaml", "Path to template registry")
	idUpdate := updateCmd.String("id", "", "Template ID to update")
	field := updateCmd.String("field", "", "Field to update (title, version, kind, submitPath)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validate(os.Stdout, *validatePath); err != nil {
			fmt.Printf("Template registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := list(os.Stdout, *listPath); err != nil {
			fmt.Printf("Error listing templates: %v\n", err)
			os.Exit(1)
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTemplate(*updatePath, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated template %s, field %s to %s\n", *idUpdate, *field, *value)

	case "help":
		fallthrough
	default:
		help(os.Stdout)
	}
}

// Defaults may be incomplete (blank strings, empty lists) but must already
// have the document's shape, since drafts only ever replace existing leaves.
var shapeCodes = map[string]bool{
	"REQUIRED":                        true,
	"INVALID_TYPE":                    true,
	"ADDITIONAL_PROPERTY_NOT_ALLOWED": true,
}

// lint returns every problem found in reg: structural ones, schemas that do
// not compile and defaults documents whose shape the schema rejects.
func lint(reg *registry.FormRegistry) []string {
	problems := reg.Check()
	if len(reg.Templates) == 0 {
		problems = append(problems, "registry contains no templates")
	}

	for _, def := range reg.Templates {
		if def.ID == "" {
			continue
		}
		tmpl, err := forms.NewTemplate(def)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: schema does not compile: %v", def.ID, err))
			continue
		}
		result, err := tmpl.Validate(def.Defaults)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: defaults cannot be validated: %v", def.ID, err))
			continue
		}
		for _, e := range result.Errors {
			if shapeCodes[e.Code] {
				problems = append(problems, fmt.Sprintf("%s: defaults: %s: %s", def.ID, e.Field, e.Message))
			}
		}
	}
	return problems
}

func validate(w io.Writer, path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	problems := lint(reg)
	for _, p := range problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d problem(s) in %s", len(problems), path)
	}

	fmt.Fprintf(w, "Template registry validation passed. Found %d templates.\n", len(reg.Templates))
	return nil
}

func list(w io.Writer, path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	for _, id := range reg.IDs() {
		t, _ := reg.Find(id)
		fmt.Fprintf(w, "%-28s %-10s %-8s %s\n", t.ID, t.Kind, t.Version, t.SubmitPath)
	}
	return nil
}

func updateTemplate(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Templates {
		if reg.Templates[i].ID != id {
			continue
		}
		found = true
		switch field {
		case "title":
			reg.Templates[i].Title = value
		case "version":
			reg.Templates[i].Version = value
		case "kind":
			reg.Templates[i].Kind = value
		case "submitPath":
			reg.Templates[i].SubmitPath = value
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}
	if !found {
		return fmt.Errorf("template with ID %s not found", id)
	}

	if problems := lint(reg); len(problems) > 0 {
		return fmt.Errorf("update would leave the registry invalid: %s", problems[0])
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.SaveRegistry(path, reg)
}

func help(w io.Writer) {
	fmt.Fprint(w, `
Usage: template-lint <command> [flags]

Commands:
  validate  Check ids, schemas and defaults of every template
  list      Print the templates in the registry
  update    Update a field of an existing template
  help      Show this help message

Examples:
  template-lint validate -path configs/form-templates.yaml
  template-lint update -id site-inspection -field version -value 1.3.0
`)
}
