package gemini

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/phrazzld/insight-api/internal/invoker"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// promptData represents the data passed to the prompt templates
type promptData struct {
	RequestType string
	OwnerID     string
	Payload     string
	Metadata    map[string]string
}

// loadPrompts parses every embedded template. Templates are named after the
// request type they serve, e.g. "pattern_analysis".
func loadPrompts() (*template.Template, error) {
	tmpl, err := template.New("prompts").Option("missingkey=zero").ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt templates: %v", invoker.ErrInvalidConfig, err)
	}
	return tmpl, nil
}

// renderPrompt builds the prompt for inv. A request type with no template
// is a permanent failure.
func renderPrompt(tmpl *template.Template, inv invoker.Invocation) (string, error) {
	t := tmpl.Lookup(inv.RequestType + ".tmpl")
	if t == nil {
		return "", fmt.Errorf("%w: %q", invoker.ErrUnknownRequestType, inv.RequestType)
	}

	payload := strings.TrimSpace(string(inv.Payload))
	if payload == "" {
		payload = "{}"
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, promptData{
		RequestType: inv.RequestType,
		OwnerID:     inv.OwnerID,
		Payload:     payload,
		Metadata:    inv.Metadata,
	}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// supportedTypes lists the request types that have a prompt template.
func supportedTypes(tmpl *template.Template) []string {
	var names []string
	for _, t := range tmpl.Templates() {
		if name, ok := strings.CutSuffix(t.Name(), ".tmpl"); ok {
			names = append(names, name)
		}
	}
	return names
}
