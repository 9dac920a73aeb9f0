package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

type TemplateName string

const (
	TemplateRelevanceScore TemplateName = "relevance_score.yaml"
)

// templateFile is the on-disk layout of a prompt template.
type templateFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Template    string `yaml:"template"`
}

type PromptBuilder struct {
	mu        sync.RWMutex
	templates map[TemplateName]*template.Template
}

var (
	defaultBuilderOnce sync.Once
	defaultBuilder     *PromptBuilder
)

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: make(map[TemplateName]*template.Template),
	}
}

func DefaultPromptBuilder() *PromptBuilder {
	defaultBuilderOnce.Do(func() {
		defaultBuilder = NewPromptBuilder()
	})
	return defaultBuilder
}

func (pb *PromptBuilder) Render(name TemplateName, data any) (string, error) {
	tmpl, err := pb.getTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func (pb *PromptBuilder) getTemplate(name TemplateName) (*template.Template, error) {
	pb.mu.RLock()
	if tmpl, ok := pb.templates[name]; ok {
		pb.mu.RUnlock()
		return tmpl, nil
	}
	pb.mu.RUnlock()

	filename := filepath.ToSlash(filepath.Join("templates", string(name)))
	content, err := templateFS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load prompt template %s: %w", name, err)
	}

	var file templateFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("decode prompt template %s: %w", name, err)
	}
	if strings.TrimSpace(file.Template) == "" {
		return nil, fmt.Errorf("prompt template %s has no body", name)
	}

	tmpl, err := template.New(string(name)).Funcs(funcs).Parse(file.Template)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.templates[name] = tmpl

	return tmpl, nil
}

var funcs = template.FuncMap{
	"join":   strings.Join,
	"inc":    func(i int) int { return i + 1 },
	"orNone": func(items []string) string { return orDefault(strings.Join(items, ", "), "none") },
	"orNA":   func(s string) string { return orDefault(s, "N/A") },
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
