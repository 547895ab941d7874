package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

const defaultPromptsPath = "prompts.yaml"

type Prompts struct {
	System  SystemPrompts  `yaml:"system"`
	YouTube YouTubePrompts `yaml:"youtube"`
}

type SystemPrompts struct {
	Tags        string `yaml:"tags"`
	Description string `yaml:"description"`
}

type YouTubePrompts struct {
	Tags        string `yaml:"tags"`
	Description string `yaml:"description"`
	Footer      string `yaml:"footer"`
}

type TagsParams struct {
	Caption string
	Count   int
}

type DescriptionParams struct {
	Caption string
}

// FooterParams feeds youtube.description_template.
type FooterParams struct {
	Caption  string
	Tags     []string
	Hashtags string
}

// Default is used for any prompt prompts.yaml leaves empty.
func Default() *Prompts {
	return &Prompts{
		System: SystemPrompts{
			Tags:        "You suggest search tags for short vertical videos. Reply with a JSON object {\"tags\": [...]} and nothing else.",
			Description: "You write one or two sentence descriptions for short vertical videos. Reply with the description only.",
		},
		YouTube: YouTubePrompts{
			Tags:        "Suggest {{.Count}} tags for a YouTube Short captioned: {{.Caption}}",
			Description: "Write a description for a YouTube Short captioned: {{.Caption}}",
		},
	}
}

func Load() (*Prompts, error) {
	return LoadFrom(defaultPromptsPath)
}

// LoadFrom reads path over the defaults. A missing file yields the defaults.
func LoadFrom(path string) (*Prompts, error) {
	p := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var loaded Prompts
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	override(&p.System.Tags, loaded.System.Tags)
	override(&p.System.Description, loaded.System.Description)
	override(&p.YouTube.Tags, loaded.YouTube.Tags)
	override(&p.YouTube.Description, loaded.YouTube.Description)
	override(&p.YouTube.Footer, loaded.YouTube.Footer)
	return p, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (p *Prompts) RenderTags(params TagsParams) (string, error) {
	return render(p.YouTube.Tags, params)
}

func (p *Prompts) RenderDescription(params DescriptionParams) (string, error) {
	return render(p.YouTube.Description, params)
}

// RenderFooter renders tmpl, normally youtube.description_template.
func RenderFooter(tmpl string, params FooterParams) (string, error) {
	return render(tmpl, params)
}

func render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
