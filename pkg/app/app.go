// Package app loads the YAML page definition served by safesound-server.
package app

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// Language maps a display name to a whisper language code. An empty code
// means auto-detect.
type Language struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code" json:"code"`
}

// Task is a selectable transcription task.
type Task struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// Models lists the selectable whisper models.
type Models struct {
	Options []string `yaml:"options" json:"options"`
	Default *int     `yaml:"default" json:"default"`
}

// App is the page definition.
type App struct {
	Title       string     `yaml:"title" json:"title"`
	Icon        string     `yaml:"icon" json:"icon"`
	Models      Models     `yaml:"models" json:"models"`
	Languages   []Language `yaml:"languages" json:"languages"`
	Tasks       []Task     `yaml:"tasks" json:"tasks"`
	UploadTypes []string   `yaml:"upload_types" json:"upload_types"`
}

// Default returns the stock SafeSound+ page.
func Default() *App {
	a := &App{}
	a.setDefaults()
	return a
}

// Load reads, validates and defaults an app definition.
func Load(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes an app definition.
func Parse(data []byte) (*App, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse app file: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	if err := validate(doc); err != nil {
		return nil, err
	}

	var a App
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode app file: %w", err)
	}
	a.setDefaults()

	if *a.Models.Default >= len(a.Models.Options) {
		return nil, fmt.Errorf("invalid app file: models.default %d out of range", *a.Models.Default)
	}
	return &a, nil
}

func validate(doc any) error {
	schema := gojsonschema.NewStringLoader(schemaJSON)
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate app file: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("invalid app file: %s", strings.Join(problems, "; "))
}

func (a *App) setDefaults() {
	if a.Title == "" {
		a.Title = "SafeSound+"
	}
	if a.Icon == "" {
		a.Icon = "🎧"
	}
	if len(a.Models.Options) == 0 {
		a.Models.Options = []string{"tiny", "base", "small", "medium", "large"}
		if a.Models.Default == nil {
			def := 1
			a.Models.Default = &def
		}
	}
	if a.Models.Default == nil {
		def := 0
		a.Models.Default = &def
	}
	if len(a.Languages) == 0 {
		a.Languages = []Language{
			{Name: "Auto", Code: ""},
			{Name: "English", Code: "en"},
			{Name: "Spanish", Code: "es"},
			{Name: "French", Code: "fr"},
			{Name: "German", Code: "de"},
			{Name: "Italian", Code: "it"},
			{Name: "Portuguese", Code: "pt"},
			{Name: "Russian", Code: "ru"},
			{Name: "Chinese", Code: "zh"},
			{Name: "Japanese", Code: "ja"},
			{Name: "Korean", Code: "ko"},
		}
	}
	if len(a.Tasks) == 0 {
		a.Tasks = []Task{
			{Label: "Transcribe (same language)", Value: "transcribe"},
			{Label: "Translate to English", Value: "translate"},
		}
	}
	if len(a.UploadTypes) == 0 {
		a.UploadTypes = []string{"wav", "mp3", "m4a", "ogg"}
	}
}

// DefaultModel returns the preselected model.
func (a *App) DefaultModel() string {
	return a.Models.Options[*a.Models.Default]
}

// HasModel reports whether model is offered.
func (a *App) HasModel(model string) bool {
	for _, m := range a.Models.Options {
		if m == model {
			return true
		}
	}
	return false
}

// HasLanguageCode reports whether code is offered. The empty code is
// accepted only when an auto entry exists.
func (a *App) HasLanguageCode(code string) bool {
	for _, l := range a.Languages {
		if l.Code == code {
			return true
		}
	}
	return false
}

// HasTask reports whether task is offered.
func (a *App) HasTask(task string) bool {
	for _, t := range a.Tasks {
		if t.Value == task {
			return true
		}
	}
	return false
}

// AcceptsFile reports whether a file name has an accepted upload extension.
func (a *App) AcceptsFile(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, t := range a.UploadTypes {
		if t == ext {
			return true
		}
	}
	return false
}
