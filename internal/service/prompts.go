package service

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// prompts holds every parsed template, keyed by file name without extension.
var prompts = template.Must(template.New("prompts").ParseFS(templateFS, "templates/*.tmpl"))

// maxPromptInput bounds diff and file content pasted into a prompt.
const maxPromptInput = 60_000

// render executes the named template ("code_review", "intent", ...).
func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// truncate cuts s to maxPromptInput bytes on a line boundary.
func truncate(s string) string {
	if len(s) <= maxPromptInput {
		return s
	}
	cut := s[:maxPromptInput]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n... (truncated)"
}

// languages maps file extensions to the language named in test prompts.
var languages = map[string]string{
	".go":   "Go",
	".py":   "Python",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".java": "Java",
	".rb":   "Ruby",
	".rs":   "Rust",
	".cs":   "C#",
	".php":  "PHP",
}

func languageOf(file string) string {
	if l, ok := languages[strings.ToLower(path.Ext(file))]; ok {
		return l
	}
	return "the file's language"
}
