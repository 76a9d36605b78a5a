// Package extract turns recognized card text into structured fields. The
// transform is deterministic: identical input text always yields identical
// fields.
package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CardFields holds the structured fields read from a student ID card.
// JSON tags match the stored result shape.
type CardFields struct {
	Name        string `json:"nombre"`
	StudentCode string `json:"codigo_estudiante"`
	Program     string `json:"carrera"`
	Institution string `json:"institucion"`
}

// Extraction couples the raw recognized text with the parsed fields.
type Extraction struct {
	RawText string
	Fields  CardFields
}

// Labels are matched lowercase against NFC-normalized lines. Spanish
// (accented and plain) and English spellings name the same semantic field.
var (
	nameLabels        = []string{"nombre:", "name:"}
	codeLabels        = []string{"código:", "codigo:", "code:"}
	programLabels     = []string{"carrera:", "programa:", "program:"}
	institutionLabels = []string{"institución:", "institucion:", "institution:"}
)

// Extract parses recognized text line by line. The first matching label per
// field wins; later lines never overwrite an assigned field. If no labeled
// line names the institution, the fallback matchers scan the full text.
func Extract(text string) Extraction {
	// Model output sometimes carries decomposed accents; normalize so
	// "código" matches however it was composed.
	text = norm.NFC.String(text)

	out := Extraction{RawText: text}
	f := &out.Fields

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if f.Name == "" {
			if v, ok := matchLabel(line, nameLabels); ok {
				f.Name = v
				continue
			}
		}
		if f.StudentCode == "" {
			if v, ok := matchLabel(line, codeLabels); ok {
				f.StudentCode = v
				continue
			}
		}
		if f.Program == "" {
			if v, ok := matchLabel(line, programLabels); ok {
				f.Program = v
				continue
			}
		}
		if f.Institution == "" {
			if v, ok := matchLabel(line, institutionLabels); ok {
				f.Institution = v
			}
		}
	}

	if f.Institution == "" {
		for _, m := range defaultInstitutionMatchers {
			if v, ok := m.Match(text); ok {
				f.Institution = v
				break
			}
		}
	}

	return out
}

func matchLabel(line string, labels []string) (string, bool) {
	lower := strings.ToLower(line)
	for _, label := range labels {
		if strings.HasPrefix(lower, label) {
			return strings.TrimSpace(line[len(label):]), true
		}
	}
	return "", false
}
