package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

//go:embed templates/*.txt
var defaults embed.FS

// Name identifies a prompt template.
type Name string

const (
	// Discussion is the system prompt of a topic discussion.
	Discussion Name = "discussion"
	// ScoreUpdate grades the latest exchange of a discussion.
	ScoreUpdate Name = "score_update"
	// GradeAnswer grades a written answer to an open or short question.
	GradeAnswer Name = "grade_answer"
)

// Placeholders of each template. Every one must appear in the template text.
const (
	TopicAndQuestions = "{topic_and_questions}"
	Conversation      = "{conversation}"
	Context           = "{context}"
	Question          = "{question}"
	Answer            = "{answer}"
	Input             = "{input}"
)

var required = map[Name][]string{
	Discussion:  {TopicAndQuestions},
	ScoreUpdate: {Conversation},
	GradeAnswer: {Context, Question, Answer, Input},
}

var (
	learnerAnswerRegex      = regexp.MustCompile(`(?i)</?\s*learner-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// MaxInputRunes caps learner text spliced into a prompt.
const MaxInputRunes = 10000

// Set holds the loaded prompt templates.
type Set struct {
	templates map[Name]string
}

// Default returns the embedded templates.
func Default() *Set {
	s, err := LoadFS(defaults, "templates")
	if err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return s
}

// Load reads the embedded templates and replaces each one for which dir
// holds a <name>.txt file. An empty dir means defaults only.
func Load(dir string) (*Set, error) {
	s := Default()
	if dir == "" {
		return s, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("prompts dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompts dir %s is not a directory", dir)
	}
	for name := range required {
		path := filepath.Join(dir, string(name)+".txt")
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		if err := check(name, string(data)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.templates[name] = string(data)
	}
	return s, nil
}

// LoadFS reads every template from dir inside fsys.
func LoadFS(fsys fs.FS, dir string) (*Set, error) {
	s := &Set{templates: make(map[Name]string, len(required))}
	for name := range required {
		file := dir + "/" + string(name) + ".txt"
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", file, err)
		}
		if err := check(name, string(data)); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		s.templates[name] = string(data)
	}
	return s, nil
}

func check(name Name, text string) error {
	var missing []string
	for _, ph := range required[name] {
		if !strings.Contains(text, ph) {
			missing = append(missing, ph)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("prompt %s is missing placeholder %s", name, strings.Join(missing, ", "))
	}
	return nil
}

// Template returns the raw template text.
func (s *Set) Template(name Name) string {
	return s.templates[name]
}

// Fill replaces the placeholders of a template in a single pass, so values
// that happen to contain placeholder text are left alone.
func (s *Set) Fill(name Name, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for ph, v := range values {
		pairs = append(pairs, ph, v)
	}
	return strings.NewReplacer(pairs...).Replace(s.templates[name])
}

var (
	escaper   = strings.NewReplacer("{", "{{", "}", "}}")
	unescaper = strings.NewReplacer("{{", "{", "}}", "}")
)

// Prompt is a template with a payload spliced in. Braces in the template
// text are doubled; the payload is kept verbatim and its bounds remembered.
type Prompt struct {
	Text         string
	payloadStart int
	payloadEnd   int
}

// Embed substitutes payload for the first occurrence of placeholder.
func Embed(template, placeholder, payload string) Prompt {
	i := strings.Index(template, placeholder)
	if i < 0 {
		text := escaper.Replace(template)
		return Prompt{Text: text, payloadStart: len(text), payloadEnd: len(text)}
	}
	head := escaper.Replace(template[:i])
	tail := escaper.Replace(template[i+len(placeholder):])
	return Prompt{
		Text:         head + payload + tail,
		payloadStart: len(head),
		payloadEnd:   len(head) + len(payload),
	}
}

// Payload returns the spliced-in text.
func (p Prompt) Payload() string {
	return p.Text[p.payloadStart:p.payloadEnd]
}

// Resolve undoes the brace escaping of the template text. The payload is
// returned untouched.
func (p Prompt) Resolve() string {
	return unescaper.Replace(p.Text[:p.payloadStart]) +
		p.Text[p.payloadStart:p.payloadEnd] +
		unescaper.Replace(p.Text[p.payloadEnd:])
}

// Sanitize strips tags a learner could use to break out of the answer block,
// trims whitespace and caps the length.
func Sanitize(input string) string {
	input = learnerAnswerRegex.ReplaceAllString(input, "")
	input = systemInstructionsRegex.ReplaceAllString(input, "")
	input = strings.TrimSpace(input)

	if input == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(input) > MaxInputRunes {
		runes := []rune(input)
		input = string(runes[:MaxInputRunes]) + "\n\n[Answer truncated due to length]"
	}
	return input
}
