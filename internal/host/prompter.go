package host

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// Decision is the user's answer to an external file access prompt
type Decision int

const (
	Deny Decision = iota
	Allow
	AllowAndRemember
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case AllowAndRemember:
		return "remember"
	default:
		return "deny"
	}
}

// Prompter asks the user for decisions the sandbox cannot make itself.
type Prompter interface {
	// AskFileAccess asks whether the sandbox may read path.
	AskFileAccess(ctx context.Context, path string) (Decision, error)
	// SaveLocation asks where to save an export. An empty result means the
	// user cancelled.
	SaveLocation(ctx context.Context, defaultName, format string) (string, error)
}

const (
	optionAllow    = "Allow"
	optionRemember = "Allow and Remember"
	optionDeny     = "Deny"
)

// SurveyPrompter prompts on the terminal
type SurveyPrompter struct {
	askOne func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error
}

// NewSurveyPrompter creates a terminal prompter
func NewSurveyPrompter() *SurveyPrompter {
	return &SurveyPrompter{askOne: survey.AskOne}
}

func (p *SurveyPrompter) AskFileAccess(ctx context.Context, path string) (Decision, error) {
	answer := ""
	err := p.askOne(&survey.Select{
		Message: fmt.Sprintf("A query wants to read %s, which is outside the loaded file. Allow access?", path),
		Options: []string{optionAllow, optionRemember, optionDeny},
		Default: optionDeny,
	}, &answer)
	if err == terminal.InterruptErr {
		return Deny, nil
	}
	if err != nil {
		return Deny, err
	}

	switch answer {
	case optionAllow:
		return Allow, nil
	case optionRemember:
		return AllowAndRemember, nil
	default:
		return Deny, nil
	}
}

func (p *SurveyPrompter) SaveLocation(ctx context.Context, defaultName, format string) (string, error) {
	path := ""
	err := p.askOne(&survey.Input{
		Message: fmt.Sprintf("Save %s export as", format),
		Default: defaultName,
	}, &path)
	if err == terminal.InterruptErr {
		return "", nil
	}
	return path, err
}

// StaticPrompter answers every prompt the same way without user interaction
type StaticPrompter struct {
	Decision Decision
	// SaveDir, when set, is joined with the suggested name; otherwise the
	// suggested name is used as is.
	SaveDir string
	// Cancel makes SaveLocation behave like a dismissed dialog.
	Cancel bool

	mu    sync.Mutex
	asked []string
}

func (p *StaticPrompter) AskFileAccess(ctx context.Context, path string) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, path)
	return p.Decision, nil
}

func (p *StaticPrompter) SaveLocation(ctx context.Context, defaultName, format string) (string, error) {
	switch {
	case p.Cancel:
		return "", nil
	case p.SaveDir == "":
		return defaultName, nil
	}
	return filepath.Join(p.SaveDir, defaultName), nil
}

// Asked returns the paths the prompter has been asked about, in order
func (p *StaticPrompter) Asked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.asked...)
}
