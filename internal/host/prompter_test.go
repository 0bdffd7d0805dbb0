package host

import (
	"context"
	"errors"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

func scripted(answer string, err error) func(survey.Prompt, interface{}, ...survey.AskOpt) error {
	return func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
		if err != nil {
			return err
		}
		*response.(*string) = answer
		return nil
	}
}

func TestSurveyPrompter_AskFileAccess(t *testing.T) {
	boom := errors.New("no tty")
	tests := []struct {
		name    string
		answer  string
		err     error
		want    Decision
		wantErr bool
	}{
		{name: "allow", answer: optionAllow, want: Allow},
		{name: "remember", answer: optionRemember, want: AllowAndRemember},
		{name: "deny", answer: optionDeny, want: Deny},
		{name: "interrupt denies", err: terminal.InterruptErr, want: Deny},
		{name: "terminal error", err: boom, want: Deny, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SurveyPrompter{askOne: scripted(tt.answer, tt.err)}
			got, err := p.AskFileAccess(context.Background(), "/data/other.csv")
			if (err != nil) != tt.wantErr {
				t.Fatalf("AskFileAccess() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("AskFileAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSurveyPrompter_SaveLocation(t *testing.T) {
	p := &SurveyPrompter{askOne: scripted("/tmp/out.csv", nil)}
	got, err := p.SaveLocation(context.Background(), "cell.csv", "csv")
	if err != nil || got != "/tmp/out.csv" {
		t.Errorf("SaveLocation() = %q, %v", got, err)
	}

	p = &SurveyPrompter{askOne: scripted("", terminal.InterruptErr)}
	got, err = p.SaveLocation(context.Background(), "cell.csv", "csv")
	if err != nil || got != "" {
		t.Errorf("SaveLocation() after interrupt = %q, %v; want cancel", got, err)
	}
}

func TestStaticPrompter(t *testing.T) {
	p := &StaticPrompter{Decision: Allow}
	if d, _ := p.AskFileAccess(context.Background(), "/a"); d != Allow {
		t.Errorf("AskFileAccess() = %v", d)
	}
	if got, _ := p.SaveLocation(context.Background(), "x.csv", "csv"); got != "x.csv" {
		t.Errorf("SaveLocation() = %q, want x.csv", got)
	}
	p.SaveDir = "/exports"
	if got, _ := p.SaveLocation(context.Background(), "x.csv", "csv"); got != "/exports/x.csv" {
		t.Errorf("SaveLocation() = %q, want /exports/x.csv", got)
	}
	if asked := p.Asked(); len(asked) != 1 || asked[0] != "/a" {
		t.Errorf("Asked() = %v", asked)
	}
}

func TestCheckURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://duckdb.org/docs"},
		{url: "http://localhost:8080/"},
		{url: "file:///etc/passwd", wantErr: true},
		{url: "javascript:alert(1)", wantErr: true},
		{url: "vscode://settings", wantErr: true},
		{url: "://bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if err := checkURL(tt.url); (err != nil) != tt.wantErr {
				t.Errorf("checkURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestDecisionString(t *testing.T) {
	for d, want := range map[Decision]string{Deny: "deny", Allow: "allow", AllowAndRemember: "remember"} {
		if got := d.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", d, got, want)
		}
	}
}
