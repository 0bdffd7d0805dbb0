package internal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Progress is a single status line that is updated as work advances. On a
// terminal it animates a spinner; elsewhere each message is logged once.
type Progress struct {
	w   io.Writer
	tty bool

	mu      sync.Mutex
	message string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewProgress starts a status line on stderr
func NewProgress(message string) *Progress {
	return newProgress(os.Stderr, isTerminal(os.Stderr), message)
}

func newProgress(w io.Writer, tty bool, message string) *Progress {
	p := &Progress{w: w, tty: tty, message: message, stop: make(chan struct{}), done: make(chan struct{})}
	if !tty {
		LogInfo("%s", message)
		close(p.done)
		return p
	}
	go p.spin()
	return p
}

func (p *Progress) spin() {
	defer close(p.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			fmt.Fprintf(p.w, "\r\033[K%s %s", progressStyle.Render(spinnerFrames[i%len(spinnerFrames)]), p.message)
			p.mu.Unlock()
		}
	}
}

// Update replaces the message shown
func (p *Progress) Update(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if message == p.message {
		return
	}
	p.message = message
	if !p.tty {
		LogDebug("%s", message)
	}
}

// Finish stops the spinner and leaves a final line marked with the outcome.
// Later calls do nothing.
func (p *Progress) Finish(err error) {
	p.once.Do(func() {
		close(p.stop)
		<-p.done
		if !p.tty {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		mark := successStyle.Render("✓")
		if err != nil {
			mark = errorStyle.Render("✗")
		}
		fmt.Fprintf(p.w, "\r\033[K%s %s\n", mark, p.message)
	})
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// IsTerminal reports whether stdin is attached to a terminal.
func IsTerminal() bool {
	return isTerminal(os.Stdin)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	if isTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", successStyle.Render("✓"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintError prints an error message
func PrintError(message string) {
	if isTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		fmt.Fprintf(os.Stderr, "%s\n", message)
	}
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	if isTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	if isTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", message)
	}
}
