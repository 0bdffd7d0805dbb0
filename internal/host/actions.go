package host

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
)

// Actions performs the one-way host side effects requested by the sandbox
type Actions interface {
	CopyToClipboard(value string) error
	OpenURL(rawURL string) error
}

// SystemActions uses the OS clipboard and default browser
type SystemActions struct{}

func (SystemActions) CopyToClipboard(value string) error {
	return clipboard.WriteAll(value)
}

func (SystemActions) OpenURL(rawURL string) error {
	if err := checkURL(rawURL); err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	return cmd.Start()
}

// checkURL only lets web links through; the sandbox must not be able to
// launch local files or custom protocol handlers.
func checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open %q: only http and https links are allowed", rawURL)
	}
	return nil
}
