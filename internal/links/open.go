package links

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Opener opens a URL outside the current process.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

// Open implements Opener.
func (f OpenerFunc) Open(url string) error { return f(url) }

// BrowserOpener starts the platform's default browser in a detached process.
// The child is released immediately so it keeps no handle back to us.
type BrowserOpener struct{}

// Open implements Opener.
func (BrowserOpener) Open(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// CheckOpenURL accepts only absolute http(s) URLs.
func CheckOpenURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: "url", Message: fmt.Sprintf("cannot open %q: only http:// and https:// links are supported", raw)}
	}
	return nil
}
