// Package browser provides the surfaces an authorization page is shown in.
//
// SystemOpener launches the platform browser for the CLI. ClientOpener is
// used by the server, where the page is opened by whichever client asked
// for it and the server only keeps track of the surface.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/teemow/mailsense/internal/logging"
)

// Command returns the command that opens url on goos, or nil when the
// platform is not supported.
func Command(goos, url string) *exec.Cmd {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		return exec.Command("open", url)
	default:
		return nil
	}
}

// SystemOpener opens authorization pages in the local default browser.
type SystemOpener struct {
	out     io.Writer
	logger  *slog.Logger
	command func(url string) *exec.Cmd
}

// NewSystemOpener returns an opener that also prints the URL to out so it
// can be opened by hand. out may be nil.
func NewSystemOpener(out io.Writer, logger *slog.Logger) *SystemOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemOpener{
		out:    out,
		logger: logging.WithComponent(logger, "browser"),
		command: func(url string) *exec.Cmd {
			return Command(runtime.GOOS, url)
		},
	}
}

// Open implements auth.SurfaceOpener. A browser that cannot be launched is
// not an error as long as the URL could be printed.
func (o *SystemOpener) Open(_ context.Context, url string) (string, error) {
	if o.out != nil {
		fmt.Fprintf(o.out, "Open this URL to authorize mailsense:\n\n  %s\n\n", url)
	}

	cmd := o.command(url)
	if cmd == nil {
		if o.out == nil {
			return "", fmt.Errorf("cannot open a browser on %s", runtime.GOOS)
		}
		return "system-" + uuid.NewString(), nil
	}
	if err := cmd.Start(); err != nil {
		if o.out == nil {
			return "", fmt.Errorf("failed to open browser: %w", err)
		}
		o.logger.Debug("Could not launch browser", logging.Err(err))
		return "system-" + uuid.NewString(), nil
	}
	go func() { _ = cmd.Wait() }()
	return "system-" + uuid.NewString(), nil
}

// Close implements auth.SurfaceOpener. Browser tabs are left to the user.
func (o *SystemOpener) Close(context.Context, string) error {
	return nil
}

// ClientOpener tracks surfaces opened by remote clients.
type ClientOpener struct {
	mu   sync.Mutex
	urls map[string]string
}

// NewClientOpener returns an empty ClientOpener.
func NewClientOpener() *ClientOpener {
	return &ClientOpener{urls: make(map[string]string)}
}

// Open implements auth.SurfaceOpener.
func (o *ClientOpener) Open(_ context.Context, url string) (string, error) {
	id := "client-" + uuid.NewString()
	o.mu.Lock()
	o.urls[id] = url
	o.mu.Unlock()
	return id, nil
}

// Close implements auth.SurfaceOpener.
func (o *ClientOpener) Close(_ context.Context, surfaceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.urls[surfaceID]; !ok {
		return fmt.Errorf("unknown surface %q", surfaceID)
	}
	delete(o.urls, surfaceID)
	return nil
}

// URL returns the page shown in an open surface.
func (o *ClientOpener) URL(surfaceID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	url, ok := o.urls[surfaceID]
	return url, ok
}

// Len returns the number of open surfaces.
func (o *ClientOpener) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.urls)
}
