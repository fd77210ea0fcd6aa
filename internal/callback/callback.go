// Package callback receives a single OAuth2 redirect on a loopback address.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Receiver serves the redirect URI until the first matching request arrives.
type Receiver struct {
	ln     net.Listener
	srv    *http.Server
	path   string
	logger *slog.Logger

	once   sync.Once
	result chan string
}

// Listen binds to the host and port of redirectURL and starts serving.
func Listen(redirectURL string, logger *slog.Logger) (*Receiver, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect url %q must be an http loopback address", redirectURL)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	r := &Receiver{
		ln:     ln,
		path:   u.Path,
		logger: logger,
		result: make(chan string, 1),
	}
	if r.path == "" {
		r.path = "/"
	}
	r.srv = &http.Server{
		Handler:           http.HandlerFunc(r.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Callback server stopped", "error", err)
		}
	}()
	logger.Debug("Waiting for authorization redirect.", "addr", ln.Addr().String(), "path", r.path)
	return r, nil
}

// Addr is the address actually bound, useful when the port was 0.
func (r *Receiver) Addr() string {
	return r.ln.Addr().String()
}

func (r *Receiver) handle(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != r.path {
		http.NotFound(w, req)
		return
	}

	full := "http://" + req.Host + req.URL.RequestURI()
	r.once.Do(func() { r.result <- full })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if e := req.URL.Query().Get("error"); e != "" {
		fmt.Fprintf(w, "<p>Login failed: %s</p>", html.EscapeString(e))
		return
	}
	fmt.Fprint(w, "<p>Login complete. You can close this window.</p>")
}

// Wait returns the full redirect URL of the first request to the redirect path.
func (r *Receiver) Wait(ctx context.Context) (string, error) {
	select {
	case v := <-r.result:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the server.
func (r *Receiver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.srv.Shutdown(ctx)
}
