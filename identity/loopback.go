package identity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jrsteele09/korebog/session"
	"github.com/pkg/errors"
)

const CallbackPath = "/callback"

const loginDonePage = `<!doctype html><html><body><p>Login complete. You can close this window.</p></body></html>`

// CallbackHandler finishes the code flow and reports the outcome to done exactly once
// per request.
func (c *Client) CallbackHandler(done func(session.Grant, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		if errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, errorDesc), http.StatusBadRequest)
			done(session.Grant{}, errors.Errorf("authorization failed: %s - %s", errorParam, errorDesc))
			return
		}

		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		grant, err := c.Exchange(r.Context(), code, state)
		if err != nil {
			http.Error(w, fmt.Sprintf("Login failed: %v", err), http.StatusUnauthorized)
			done(session.Grant{}, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(loginDonePage))
		done(grant, nil)
	}
}

// LoopbackLogin runs an interactive login through a temporary callback server on addr
// (use "127.0.0.1:0" for any free port). open is handed the consent URL; it usually
// launches the browser.
func LoopbackLogin(ctx context.Context, c *Client, addr, loginHint string, open func(string) error) (session.Grant, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return session.Grant{}, errors.Wrap(err, "[LoopbackLogin] listen")
	}

	flowClient := c.WithRedirectURL("http://" + ln.Addr().String() + CallbackPath)

	type outcome struct {
		grant session.Grant
		err   error
	}
	results := make(chan outcome, 1)
	report := func(g session.Grant, err error) {
		select {
		case results <- outcome{grant: g, err: err}:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, flowClient.CallbackHandler(report))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(session.Grant{}, errors.Wrap(err, "[LoopbackLogin] serve"))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL, _, err := flowClient.AuthCodeURL(loginHint)
	if err != nil {
		return session.Grant{}, err
	}
	if err := open(authURL); err != nil {
		return session.Grant{}, errors.Wrap(err, "[LoopbackLogin] open consent page")
	}

	select {
	case res := <-results:
		return res.grant, res.err
	case <-ctx.Done():
		return session.Grant{}, ctx.Err()
	}
}
