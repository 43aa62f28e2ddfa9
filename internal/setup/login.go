// Package setup implements the interactive CLI flows: OAuth login for both
// providers, long-lived token setup and credential status display.
package setup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/roelfdiedericks/clawgate/internal/auth"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// callbackAddr is where the OpenAI issuer redirects after authorization.
// The port is fixed by the registered redirect URI.
const callbackAddr = "127.0.0.1:1455"

// Login runs the interactive OAuth flow for one provider and persists the
// resulting token bundle.
func Login(provider auth.Provider, store *auth.Store, longTerm bool) error {
	pkce, err := auth.GeneratePKCE()
	if err != nil {
		return fmt.Errorf("failed to generate PKCE material: %w", err)
	}
	if err := pkce.Persist(); err != nil {
		L_warn("setup: could not persist PKCE state", "error", err)
	}

	authorizeURL := auth.BuildAuthorizeURL(provider, pkce, longTerm)

	fmt.Println()
	fmt.Println(titleStyle.Render("Authorize clawgate"))
	fmt.Println()
	fmt.Println("Open this URL in your browser and sign in:")
	fmt.Println()
	fmt.Println(urlStyle.Render(authorizeURL))
	fmt.Println()

	var code string
	switch provider {
	case auth.ProviderAnthropic:
		code, err = promptForCode()
	case auth.ProviderChatGPT:
		code, err = waitForCallback()
		if err != nil {
			L_warn("setup: callback capture failed, falling back to manual paste", "error", err)
			code, err = promptForCode()
		}
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("login cancelled")
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := auth.NewClient()
	bundle, err := client.Exchange(ctx, provider, code, pkce, longTerm)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	if err := store.Save(bundle); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	fmt.Println(okStyle.Render("Authentication successful."))
	fmt.Printf("Tokens saved to %s\n", store.Path())
	return nil
}

// promptForCode asks the user to paste the authorization code shown by the
// issuer after sign-in.
func promptForCode() (string, error) {
	var code string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Authorization code").
				Description("Paste the code shown after signing in").
				Value(&code).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("code cannot be empty")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// waitForCallback runs a one-shot HTTP listener on the registered redirect
// address and captures the authorization code.
func waitForCallback() (string, error) {
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	server := &http.Server{Addr: callbackAddr, Handler: mux}

	mux.HandleFunc("/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			results <- result{err: errors.New("callback received no code parameter")}
			return
		}
		fmt.Fprintln(w, "Authentication complete. You can close this tab.")
		results <- result{code: code}
	})

	errs := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	fmt.Println("Waiting for the browser callback on http://" + callbackAddr + "/auth/callback ...")

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	select {
	case r := <-results:
		return r.code, r.err
	case err := <-errs:
		return "", fmt.Errorf("callback listener failed: %w", err)
	case <-time.After(5 * time.Minute):
		return "", errors.New("timed out waiting for browser callback")
	}
}

// SetupToken stores a pasted long-lived Anthropic token directly, without
// running the browser flow.
func SetupToken(store *auth.Store) error {
	var token string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Long-lived OAuth token").
				Description("Paste a token obtained via 'clawgate login --long-term'").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("token cannot be empty")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("setup cancelled")
		}
		return err
	}

	bundle := &auth.Bundle{
		AccessToken: strings.TrimSpace(token),
		TokenType:   auth.TokenTypeLongTerm,
	}
	if err := store.Save(bundle); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Println(okStyle.Render("Token saved."))
	fmt.Printf("Tokens saved to %s\n", store.Path())
	return nil
}
