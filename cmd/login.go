package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/pkg/browser"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"ptitcal/internal/callback"
	"ptitcal/internal/google"
)

const loginTimeout = 5 * time.Minute

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in to PTIT and store the refresh token.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-browser", Usage: "Print the login URL instead of opening a browser."},
			&cli.BoolFlag{Name: "manual", Usage: "Paste the redirect URL instead of running a local callback server."},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			sess, err := e.openSession(c.Context)
			if err != nil {
				return err
			}

			authURL, ok := sess.Authorize()
			if ok {
				fmt.Println("Already logged in.")
				return nil
			}

			var response string
			if c.Bool("manual") {
				showURL(e, authURL, c.Bool("no-browser"))
				response, err = promptRedirect()
			} else {
				response, err = awaitRedirect(c.Context, e, e.cfg.RedirectURL, authURL, c.Bool("no-browser"))
			}
			if err != nil {
				return err
			}

			if err := sess.Exchange(c.Context, response); err != nil {
				return err
			}

			if id, err := sess.Identity(); err == nil && id.PreferredUsername != "" {
				fmt.Printf("Logged in as %s.\n", id.PreferredUsername)
			} else {
				fmt.Println("Logged in.")
			}
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored refresh token.",
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			sess, err := e.openSession(c.Context)
			if err != nil {
				return err
			}
			if err := sess.Logout(c.Context); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the session state.",
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			sess, err := e.openSession(c.Context)
			if err != nil {
				return err
			}

			st := sess.Status()
			fmt.Printf("State:       %s\n", st.State)
			fmt.Printf("Token store: %s\n", e.cfg.TokenStore.Backend)
			if !st.ExpiresAt.IsZero() {
				fmt.Printf("Expires at:  %s\n", st.ExpiresAt.Local().Format(time.RFC1123))
			}
			if st.LastError != nil {
				fmt.Printf("Last error:  %v\n", st.LastError)
			}
			if id, err := sess.Identity(); err == nil {
				fmt.Printf("User:        %s\n", id.PreferredUsername)
				if id.Name != "" {
					fmt.Printf("Name:        %s\n", id.Name)
				}
				if id.Email != "" {
					fmt.Printf("Email:       %s\n", id.Email)
				}
			}
			return nil
		},
	}
}

func googleAuthCommand() *cli.Command {
	return &cli.Command{
		Name:  "google-auth",
		Usage: "Authenticate with a Google account to publish events to Google Calendar.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-browser", Usage: "Print the login URL instead of opening a browser."},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			e.logger.Info("Starting Google authentication flow.")

			gcfg := e.cfg.Sync.Google
			oauthCfg, err := google.OAuthConfig(gcfg)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			state := uuid.NewString()
			authURL := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			response, err := awaitRedirect(c.Context, e, gcfg.RedirectURL, authURL, c.Bool("no-browser"))
			if err != nil {
				return err
			}

			code, err := codeFromRedirect(response, state)
			if err != nil {
				return err
			}

			ctx := context.WithValue(c.Context, oauth2.HTTPClient, e.client)
			token, err := google.TokenFromWeb(ctx, oauthCfg, code)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			if err := google.SaveToken(afero.NewOsFs(), gcfg.TokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			e.logger.Info("Successfully authenticated and saved token.", "file", gcfg.TokenFile)
			return nil
		},
	}
}

// awaitRedirect serves redirectURL locally, sends the user to authURL and
// returns the redirect the provider sent back.
func awaitRedirect(ctx context.Context, e *env, redirectURL, authURL string, noBrowser bool) (string, error) {
	recv, err := callback.Listen(redirectURL, e.logger)
	if err != nil {
		return "", err
	}
	defer recv.Close()

	showURL(e, authURL, noBrowser)

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	response, err := recv.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("no redirect received: %w", err)
	}
	return response, nil
}

func showURL(e *env, authURL string, noBrowser bool) {
	if !noBrowser {
		err := browser.OpenURL(authURL)
		if err == nil {
			fmt.Println("Your browser has been opened to sign in. If it did not open, visit:")
			fmt.Println(authURL)
			return
		}
		e.logger.Warn("Could not open a browser.", "error", err)
	}
	fmt.Printf("Go to the following link in your browser to sign in:\n%v\n", authURL)
}

func promptRedirect() (string, error) {
	prompt := promptui.Prompt{
		Label: "Paste the URL you were redirected to",
		Validate: func(input string) error {
			if !strings.Contains(input, "code=") && !strings.Contains(input, "error=") {
				return errors.New("the URL should contain code= or error=")
			}
			return nil
		},
	}
	return prompt.Run()
}

func codeFromRedirect(response, state string) (string, error) {
	u, err := url.Parse(response)
	if err != nil {
		return "", fmt.Errorf("malformed redirect: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("google returned %s", e)
	}
	if q.Get("state") != state {
		return "", errors.New("redirect state does not match the request")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect has no code")
	}
	return code, nil
}
