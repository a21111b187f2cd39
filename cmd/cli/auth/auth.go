package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/davmie/userbase/cmd/cli/config"
	"github.com/davmie/userbase/cmd/cli/output"
	"github.com/davmie/userbase/cmd/cli/root"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// ==========================
// CLI Command Init
// ==========================
func init() {
	root.GetRoot().AddCommand(registerCmd(), loginCmd(), logoutCmd(), whoamiCmd())
}

// ==========================
// Register
// ==========================
func registerCmd() *cobra.Command {
	var username, email, firstName, lastName string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account",
		Long:  "Register a new account with the Userbase API. Prompts for the password.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || email == "" {
				return fmt.Errorf("--username and --email are required")
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}

			payload := map[string]string{
				"username":  username,
				"email":     email,
				"password":  password,
				"firstName": firstName,
				"lastName":  lastName,
			}
			if err := postJSON("/auth/register", payload, nil); err != nil {
				return err
			}

			fmt.Println("User registered successfully. You can now login.")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username for the new account")
	cmd.Flags().StringVar(&email, "email", "", "Email for the new account")
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")

	return cmd
}

// ==========================
// Login
// ==========================
func loginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the Userbase API",
		Long:  "Authenticate and store a JWT token locally for subsequent CLI commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}

			var loginResp struct {
				Token string `json:"token"`
			}
			payload := map[string]string{"username": username, "password": password}
			if err := postJSON("/auth/login", payload, &loginResp); err != nil {
				return err
			}
			if loginResp.Token == "" {
				return fmt.Errorf("login succeeded but no token returned")
			}

			if err := config.SaveToken(loginResp.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Println("Login successful. Token stored locally.")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username to authenticate as")

	return cmd
}

// ==========================
// Logout
// ==========================
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out",
		Long:  "Remove the locally stored JWT token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !config.HasToken() {
				fmt.Println("No user logged in.")
				return nil
			}
			if err := config.ClearToken(); err != nil {
				return err
			}
			fmt.Println("Logged out successfully.")
			return nil
		},
	}
}

// ==========================
// Whoami
// ==========================
func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity",
		Long:  "Decode the locally stored token and print its claims. No API call is made.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenStr, err := config.LoadToken()
			if err != nil {
				return fmt.Errorf("not logged in")
			}

			// Decode without verifying; the API is the authority on validity.
			claims := jwt.MapClaims{}
			if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
				return fmt.Errorf("stored token is not decodable: %w", err)
			}

			sub, _ := claims.GetSubject()
			username, _ := claims["username"].(string)
			email, _ := claims["email"].(string)

			roles := ""
			switch v := claims["roles"].(type) {
			case []interface{}:
				for i, r := range v {
					if s, ok := r.(string); ok {
						if i > 0 {
							roles += ", "
						}
						roles += s
					}
				}
			case string:
				roles = v
			}

			expires := "unknown"
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				expires = exp.Format(time.RFC3339)
				if !exp.After(time.Now()) {
					expires += " (expired)"
				}
			}

			output.RenderKV([][2]interface{}{
				{"User ID", sub},
				{"Username", username},
				{"Email", email},
				{"Roles", roles},
				{"Expires", expires},
			})
			return nil
		},
	}
}

// ==========================
// Helpers
// ==========================

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("password is required")
	}
	return string(data), nil
}

func postJSON(path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", config.APIURL()+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return err
		}
	}

	return nil
}
