package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/davmie/userbase/cmd/cli/config"
	"github.com/davmie/userbase/cmd/cli/output"
	"github.com/davmie/userbase/cmd/cli/root"
	"github.com/spf13/cobra"
)

type user struct {
	ID        int      `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	IsActive  bool     `json:"isActive"`
	Roles     []string `json:"roles"`
}

// ==========================
// CLI Command Init
// ==========================
func init() {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
		Long:  "List, inspect, create, update and delete users. Most operations require an Admin token.",
	}

	usersCmd.AddCommand(listCmd(), getCmd(), createCmd(), updateCmd(), deleteCmd())
	root.GetRoot().AddCommand(usersCmd)
}

// ==========================
// List Users
// ==========================
func listCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/users?limit=%d&offset=%d", limit, offset)

			var users []user
			if err := apiRequest("GET", path, nil, &users); err != nil {
				return err
			}

			rows := make([][]interface{}, 0, len(users))
			for _, u := range users {
				rows = append(rows, []interface{}{
					u.ID, u.Username, u.Email,
					strings.TrimSpace(u.FirstName + " " + u.LastName),
					u.IsActive, strings.Join(u.Roles, ","),
				})
			}
			output.RenderTable([]string{"ID", "Username", "Email", "Name", "Active", "Roles"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of users to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of users to skip")

	return cmd
}

// ==========================
// Get User
// ==========================
func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %s", args[0])
			}

			var u user
			if err := apiRequest("GET", fmt.Sprintf("/users/%d", id), nil, &u); err != nil {
				return err
			}

			output.RenderKV([][2]interface{}{
				{"ID", u.ID},
				{"Username", u.Username},
				{"Email", u.Email},
				{"First name", u.FirstName},
				{"Last name", u.LastName},
				{"Active", u.IsActive},
				{"Roles", strings.Join(u.Roles, ", ")},
			})
			return nil
		},
	}
}

// ==========================
// Create User
// ==========================
func createCmd() *cobra.Command {
	var username, email, password, firstName, lastName string
	var roles []string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (Admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || email == "" || password == "" {
				return fmt.Errorf("--username, --email and --password are required")
			}

			payload := map[string]interface{}{
				"username":  username,
				"email":     email,
				"password":  password,
				"firstName": firstName,
				"lastName":  lastName,
				"isActive":  !inactive,
				"roles":     roles,
			}

			var created user
			if err := apiRequest("POST", "/users", payload, &created); err != nil {
				return err
			}

			fmt.Printf("Created user %d (%s)\n", created.ID, created.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to assign (repeatable)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the user as inactive")

	return cmd
}

// ==========================
// Update User
// ==========================
func updateCmd() *cobra.Command {
	var username, email, password, firstName, lastName string
	var roles []string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a user",
		Long:  "Replace a user's profile. Fetches the current record first so omitted flags keep their values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %s", args[0])
			}

			// The API replaces the record wholesale, so start from the
			// current one and overlay the provided flags.
			var current user
			if err := apiRequest("GET", fmt.Sprintf("/users/%d", id), nil, &current); err != nil {
				return err
			}

			if cmd.Flags().Changed("username") {
				current.Username = username
			}
			if cmd.Flags().Changed("email") {
				current.Email = email
			}
			if cmd.Flags().Changed("first-name") {
				current.FirstName = firstName
			}
			if cmd.Flags().Changed("last-name") {
				current.LastName = lastName
			}
			if cmd.Flags().Changed("role") {
				current.Roles = roles
			}
			if cmd.Flags().Changed("inactive") {
				current.IsActive = !inactive
			}

			payload := map[string]interface{}{
				"id":        current.ID,
				"username":  current.Username,
				"email":     current.Email,
				"firstName": current.FirstName,
				"lastName":  current.LastName,
				"isActive":  current.IsActive,
				"roles":     current.Roles,
			}
			if cmd.Flags().Changed("password") {
				payload["password"] = password
			}

			if err := apiRequest("PUT", fmt.Sprintf("/users/%d", id), payload, nil); err != nil {
				return err
			}

			fmt.Printf("Updated user %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "New username")
	cmd.Flags().StringVar(&email, "email", "", "New email address")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	cmd.Flags().StringVar(&firstName, "first-name", "", "New first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "New last name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Replace roles (repeatable)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Deactivate the user")

	return cmd
}

// ==========================
// Delete User
// ==========================
func deleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user (Admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %s", args[0])
			}

			if !yes {
				fmt.Printf("Delete user %d? [y/N]: ", id)
				var answer string
				fmt.Scanln(&answer)
				if answer != "y" && answer != "Y" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := apiRequest("DELETE", fmt.Sprintf("/users/%d", id), nil, nil); err != nil {
				return err
			}

			fmt.Printf("Deleted user %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// ==========================
// API Helper
// ==========================

// apiRequest performs an authenticated call against the Userbase API and
// decodes the JSON response into out when provided.
func apiRequest(method, path string, payload interface{}, out interface{}) error {
	token, err := config.LoadToken()
	if err != nil {
		return fmt.Errorf("not logged in: run 'userbase login' first")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, config.APIURL()+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Stored token is stale; drop it so the next command prompts a login.
		_ = config.ClearToken()
		return fmt.Errorf("session expired: run 'userbase login' again")
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("forbidden: this command requires the Admin role")
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return err
		}
	}

	return nil
}
