package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"igmonitor/pkg/auth"
	"igmonitor/pkg/instagram"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ui"
)

var verifyLogin bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Instagram sessions",
	Long: `Manage the Instagram web sessions used to collect followers and followees.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

Never share your session cookies or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store an Instagram session securely",
	Long: `Store the cookies of a logged-in Instagram web session.

You can paste the whole Cookie request header, or enter the sessionid and
csrftoken values one at a time (they are hidden as you type).`,
	Example: `  # Interactive login
  igmonitor auth login

  # Login and check the session against Instagram
  igmonitor auth login myusername --verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove a stored session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"list"},
	Short:   "List stored sessions",
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, statusCmd)

	loginCmd.Flags().BoolVar(&verifyLogin, "verify", false, "load the account's profile with the new session before storing it")
}

func newManager() (*auth.Manager, error) {
	dir, err := auth.DefaultDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(dir, logger.GetLogger())
}

// askYesNo reads a y/n answer; an empty answer picks def
func askYesNo(in io.Reader, question string, def bool) bool {
	hint := "(y/N)"
	if def {
		hint = "(Y/n)"
	}
	fmt.Fprintf(console.Out, "%s %s: ", question, hint)
	answer, err := ui.ReadLine(in)
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "":
		return def
	case "y", "yes":
		return true
	}
	return false
}

// readAccount collects the session cookies, either from a pasted Cookie
// header or value by value
func readAccount(in io.Reader) (*auth.Account, error) {
	first, err := ui.ReadSecret(in, console.Out, "Cookie header or sessionid value: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if strings.Contains(first, "=") {
		account := auth.ParseCookieHeader(first)
		if account == nil {
			return nil, fmt.Errorf("no sessionid cookie in the pasted header")
		}
		if account.CSRFToken != "" {
			return account, nil
		}
		first = account.SessionID
	}

	csrf, err := ui.ReadSecret(in, console.Out, "csrftoken value: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read CSRF token: %w", err)
	}
	return &auth.Account{SessionID: first, CSRFToken: csrf}, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := newManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	in := os.Stdin
	auth.WriteCookieGuide(console.Out)

	username := ""
	if len(args) > 0 {
		username = args[0]
	}
	if username == "" {
		fmt.Fprint(console.Out, "Instagram username: ")
		if username, err = ui.ReadLine(in); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}
	username = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))

	if existing, _ := manager.Retrieve(username); existing != nil {
		if !askYesNo(in, fmt.Sprintf("A session for '%s' is already stored. Replace it?", username), false) {
			return nil
		}
	}

	account, err := readAccount(in)
	if err != nil {
		return err
	}
	account.Username = username
	if account.UserID == "" {
		account.UserID = auth.UserIDFromSession(account.SessionID)
	}
	if err := account.Validate(); err != nil {
		return err
	}

	if verifyLogin {
		client := instagram.NewClient(instagram.OptionsFromConfig(cfg.Source), logger.GetLogger())
		client.SetSession(account.Session())
		user, err := client.FetchUserProfile(cmd.Context(), username)
		if err != nil {
			return fmt.Errorf("session check failed: %w", err)
		}
		console.PrintInfo("Verified", fmt.Sprintf("@%s (%d followers, %d following)",
			user.Username, user.EdgeFollowedBy.Count, user.EdgeFollow.Count))
	}

	sanitized := auth.SanitizeAccount(account)
	fmt.Fprintln(console.Out, "\nSummary:")
	fmt.Fprintf(console.Out, "   Username: %s\n", sanitized.Username)
	fmt.Fprintf(console.Out, "   Session ID: %s\n", sanitized.SessionID)
	fmt.Fprintf(console.Out, "   CSRF Token: %s\n", sanitized.CSRFToken)
	if sanitized.UserID != "" {
		fmt.Fprintf(console.Out, "   User ID: %s\n", sanitized.UserID)
	}

	store, err := manager.Store(account)
	if err != nil {
		return err
	}
	console.PrintSuccess(fmt.Sprintf("Session saved for %s (%s)", username, store))

	fmt.Fprintln(console.Out, "\nStart monitoring:")
	fmt.Fprintln(console.Out, "   $ igmonitor monitor <instagram_username>")
	fmt.Fprintf(console.Out, "   $ igmonitor monitor <instagram_username> --account %s\n", username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := newManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			console.PrintInfo("No stored sessions", "nothing to remove")
			return nil
		}
		if len(accounts) > 1 {
			names := make([]string, len(accounts))
			for i, a := range accounts {
				names[i] = a.Username
			}
			return fmt.Errorf("several sessions are stored (%s); name the one to remove", strings.Join(names, ", "))
		}
		username = accounts[0].Username
		if !askYesNo(os.Stdin, fmt.Sprintf("Remove the session of '%s'?", username), false) {
			return nil
		}
	}

	if err := manager.Delete(username); err != nil {
		return err
	}
	console.PrintSuccess("Session removed: " + username)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, err := newManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	console.PrintInfo("Credential stores", strings.Join(manager.Stores(), ", "))

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(accounts) == 0 {
		console.PrintInfo("No stored sessions", "use 'igmonitor auth login' to add one")
		return nil
	}

	console.PrintHighlight("Stored Sessions")
	fmt.Fprintln(console.Out)
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(console.Out, "%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Fprintf(console.Out, "   Session ID: %s\n", sanitized.SessionID)
		fmt.Fprintf(console.Out, "   CSRF Token: %s\n", sanitized.CSRFToken)
		if sanitized.UserID != "" {
			fmt.Fprintf(console.Out, "   User ID: %s\n", sanitized.UserID)
		}
		fmt.Fprintf(console.Out, "   Last Modified: %s\n\n", sanitized.LastModified.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
