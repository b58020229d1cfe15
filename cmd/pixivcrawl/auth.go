package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"pixivcrawl/pkg/auth"
	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/pixiv"
	"pixivcrawl/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage pixiv credentials",
	Long: `Manage stored pixiv refresh tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - PIXIVCRAWL_REFRESH_TOKEN (read only)

Never share your refresh token or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify and store a pixiv refresh token",
	Long: `Prompt for a pixiv refresh token, verify it against pixiv and store it
securely under the account name pixiv reports.`,
	Example: `  # Interactive login
  pixivcrawl auth login`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [account]",
	Short: "Remove stored credentials",
	Long: `Remove a stored pixiv account. With no argument the only stored account is
removed after confirmation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

// guideCmd represents the auth guide command
var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to obtain a refresh token",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowRefreshTokenGuide(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	auth.ShowQuickTokenGuide(os.Stdout)
	fmt.Print("\nRefresh token (hidden): ")
	token, err := readPassword()
	fmt.Println()
	if err != nil {
		ui.PrintError("Failed to read refresh token", err.Error())
		return err
	}
	if token == "" {
		return fmt.Errorf("refresh token is required")
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	fmt.Println("Verifying with pixiv...")
	account, err := verifyToken(cmd.Context(), cfg, token)
	if err != nil {
		ui.PrintError("pixiv rejected the refresh token", err.Error())
		return err
	}

	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", account.Username))
	fmt.Println("\nStart crawling with:")
	fmt.Printf("   $ pixivcrawl crawl <keyword> --account %s\n", account.Username)
	return nil
}

// verifyToken authenticates once and returns the account pixiv reports,
// carrying the possibly rotated refresh token
func verifyToken(ctx context.Context, cfg *config.Config, token string) (*auth.Account, error) {
	client := pixiv.NewClient(pixiv.ClientOptions{
		Timeout:    30 * time.Second,
		UserAgent:  cfg.Pixiv.UserAgent,
		AuthURL:    cfg.Pixiv.AuthURL,
		APIBaseURL: cfg.Pixiv.APIBaseURL,
	}, logger.NewNopLogger())

	if _, err := client.Authenticate(ctx, token); err != nil {
		return nil, err
	}

	user := client.User()
	username := user.Account
	if username == "" {
		username = user.ID
	}
	return &auth.Account{
		Username:     username,
		UserID:       user.ID,
		RefreshToken: client.RefreshToken(),
	}, nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		accounts, _ := manager.List()
		switch len(accounts) {
		case 0:
			ui.PrintWarning("No stored accounts found")
			return nil
		case 1:
			username = accounts[0].Username
		default:
			printAccounts(os.Stdout, accounts)
			return fmt.Errorf("several accounts are stored; name the one to remove")
		}
		if !confirm(os.Stdin, fmt.Sprintf("Remove account '%s'? (y/N): ", username)) {
			return nil
		}
	}

	if err := manager.Delete(username); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		return err
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintWarning("No stored accounts found")
		fmt.Println("Run 'pixivcrawl auth login' to add one.")
		return nil
	}

	printAccounts(os.Stdout, accounts)
	return nil
}

// printAccounts lists accounts with masked tokens, newest first
func printAccounts(w io.Writer, accounts []*auth.Account) {
	fmt.Fprintln(w, "Stored accounts:")
	for i, account := range accounts {
		safe := auth.SanitizeAccount(account)
		marker := " "
		if i == 0 {
			marker = "*"
		}
		modified := "unknown"
		if !safe.LastModified.IsZero() {
			modified = safe.LastModified.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, " %s %-20s token %s  saved %s\n", marker, safe.Username, safe.RefreshToken, modified)
	}
}

// confirm asks a yes/no question, defaulting to no
func confirm(r io.Reader, prompt string) bool {
	fmt.Print(prompt)
	input, _ := bufio.NewReader(r).ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y")
}

// readPassword reads a line without echo when stdin is a terminal
func readPassword() (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
