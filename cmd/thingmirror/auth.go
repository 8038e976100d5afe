package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"thingmirror/pkg/auth"
	"thingmirror/pkg/ui"
)

var authProfile string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Thingiverse API tokens",
	Long: `Manage stored Thingiverse API tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - THINGMIRROR_TOKEN (read only)`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API token",
	Example: `  thingmirror auth login
  thingmirror auth login --profile work`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove a stored API token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tokens",
	Long:  `List stored profiles with masked tokens and the store holding each.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	authCmd.PersistentFlags().StringVar(&authProfile, "profile", auth.DefaultProfile, "credential profile")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	auth.ShowTokenGuide(printer.Writer())
	fmt.Fprintln(printer.Writer())

	if manager.Token(authProfile) != "" {
		printer.Warning(fmt.Sprintf("Profile %q already has a token; it will be replaced.", authProfile))
	}

	fmt.Fprint(printer.Writer(), "API token: ")
	token, err := readSecret(cmd.InOrStdin(), printer.Writer())
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.New("token is required")
	}

	cred := &auth.Credential{Profile: authProfile, Token: token}
	if err := manager.Store(cred); err != nil {
		return err
	}

	printer.Success(fmt.Sprintf("Token stored for profile %q (%s)", authProfile, auth.MaskToken(token)))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(authProfile); err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Removed token for profile %q", authProfile))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	if len(creds) == 0 {
		printer.Warning("No stored tokens. Run 'thingmirror auth login'.")
		return nil
	}

	rows := make([][]string, 0, len(creds))
	for _, cred := range creds {
		masked := auth.Sanitize(cred)
		rows = append(rows, []string{
			masked.Profile,
			masked.Token,
			masked.Source,
			masked.LastModified.Local().Format(time.DateTime),
		})
	}
	fmt.Fprintln(printer.Writer(), ui.RenderTable([]string{"Profile", "Token", "Store", "Modified"}, rows, nil))
	return nil
}

// readSecret reads a line without echo when in is a terminal
func readSecret(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
