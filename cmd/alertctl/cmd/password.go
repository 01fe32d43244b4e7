package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/good-yellow-bee/alertcast/internal/api/auth"
)

var hashUsername string

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the server's auth.users list",
	Long: `Prompt for a password and print a bcrypt hash for alertcast-server.

The password is read without echo (to keep it out of shell history).
With --username the output is a ready-to-paste auth.users entry.

Password requirements:
  - Minimum 10 characters
  - Letters and at least one digit or symbol

Example:
  alertctl hash-password --username operator`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(cmd.InOrStdin())
		password, err := promptPassword(cmd, reader, "Enter password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if err := auth.CheckPassword(password); err != nil {
			return err
		}
		confirm, err := promptPassword(cmd, reader, "Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if hashUsername == "" {
			fmt.Fprintln(out, hash)
			return nil
		}
		fmt.Fprintf(out, "- username: %s\n  password_hash: %q\n", hashUsername, hash)
		return nil
	},
}

// promptPassword prompts for a password without echoing to the terminal.
// Non-terminal input is read line by line from r.
func promptPassword(cmd *cobra.Command, r *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		passwordBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr()) // Add newline after password input
		if err != nil {
			return "", err
		}
		return string(passwordBytes), nil
	}

	// Fallback for non-terminal input (e.g., piped input)
	password, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || password == "") {
		return "", err
	}
	return strings.TrimRight(password, "\r\n"), nil
}

func init() {
	hashPasswordCmd.Flags().StringVarP(&hashUsername, "username", "u", "", "print a complete auth.users entry")
	rootCmd.AddCommand(hashPasswordCmd)
}
