package config

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// PromptPassphrase reads a passphrase from the terminal without echo.
// Returns an error when stdin is not a TTY so non-interactive deployments
// fail fast instead of hanging.
func PromptPassphrase(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("cannot prompt for passphrase: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(syscall.Stdin)
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}
	return string(passphrase), nil
}
