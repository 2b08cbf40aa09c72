// Package util holds small CLI helpers shared by the module's command
// entrypoints.
package util

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// PromptPassword prompts for hidden input on a real terminal, used by
// fossactl for its optional admin override token.
func PromptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("interactive prompting requires a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	input, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return string(input), nil
}