package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"eyetrack-go/internal/models"
	"eyetrack-go/internal/utils"

	"github.com/spf13/cobra"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print the bcrypt hash for admin.password_hash",
	Long: `Print the bcrypt hash of an admin password for admin.password_hash in
config.yaml. The password is read from stdin when not given as an argument.

Passwords need at least 8 characters with upper and lower case letters, a
digit and a symbol.

Examples:
  eyetrack hash-password 'Gaze-2024x'
  echo 'Gaze-2024x' | eyetrack hash-password`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		return hashPassword(cmd.OutOrStdout(), password)
	},
}

func hashPassword(w io.Writer, password string) error {
	if !utils.IsComplexPassword(password) {
		return errors.New("password is not complex enough")
	}
	hash, err := models.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Fprintln(w, hash)
	return nil
}
