// Package main is the eyetrack server and its maintenance commands.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// projectRoot holds config/, the log directory and relative data paths.
	projectRoot string
	version     = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eyetrack",
	Short: "Gaze-tracked audio-visual experiment server",
	Long: `eyetrack serves a browser experiment that calibrates a webcam gaze tracker,
validates its precision and presents picture and audio trials, recording every
step to postgres.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root holding config/ and data files")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkDataCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}
