// Command recognizer runs the recognition event and response engine. It
// reads observation frames as JSON lines on stdin, debounces them into
// identity events, and coordinates greeting responses.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "recognizer",
	Short: "Recognition event and response engine for Reachy",
	Long: `Recognizer turns noisy face-recognition observations into debounced
identity events and coordinates greeting responses: a head gesture plus a
spoken phrase per identity, at most once per session.

Observation frames arrive as JSON lines on stdin, one array of
observations per frame:

  [{"label":"alice","confidence":0.93,"region":{"top":10,"right":110,"bottom":110,"left":10}}]

An empty array is a valid "no one visible" frame.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		// .env file is optional, don't fail if not found
		_ = godotenv.Load()
	})
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
}
