package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/digit-api/internal/client"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)

	root := &cobra.Command{
		Use:           "digitctl",
		Short:         "Command line client for the digit prediction API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:5000", "base URL of the prediction server")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	predict := &cobra.Command{
		Use:   "predict <image-file>",
		Short: "Classify the digit drawn in an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			result, err := client.New(baseURL, timeout).Predict(cmdContext(cmd), data)
			if err != nil {
				return err
			}
			return writeJSON(out, result)
		},
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Report the server's health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.New(baseURL, timeout).Health(cmdContext(cmd))
			if err != nil {
				return err
			}
			return writeJSON(out, result)
		},
	}

	root.AddCommand(predict, health)
	return root
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
