// Package main implements the correct CLI: one-off corrections and redaction
// checks run locally, without the API or a document store.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/agent"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/completion"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/markup"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/pipeline"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/redact"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type runOptions struct {
	agent    string
	model    string
	baseURL  string
	timeout  time.Duration
	attempts int
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "correct",
		Short:         "Run legal text corrections from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newRedactCmd(), newAgentsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("OPENAI_MODEL", "gpt-4")
	v.SetDefault("OPENAI_TIMEOUT_SECONDS", 30)
	v.SetDefault("OPENAI_MAX_ATTEMPTS", 3)

	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Correct a file or stdin and print the JSON result",
		Long: `Correct a file or stdin with the selected agent and print the result.

Examples:
  # Correct a file
  correct run contrat.html

  # Correct from stdin with another model
  echo "Le créanciers a tord." | correct run --model gpt-4o -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			completer := completion.NewRetryingCompleter(
				completion.NewOpenAICompleter(completion.OpenAIConfig{
					APIKey:  v.GetString("OPENAI_API_KEY"),
					BaseURL: opts.baseURL,
					Timeout: opts.timeout,
				}), opts.attempts, 500*time.Millisecond)
			o := pipeline.New(agent.DefaultRegistry(opts.model), completion.NewCorrector(completer))
			res, err := o.Process(cmd.Context(), pipeline.Request{Role: "admin", Input: text, Agent: opts.agent})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&opts.agent, "agent", agent.DefaultKey, "agent profile")
	cmd.Flags().StringVar(&opts.model, "model", v.GetString("OPENAI_MODEL"), "completion model")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", v.GetString("OPENAI_BASE_URL"), "OpenAI-compatible API base URL")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Duration(v.GetInt("OPENAI_TIMEOUT_SECONDS"))*time.Second, "per-call timeout")
	cmd.Flags().IntVar(&opts.attempts, "attempts", v.GetInt("OPENAI_MAX_ATTEMPTS"), "completion attempts")
	return cmd
}

func newRedactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redact [file]",
		Short: "Print the text exactly as it would be sent for correction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			plain, _ := markup.ExtractPlainText(text)
			out, report := redact.New(nil).Apply(plain)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			if n := report.Total(); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "[correct] redacted %d item(s)\n", n)
			}
			return nil
		},
	}
}

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the built-in agent profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range agent.DefaultRegistry("").Available("admin") {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.Key, p.AccessLevel, p.Name)
			}
			return nil
		},
	}
}

// readInput reads the named file, or stdin for no argument or "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return string(b), nil
}
