package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/relayclient"
	"github.com/r9s-ai/snippet-relay/internal/tui"
)

type clientOptions struct {
	cfgPath string
	server  string
}

func (o *clientOptions) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&o.cfgPath, "config", "c", defaultConfigPath, "config yaml path (optional)")
	fs.StringVar(&o.server, "server", "", "relay base url (default: http://<server.listen>)")
}

// client builds a relay client from flags, falling back to the config's listen address.
func (o *clientOptions) client() (*relayclient.Client, error) {
	cfg, err := config.LoadUnvalidated(o.cfgPath)
	if err != nil {
		return nil, err
	}
	server := strings.TrimSpace(o.server)
	if server == "" {
		server = "http://" + cfg.Server.Listen
	}
	timeout := time.Duration(cfg.Gemini.TimeoutMs)*time.Millisecond + 15*time.Second
	return relayclient.New(server, timeout), nil
}

func newAskCmd() *cobra.Command {
	var opts clientOptions
	var contexts []string
	var info string
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Send a question to a running relay (reads stdin when no question is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				question = strings.TrimSpace(string(b))
			}
			if question == "" {
				return errors.New("please enter a question")
			}
			if len(contexts) > 0 {
				question = relayclient.BuildQuestion(question, contexts)
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			return ask(cmd.Context(), c, question, info, cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	fs := cmd.Flags()
	fs.StringArrayVar(&contexts, "context", nil, "context snippet appended to the question (repeatable)")
	fs.StringVar(&info, "info", "", "additional information sent alongside the question")
	return cmd
}

// preflightTimeout bounds the /healthz check made before a question is sent.
const preflightTimeout = 3 * time.Second

// preflight confirms a relay answers at c.BaseURL and returns its model.
func preflight(ctx context.Context, c *relayclient.Client) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()
	h, err := c.Health(ctx)
	if err != nil {
		return "", fmt.Errorf("no relay at %s (start one with `snippet-relay serve`): %w", c.BaseURL, err)
	}
	return h.Model, nil
}

func ask(ctx context.Context, c *relayclient.Client, question, info string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := preflight(ctx, c); err != nil {
		_, _ = fmt.Fprintln(out, tui.ErrorLine(err.Error()))
		return err
	}
	resp, err := c.Process(ctx, question, info)
	if err != nil {
		_, _ = fmt.Fprintln(out, tui.ErrorLine(err.Error()))
		return err
	}
	_, _ = fmt.Fprintln(out, tui.StatusLine(resp.OK(), resp.Message))
	if resp.OK() {
		_, _ = fmt.Fprintln(out, tui.Box("Preview", resp.ExtractedCodePreview))
		return nil
	}
	if resp.FullResponse != "" {
		_, _ = fmt.Fprintln(out, tui.Box("Full response", resp.FullResponse))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = fmt.Fprintln(out, tui.Hint("The model is rate limited; wait a minute before retrying."))
	}
	return fmt.Errorf("relay returned %d", resp.StatusCode)
}

func newComposeCmd() *cobra.Command {
	var opts clientOptions
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose a question and context interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			model, err := preflight(cmd.Context(), c)
			if err != nil {
				return err
			}
			header := c.BaseURL
			if model != "" {
				header += "  model=" + model
			}
			return tui.RunCompose(header, c.Process, os.Stdin, os.Stdout)
		},
	}
	opts.bind(cmd)
	return cmd
}
