// Package cli assembles the weathermesh command: configuration, backend
// selection and the interactive session.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/weathermesh"
	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/flow"
	"github.com/hupe1980/weathermesh/internal/config"
	"github.com/hupe1980/weathermesh/internal/shell"
	"github.com/hupe1980/weathermesh/logging"
	"github.com/hupe1980/weathermesh/model"
	"github.com/hupe1980/weathermesh/model/anthropic"
	"github.com/hupe1980/weathermesh/model/openai"
	"github.com/hupe1980/weathermesh/telemetry"
)

// IOStreams bundles the standard streams used by the command.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// ModelFactory builds the model backend from the resolved configuration.
type ModelFactory func(cfg *config.Config) (model.Model, error)

var example = `  # Interactive session against Azure OpenAI (AOAI_* variables or .env)
  weathermesh

  # Single question against OpenAI, printing tool calls
  weathermesh --provider openai -v "What's the weather in Paris?"

  # Forget history between questions
  weathermesh --history prompt`

// NewDefaultCommand creates the command bound to the process streams.
func NewDefaultCommand() *cobra.Command {
	return NewCommand(IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr}, NewModel)
}

// NewCommand creates the root command. factory may be replaced in tests.
func NewCommand(streams IOStreams, factory ModelFactory) *cobra.Command {
	var (
		cfgFile  string
		envFiles []string
	)
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "weathermesh [question]",
		Short:         "Chat with a streaming weather assistant",
		Long:          "weathermesh answers weather questions by letting a language model call location and weather tools.\nWithout arguments it starts an interactive session; with a question it answers once and exits.",
		Example:       example,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			return run(cmd.Context(), streams, factory, cfg, args)
		},
	}
	cmd.SetIn(streams.In)
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.ErrOut)

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "Dotenv files loaded before reading the environment")
	config.AddFlags(flags)
	cobra.CheckErr(config.BindFlags(v, flags))

	return cmd
}

func run(ctx context.Context, streams IOStreams, factory ModelFactory, cfg *config.Config, args []string) error {
	logCfg := cfg.LoggingConfig()
	logCfg.Output = streams.ErrOut
	logger := logging.NewLogger(logCfg)

	llm, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("create model: %w", err)
	}

	tel, shutdown, err := newTelemetry(cfg.Telemetry, streams.ErrOut)
	if err != nil {
		return fmt.Errorf("set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry.shutdown.failed", "error", err.Error())
		}
	}()

	assistant, err := weathermesh.New(llm, AssistantOptions(cfg, logger), func(o *weathermesh.Options) {
		o.Telemetry = tel
	})
	if err != nil {
		return err
	}

	logger.Info("session.started", "provider", cfg.Provider, "model", llm.Info().Name, "history", cfg.History)

	if len(args) > 0 {
		return ask(ctx, streams.Out, assistant, strings.Join(args, " "), cfg.Verbose)
	}

	return shell.New(assistant, func(o *shell.Options) {
		o.In = streams.In
		o.Out = streams.Out
		o.Name = assistant.Name()
		o.Verbose = cfg.Verbose
		o.NoColor = cfg.NoColor
		o.Logger = logger
	}).Run(ctx)
}

// ask answers a single question, streaming the reply to out. An interrupt
// ends it quietly, like the interactive session.
func ask(ctx context.Context, out io.Writer, a *weathermesh.Assistant, question string, verbose bool) error {
	streamed := false
	sink := flow.SinkFuncs{
		Text: func(chunk string) {
			streamed = true
			fmt.Fprint(out, chunk)
		},
		Final: func(text string) {
			if !streamed {
				fmt.Fprint(out, text)
			}
			fmt.Fprintln(out)
		},
	}
	if verbose {
		sink.ToolCall = func(c core.FunctionCall) {
			fmt.Fprintf(out, "Function Call:> %s with arguments: %s\n", c.Name, c.Arguments)
		}
		sink.ToolResult = func(r core.FunctionResponse) {
			fmt.Fprintf(out, "Function Result:> %s for function: %s\n", r.Text(), r.Name)
		}
	}
	if _, err := a.Chat(ctx, question, sink); err != nil {
		if ctx.Err() != nil {
			fmt.Fprint(out, "\n\nExiting chat...\n")
			return nil
		}
		return err
	}
	return nil
}

// newTelemetry builds the configured exporter. The returned shutdown flushes
// pending data and closes the telemetry file.
func newTelemetry(cfg config.TelemetryConfig, errOut io.Writer) (*telemetry.Telemetry, telemetry.ShutdownFunc, error) {
	if cfg.Exporter != config.TelemetryStdout {
		return telemetry.Noop(), func(context.Context) error { return nil }, nil
	}

	w := errOut
	var file *os.File
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w, file = f, f
	}

	tel, shutdown, err := telemetry.NewStdout(w, "weathermesh")
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, err
	}
	if file == nil {
		return tel, shutdown, nil
	}

	return tel, func(ctx context.Context) error {
		return errors.Join(shutdown(ctx), file.Close())
	}, nil
}

// AssistantOptions maps the configuration onto weathermesh.Options.
func AssistantOptions(cfg *config.Config, logger logging.Logger) func(o *weathermesh.Options) {
	return func(o *weathermesh.Options) {
		if cfg.Instructions != "" {
			o.Instructions = cfg.Instructions
		}
		seed, temperature := cfg.Seed, cfg.Temperature
		o.Generation = model.GenerationOptions{
			Seed:        &seed,
			MaxTokens:   cfg.MaxTokens,
			Temperature: &temperature,
		}
		o.Stream = cfg.Stream
		o.MaxIterations = cfg.MaxIterations
		o.History = flow.HistoryMode(cfg.History)
		o.MaxHistoryTurns = cfg.MaxHistoryTurns
		o.Policy = cfg.Tools
		o.ToolTimeout = cfg.ToolTimeout
		o.MaxParallelTools = cfg.MaxParallelTools
		if cfg.HomeLocation != "" {
			o.HomeLocation = cfg.HomeLocation
		}
		o.Logger = logger
	}
}

// NewModel creates the backend selected by cfg.Provider.
func NewModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderAzure:
		return openai.NewAzureModel(openai.AzureOptions{
			Endpoint:   cfg.Endpoint,
			APIVersion: cfg.APIVersion,
			Deployment: cfg.Model,
			APIKey:     cfg.APIKey,
		}, func(o *openai.Options) {
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
		})
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			if cfg.APIKey != "" {
				o.RequestOptions = append(o.RequestOptions, openaioption.WithAPIKey(cfg.APIKey))
			}
			if cfg.Endpoint != "" {
				o.RequestOptions = append(o.RequestOptions, openaioption.WithBaseURL(cfg.Endpoint))
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			if cfg.Endpoint != "" {
				o.RequestOptions = append(o.RequestOptions, anthropicoption.WithBaseURL(cfg.Endpoint))
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
