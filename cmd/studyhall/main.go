// Command studyhall runs the tutoring server and a few tools around it.
//
//	studyhall [serve] [-config studyhall.yaml]
//	studyhall validate [-config studyhall.yaml]
//	studyhall probe [-config studyhall.yaml] [-timeout 30s]
//	studyhall chat [-url http://localhost:5000] [-subject math]
//	studyhall version
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/config"
	studyerrors "github.com/teilomillet/studyhall/errors"
	"github.com/teilomillet/studyhall/pkg/client"
	"github.com/teilomillet/studyhall/server"
	"github.com/teilomillet/studyhall/server/handlers"
	"github.com/teilomillet/studyhall/server/provider"
)

// Version is the release of this build.
const Version = "v0.1.0"

const defaultConfigFile = "studyhall.yaml"

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	errColor   = color.New(color.FgRed, color.Bold)
	tutorColor = color.New(color.FgCyan)
	dimColor   = color.New(color.Faint)
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve(args, stderr)
	case "validate":
		err = validate(args, stdout, stderr)
	case "probe":
		err = probe(args, stdout, stderr)
	case "chat":
		err = chat(args, stdin, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "studyhall %s\n", Version)
	default:
		fmt.Fprintf(stderr, "unknown command %q (want serve, validate, probe, chat or version)\n", cmd)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		errColor.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// configFlag registers -config and returns a loader. Without an explicit
// -config a missing default file falls back to defaults plus environment.
func configFlag(fs *flag.FlagSet) func() (*config.Config, error) {
	path := fs.String("config", defaultConfigFile, "Path to configuration file (.yaml or .toml)")
	return func() (*config.Config, error) {
		explicit := false
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "config" {
				explicit = true
			}
		})
		if _, err := os.Stat(*path); err != nil && !explicit {
			return config.FromEnv()
		}
		return config.LoadFile(*path)
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func serve(args []string, stderr io.Writer) error {
	fs := newFlagSet("serve", stderr)
	load := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := server.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	studyerrors.SetLogger(logger)

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("server initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting studyhall",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("allowed_origin", cfg.Server.AllowedOrigin),
	)
	return srv.Start(ctx)
}

func validate(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("validate", stderr)
	load := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := load()
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	okColor.Fprintln(stdout, "Configuration is valid")
	fmt.Fprintf(stdout, "  provider: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(stdout, "  port:     %d\n", cfg.Server.Port)
	fmt.Fprintf(stdout, "  subjects: %d\n", catalog.Len())
	if cfg.LLM.APIKey == "" {
		dimColor.Fprintf(stdout, "  warning: no API key set (%s)\n", config.EnvAPIKey)
	}
	return nil
}

func probe(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("probe", stderr)
	load := configFlag(fs)
	timeout := fs.Duration("timeout", 30*time.Second, "Maximum time to wait for the model")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := load()
	if err != nil {
		return err
	}

	gen, err := provider.New(cfg.LLM, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	text, err := gen.Generate(ctx, provider.NewPrompt(gollm.PromptMessage{Role: provider.RoleUser, Content: handlers.ProbePrompt}))
	if err != nil {
		errColor.Fprintf(stdout, "FAIL %s/%s\n", gen.GetProvider(), gen.GetModel())
		return err
	}

	okColor.Fprintf(stdout, "OK %s/%s", gen.GetProvider(), gen.GetModel())
	dimColor.Fprintf(stdout, " (%s)\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintln(stdout, strings.TrimSpace(text))
	return nil
}

func chat(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("chat", stderr)
	url := fs.String("url", "http://localhost:5000", "Server base URL")
	subjectKey := fs.String("subject", "", "Subject key (see GET /subjects)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cl := client.New(*url)
	conv := client.NewConversation(*subjectKey)

	if *subjectKey != "" {
		subjects, err := cl.Subjects(ctx)
		if err != nil {
			return fmt.Errorf("list subjects: %w", err)
		}
		found := false
		for _, s := range subjects {
			if s.Key == *subjectKey {
				found = true
				if err := ask(ctx, cl, conv, s.Greeting(), stdout); err != nil {
					return err
				}
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown subject %q", *subjectKey)
		}
	}

	dimColor.Fprintln(stdout, "Type a question, or /quit to leave.")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		if err := ask(ctx, cl, conv, line, stdout); err != nil {
			errColor.Fprintf(stdout, "error: %v\n", err)
		}
	}
}

func ask(ctx context.Context, cl *client.Client, conv *client.Conversation, text string, stdout io.Writer) error {
	reply, err := conv.Ask(ctx, cl, text)
	if err != nil {
		return err
	}
	tutorColor.Fprintf(stdout, "tutor> %s\n", client.Text(reply))
	return nil
}
