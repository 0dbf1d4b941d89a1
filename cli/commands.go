// Package cli implements the signcore command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/esignkit/signcore/config"
	"github.com/esignkit/signcore/engine"
	"github.com/esignkit/signcore/internal/logging"
	"go.uber.org/zap"
)

// Globals are shared by every command.
type Globals struct {
	Config  string
	Debug   bool
	Version string
	Stdout  io.Writer
}

// CLI is the command grammar.
type CLI struct {
	Config  string           `help:"Path to the TOML config file." type:"path" placeholder:"FILE"`
	Debug   bool             `help:"Enable debug logging."`
	Version kong.VersionFlag `help:"Print the version and exit."`

	CA     CACmd     `cmd:"" name:"ca" help:"Manage the certificate authority"`
	Render RenderCmd `cmd:"" help:"Draw field values onto a PDF"`
	Sign   SignCmd   `cmd:"" help:"Sign a PDF file"`
	Verify VerifyCmd `cmd:"" help:"Verify the signatures of a PDF file"`
}

// Main parses args and runs the selected command.
func Main(ctx context.Context, args []string, version string, stdout, stderr io.Writer, options ...kong.Option) error {
	var cli CLI
	options = append([]kong.Option{
		kong.Name("signcore"),
		kong.Description("Render, sign and verify PDF documents with a built-in CA."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)),
	}, options...)

	parser, err := kong.New(&cli, options...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(&Globals{Config: cli.Config, Debug: cli.Debug, Version: version, Stdout: stdout})
}

// load reads the config named by --config, the default location if it
// exists, or the built-in defaults.
func (g *Globals) load() (*config.Config, *zap.Logger, error) {
	var cfg *config.Config
	switch {
	case g.Config != "":
		c, err := config.Load(g.Config)
		if err != nil {
			return nil, nil, err
		}
		cfg = c
	default:
		if _, err := os.Stat(config.DefaultLocation); err == nil {
			c, err := config.Load(config.DefaultLocation)
			if err != nil {
				return nil, nil, err
			}
			cfg = c
		} else {
			cfg = config.Default()
		}
	}

	if g.Debug {
		cfg.Log.Env = "development"
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// open loads the config and opens an engine on its CA.
func (g *Globals) open(ctx context.Context) (*engine.Engine, *config.Config, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return e, cfg, nil
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func closeEngine(e *engine.Engine, err *error) {
	if cerr := e.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

var errNoCA = errors.New("certificate authority unavailable")
