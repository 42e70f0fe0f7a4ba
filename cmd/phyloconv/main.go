// Command phyloconv converts phylogenetic data between Nexus, NeXML, MEGA,
// Newick and FASTA.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/phyloconv/core/config"
	"github.com/FocuswithJustin/phyloconv/internal/logging"

	// Register the built-in formats.
	_ "github.com/FocuswithJustin/phyloconv/internal/embedded"
)

const version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	Config    string `help:"TOML file with conversion parameters" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"warn"`
	LogFormat string `name:"log-format" help:"Log format" enum:"text,json" default:"text"`
}

// params returns the configured conversion parameters.
func (g *Globals) params() (config.Params, error) {
	if g.Config == "" {
		return config.Default(), nil
	}
	return config.Load(g.Config)
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Convert  ConvertCmd  `cmd:"" help:"Convert a file to another format"`
	Events   EventsCmd   `cmd:"" help:"Print the event stream of a file as JSON lines"`
	Detect   DetectCmd   `cmd:"" help:"Detect the format of a file"`
	Digest   DigestCmd   `cmd:"" help:"Print the digest of the event stream of a file"`
	Validate ValidateCmd `cmd:"" help:"Check that a file reads without errors"`
	Store    StoreGroup  `cmd:"" help:"Event store operations"`
	Formats  FormatsCmd  `cmd:"" help:"List supported formats"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// StoreGroup contains the event store commands.
type StoreGroup struct {
	Save   StoreSaveCmd   `cmd:"" help:"Read a file and store its events"`
	Load   StoreLoadCmd   `cmd:"" help:"Write a stored document to a file"`
	List   StoreListCmd   `cmd:"" help:"List stored documents"`
	Delete StoreDeleteCmd `cmd:"" help:"Delete a stored document"`
}

// run parses args and runs the selected command. Command output goes to
// stdout, logs to stderr.
func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("phyloconv"),
		kong.Description("Phylogenetic data format converter"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&cli.Globals),
		kong.BindTo(stdout, (*io.Writer)(nil)),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	logFormat := logging.FormatText
	if cli.LogFormat == "json" {
		logFormat = logging.FormatJSON
	}
	logging.InitLoggerTo(stderr, logging.ParseLevel(cli.LogLevel), logFormat)
	return ctx.Run()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "phyloconv: %v\n", err)
		os.Exit(1)
	}
}
