// Command togglerctl inspects shader toggler configurations and replays
// recorded event traces through the toggler core.
//
// Usage:
//
//	togglerctl validate shadertoggler.ini
//	togglerctl dump shadertoggler.ini
//	togglerctl replay -config shadertoggler.ini trace.toml
//	togglerctl watch shadertoggler.ini
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/shadertoggle"
	"github.com/gogpu/shadertoggle/config"
	"github.com/gogpu/shadertoggle/group"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "togglerctl:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: togglerctl [-v] <validate|dump|replay|watch> [flags] <file>")
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("togglerctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "log debug output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(stderr, *verbose)

	if fs.NArg() < 1 {
		usage(stderr)
		return errors.New("missing command")
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "validate":
		return validate(rest, stdout)
	case "dump":
		return dump(rest, stdout)
	case "replay":
		return replayCmd(rest, stdout, stderr)
	case "watch":
		return watch(rest, stdout)
	}
	usage(stderr)
	return fmt.Errorf("unknown command %q", cmd)
}

func setupLogging(w io.Writer, verbose bool) {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "togglerctl",
	})
	l.SetLevel(log.InfoLevel)
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	shadertoggle.SetLogger(slog.New(l))
}

func oneFile(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected exactly one configuration file")
	}
	return args[0], nil
}

func validate(args []string, w io.Writer) error {
	path, err := oneFile(args)
	if err != nil {
		return err
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	report(w, c)
	return nil
}

// report prints one line per group.
func report(w io.Writer, c *config.Config) {
	p := message.NewPrinter(language.English)
	if c.Legacy {
		p.Fprintf(w, "legacy configuration\n")
	}
	p.Fprintf(w, "%d groups, copier %s, descriptor tracking %v\n", len(c.Groups), c.General.ConstantCopyType, c.General.TrackDescriptors)
	for i, s := range c.Groups {
		p.Fprintf(w, "  %d %-20s active=%-5v invocation=%-18s ps=%d vs=%d cs=%d",
			i, s.Name, s.Active, s.Invocation,
			len(s.Hashes[group.StagePixel]), len(s.Hashes[group.StageVertex]), len(s.Hashes[group.StageCompute]))
		if s.ProvideTextureBinding {
			p.Fprintf(w, " binding=%s", s.TextureBindingName)
		}
		if s.ExtractConstants {
			p.Fprintf(w, " constants=%d", len(s.Vars))
		}
		p.Fprintf(w, "\n")
	}
}

func dump(args []string, w io.Writer) error {
	path, err := oneFile(args)
	if err != nil {
		return err
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	_, err = c.WriteTo(w)
	return err
}

func watch(args []string, w io.Writer) error {
	path, err := oneFile(args)
	if err != nil {
		return err
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	addon := shadertoggle.New(c)
	report(w, c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = config.Watch(ctx, path, func(c *config.Config, err error) {
		if err != nil {
			shadertoggle.Logger().Warn("reload failed", "path", path, "err", err)
			return
		}
		if addon.Config().General.PreventRuntimeReload {
			shadertoggle.Logger().Info("reload skipped, runtime reload prevented", "path", path)
			return
		}
		addon.Reload(c)
		report(w, c)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
