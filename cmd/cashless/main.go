package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/focpay/cashless/cmd/cashless/decode"
	"github.com/focpay/cashless/cmd/cashless/run"
	"github.com/focpay/cashless/cmd/cashless/subcmd"
	"github.com/focpay/cashless/internal/state"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

var log = log2.NewStderr(log2.LDebug)

// set by build script, -ldflags "-X main.BuildVersion=..."
var BuildVersion string = "unknown"

var checkConfigMod = subcmd.Mod{Name: "check-config", Main: checkConfigMain}

var modules = []subcmd.Mod{
	run.Mod,
	checkConfigMod,
	decode.Mod,
}

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagConfig := cmdline.String("config", "cashless.hcl", "")
	cmdline.Usage = func() {
		names := make([]string, 0, len(modules))
		for _, m := range modules {
			names = append(names, m.Name)
		}
		fmt.Fprintf(cmdline.Output(), "Usage: %s [option] [command]\nCommands: %s (default run)\nOptions:\n",
			os.Args[0], strings.Join(names, " "))
		cmdline.PrintDefaults()
	}
	if err := cmdline.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	command := cmdline.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.Infof("cashless version=%s starting %s", BuildVersion, mod.Name)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	config.ApplyEnv(os.Getenv)
	log.SetLevel(config.LogLevel())

	ctx, g := state.NewContext(log, nil)
	g.BuildVersion = BuildVersion
	if err := mod.Main(ctx, config); err != nil {
		log.Fatalf("%s", errors.ErrorStack(err))
	}
}

func checkConfigMain(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if err := config.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	api := config.API
	api.Token = strings.Repeat("*", len(api.Token))
	g.Log.Infof("config ok serial=%+v api=%+v poller=%+v creditor=%+v relay=%+v tele.enable=%t",
		config.Serial, api, config.Poller, config.Creditor, config.Relay, config.Tele.Enable)
	return nil
}
