// Main mode of operation: serial loop with VMC and payment pipeline.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/focpay/cashless/cmd/cashless/subcmd"
	"github.com/focpay/cashless/hardware/relay"
	"github.com/focpay/cashless/internal/acceptor"
	"github.com/focpay/cashless/internal/state"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "run", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if err := config.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	g.MustInit(ctx, config)
	g.Log.Debugf("config serial=%#v", config.Serial)

	u, err := g.Uart()
	if err != nil {
		return errors.Annotate(err, "serial init")
	}
	pulser, err := g.Relay()
	if err != nil {
		// vending works without the signal, only report
		g.Error(err, "relay init")
		pulser = relay.Noop{}
	}
	poller, err := g.Poller()
	if err != nil {
		return errors.Annotate(err, "poller init")
	}
	creditor, err := g.Creditor()
	if err != nil {
		return errors.Annotate(err, "creditor init")
	}

	readerLog := g.Log.Clone(config.LogLevel())
	if config.Serial.LogFrames {
		readerLog.SetLevel(log2.LDebug)
	}
	a := acceptor.New(g.Log, acceptor.Config{
		Cooldown:  config.AcceptorCooldown(),
		LogFrames: config.Serial.LogFrames,
		Watchdog:  newWatchdog(g.Log),
	}, acceptor.Parts{
		Uart:      u,
		Poller:    poller,
		Creditor:  creditor,
		Relay:     pulser,
		Tele:      g.Tele,
		ReaderLog: readerLog,
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		g.Log.Infof("signal=%v stopping", s)
		subcmd.SdNotify(daemon.SdNotifyStopping)
		a.Stop()
		g.Stop()
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Tele.State("BOOT")
	a.Run()
	a.Stop()
	return errors.Annotate(g.Close(), "shutdown")
}

// newWatchdog returns throttled systemd watchdog ping, no-op without WatchdogSec.
func newWatchdog(log *log2.Log) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Errorf("watchdog err=%v", err)
		return func() {}
	}
	if interval == 0 {
		return func() {}
	}
	period := interval / 2
	next := time.Time{}
	return func() {
		now := time.Now()
		if now.Before(next) {
			return
		}
		next = now.Add(period)
		subcmd.SdNotify(daemon.SdNotifyWatchdog)
	}
}
