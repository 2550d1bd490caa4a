package state

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/focpay/cashless/internal/tele"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Payment      payments // payment.go
	Log          *log2.Log
	Tele         tele.Teler

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log, teler tele.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}
	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.WithValue(context.Background(), ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.Infof("build version=%s", g.BuildVersion)

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	if g.Tele == nil {
		// Tele gets g.Log clone before SetErrorFunc, so tele log errors don't recurse on itself
		teler, err := tele.New(g.Log.Clone(log2.LInfo), g.Config.Tele)
		if err != nil {
			g.Tele = tele.Noop{}
			return errors.Annotate(err, "tele init")
		}
		g.Tele = teler
	}
	g.Log.SetErrorFunc(g.Tele.Error)

	if g.BuildVersion == "unknown" {
		g.Error(fmt.Errorf("build version is not set, please use script/build"))
	} else if g.Config.Tele.VmId > 0 && strings.HasSuffix(g.BuildVersion, "-dirty") { // vmid<=0 is staging
		g.Error(fmt.Errorf("running development build with uncommited changes, bad idea for production"))
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases hardware, tele last. Creditor backlog is closed by its owner.
func (g *Global) Close() error {
	err := g.Hardware.close()
	if g.Tele != nil {
		g.Tele.Close()
	}
	return err
}
