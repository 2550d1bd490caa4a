package state

import (
	"sync"
	"sync/atomic"

	"github.com/focpay/cashless/hardware/relay"
	"github.com/focpay/cashless/hardware/uart"
	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

type hardware struct {
	Uart struct {
		once
		Uarter uart.Uarter
	}
	Relay struct {
		once
		Pulser relay.Pulser
		relay  *relay.Relay
	}
}

// Uart opens serial line to MDB converter, only once.
func (g *Global) Uart() (uart.Uarter, error) {
	x := &g.Hardware.Uart // short alias
	_ = x.do(func() error {
		cfg := &g.Config.Serial
		if x.Uarter == nil {
			x.Uarter = uart.NewFileUart(g.Config.SerialReadTimeout())
		}
		if err := x.Uarter.Open(cfg.Device, cfg.Baud); err != nil {
			return errors.Annotatef(err, "config: serial=%#v", *cfg)
		}
		return nil
	})
	return x.Uarter, x.err
}

// Relay returns Noop when disabled in config.
func (g *Global) Relay() (relay.Pulser, error) {
	x := &g.Hardware.Relay // short alias
	_ = x.do(func() error {
		if x.Pulser != nil { // state-new testing mode
			return nil
		}
		cfg := &g.Config.Relay
		if !cfg.Enable {
			g.Log.Infof("relay is disabled")
			x.Pulser = relay.Noop{}
			return nil
		}
		log := g.Log.Clone(log2.LInfo)
		hold := helpers.IntMillisecondDefault(cfg.PulseMs, relay.DefaultPulse)
		r, err := relay.Open(log, cfg.PinChip, uint32(cfg.Pin), hold)
		if err != nil {
			return errors.Annotatef(err, "config: relay=%#v", *cfg)
		}
		x.relay = r
		x.Pulser = r
		return nil
	})
	return x.Pulser, x.err
}

func (h *hardware) close() error {
	errs := make([]error, 0, 2)
	if h.Relay.relay != nil {
		errs = append(errs, errors.Annotate(h.Relay.relay.Close(), "relay close"))
	}
	if h.Uart.done() && h.Uart.Uarter != nil {
		errs = append(errs, errors.Annotate(h.Uart.Uarter.Close(), "uart close"))
	}
	return helpers.FoldErrors(errs)
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
