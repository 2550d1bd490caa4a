package state

import (
	"net/http"
	"time"

	"github.com/focpay/cashless/internal/payment"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

type payments struct {
	Client struct {
		once
		// nil means http.DefaultTransport
		Transport http.RoundTripper
		c         *payment.Client
	}
	Poller struct {
		once
		p *payment.Poller
	}
	Creditor struct {
		once
		c *payment.Creditor
	}
}

func (g *Global) PaymentClient() (*payment.Client, error) {
	x := &g.Payment.Client // short alias
	_ = x.do(func() error {
		cfg := &g.Config.API
		x.c, x.err = payment.NewClient(g.Log.Clone(log2.LInfo), cfg.BaseURL, cfg.Token, g.Config.APITimeout(), x.Transport)
		return errors.Annotatef(x.err, "config: api.base_url=%s", cfg.BaseURL)
	})
	return x.c, x.err
}

func (g *Global) Poller() (*payment.Poller, error) {
	x := &g.Payment.Poller
	_ = x.do(func() error {
		api, err := g.PaymentClient()
		if err != nil {
			return err
		}
		cfg := &g.Config.Poller
		x.p = payment.NewPoller(g.Log, api, payment.PollerConfig{
			Settle:      time.Duration(cfg.SettleSec) * time.Second,
			Interval:    time.Duration(cfg.IntervalSec) * time.Second,
			ErrorDelay:  time.Duration(cfg.ErrorSec) * time.Second,
			LogCooldown: cfg.LogCooldown,
		})
		return nil
	})
	return x.p, x.err
}

func (g *Global) Creditor() (*payment.Creditor, error) {
	x := &g.Payment.Creditor
	_ = x.do(func() error {
		api, err := g.PaymentClient()
		if err != nil {
			return err
		}
		cfg := &g.Config.Creditor
		x.c, x.err = payment.NewCreditor(g.Log, api, payment.CreditorConfig{
			BackoffMin:  time.Duration(cfg.BackoffSec) * time.Second,
			BackoffMax:  time.Duration(cfg.BackoffMaxSec) * time.Second,
			BackoffK:    float32(cfg.BackoffK),
			PersistPath: cfg.PersistPath,
		})
		return errors.Annotatef(x.err, "config: creditor=%#v", *cfg)
	})
	return x.c, x.err
}
