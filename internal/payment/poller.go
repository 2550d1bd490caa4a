package payment

import (
	"sync/atomic"
	"time"

	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

type PollerConfig struct {
	// wait before first request of each activation
	Settle   time.Duration
	Interval time.Duration
	// wait after network or API error
	ErrorDelay time.Duration
	// "no payments" is logged once per this many empty polls
	LogCooldown int
}

// Poller produces at most one payment per activation.
// Consumer calls Rearm() to look for the next one.
type Poller struct {
	Log    *log2.Log
	config PollerConfig
	api    Fetcher
	alive  *alive.Alive
	out    chan *Payment
	active uint32
}

func NewPoller(log *log2.Log, api Fetcher, config PollerConfig) *Poller {
	return &Poller{
		Log:    log,
		config: config,
		api:    api,
		alive:  alive.NewAlive(),
		// capacity invariant: one pending payment
		out: make(chan *Payment, 1),
	}
}

// C yields found payments. Receive must not block the reader, use select with default.
func (self *Poller) C() <-chan *Payment { return self.out }

// Rearm starts one activation in background.
// Returns false if an activation is still running or poller is stopped.
func (self *Poller) Rearm() bool {
	if !atomic.CompareAndSwapUint32(&self.active, 0, 1) {
		self.Log.Debugf("poller already active")
		return false
	}
	if !self.alive.Add(1) {
		atomic.StoreUint32(&self.active, 0)
		return false
	}
	go func() {
		defer self.alive.Done()
		defer atomic.StoreUint32(&self.active, 0)
		self.run()
	}()
	return true
}

func (self *Poller) Active() bool { return atomic.LoadUint32(&self.active) == 1 }

// Stop cancels activation in progress and waits for it to return.
func (self *Poller) Stop() {
	self.alive.Stop()
	self.alive.Wait()
}

func (self *Poller) run() {
	stopch := self.alive.StopChan()
	if !self.sleep(self.config.Settle) {
		return
	}
	cooldown := 0
	for {
		p, err := self.fetch()
		switch {
		case err != nil:
			if _, ok := errors.Cause(err).(MalformedJSONError); ok {
				self.Log.Errorf("poller %v", err)
			} else {
				self.Log.Warningf("poller %v", err)
			}
			if !self.sleep(self.config.ErrorDelay) {
				return
			}
			continue

		case p != nil:
			self.Log.Infof("poller found %s", p.String())
			select {
			case self.out <- p:
			case <-stopch:
				// not consumed, ledger still has it as paid
				self.Log.Infof("poller stopped before delivery %s", p.String())
			}
			return
		}

		cooldown--
		if cooldown <= 0 {
			self.Log.Infof("poller no payments to credit")
			cooldown = self.config.LogCooldown
		}
		if !self.sleep(self.config.Interval) {
			return
		}
	}
}

func (self *Poller) fetch() (*Payment, error) {
	ctx, cancel := stopContext(self.alive.StopChan())
	defer cancel()
	return self.api.OldestPaid(ctx)
}

func (self *Poller) sleep(d time.Duration) bool { return helpers.Sleep(d, self.alive.StopChan()) }
