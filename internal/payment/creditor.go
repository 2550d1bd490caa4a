package payment

import (
	"context"
	"time"

	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
)

type CreditorConfig struct {
	BackoffMin time.Duration
	BackoffMax time.Duration
	BackoffK   float32
	// empty = in-memory backlog, lost on restart
	PersistPath string
}

// Creditor reports outcomes to ledger, in order, retrying each until confirmed.
// Failed item goes to the tail of backlog.
type Creditor struct {
	Log      *log2.Log
	api      Crediter
	q        *spq.Queue
	backoff  helpers.Backoff
	alive    *alive.Alive
	credited chan *Outcome
}

func NewCreditor(log *log2.Log, api Crediter, config CreditorConfig) (*Creditor, error) {
	path := config.PersistPath
	if path == "" {
		path = spq.OnlyForTesting
	}
	q, err := spq.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "creditor backlog path=%s", config.PersistPath)
	}
	self := &Creditor{
		Log:      log,
		api:      api,
		q:        q,
		alive:    alive.NewAlive(),
		credited: make(chan *Outcome, 1),
		backoff: helpers.Backoff{
			Min: config.BackoffMin,
			Max: config.BackoffMax,
			K:   config.BackoffK,
			Res: 100 * time.Millisecond,
		},
	}
	return self, nil
}

// Credited yields outcomes confirmed by ledger, each exactly once.
func (self *Creditor) Credited() <-chan *Outcome { return self.credited }

// Enqueue returns after outcome is stored in backlog.
func (self *Creditor) Enqueue(o *Outcome) error {
	if o == nil || o.Payment == nil {
		return errors.NotValidf("creditor outcome without payment")
	}
	return errors.Annotatef(self.q.MarshalPush(o), "creditor enqueue %s", o.String())
}

func (self *Creditor) Start() {
	if !self.alive.Add(1) {
		return
	}
	go func() {
		defer self.alive.Done()
		self.run()
	}()
}

func (self *Creditor) Close() error {
	self.alive.Stop()
	err := self.q.Close()
	self.alive.Wait()
	return errors.Annotate(err, "creditor backlog close")
}

func (self *Creditor) run() {
	stopch := self.alive.StopChan()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil: // success path
		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.Log.Errorf("CRITICAL creditor backlog closed unexpectedly")
			}
			return
		default:
			self.Log.Errorf("CRITICAL creditor backlog err=%v", err)
			if !helpers.Sleep(self.backoff.DelayAfter(false), stopch) {
				return
			}
			continue
		}

		var o Outcome
		if err = box.Unmarshal(&o); err != nil || o.Payment == nil {
			self.Log.Errorf("creditor backlog item invalid b=%x err=%v", box.Bytes(), err)
			if err = self.q.Delete(box); err != nil {
				self.Log.Errorf("creditor Delete b=%x err=%v", box.Bytes(), err)
			}
			continue
		}

		ok, err := self.credit(&o)
		if ok {
			self.Log.Infof("creditor %s credited", o.Payment.String())
			self.backoff.Reset()
			if err = self.q.Delete(box); err != nil {
				self.Log.Errorf("creditor Delete %s err=%v", o.Payment.String(), err)
			}
			select {
			case self.credited <- &o:
			case <-stopch:
				return
			}
			continue
		}

		if err != nil {
			self.Log.Warningf("creditor %s err=%v", o.Payment.String(), err)
		}
		delay := self.backoff.DelayAfter(false)
		self.Log.Infof("creditor %s could not be credited, retry in %v", o.Payment.String(), delay)
		if err = self.q.DeletePush(box); err != nil {
			self.Log.Errorf("creditor DeletePush %s err=%v", o.Payment.String(), err)
		}
		if !helpers.Sleep(delay, stopch) {
			return
		}
	}
}

func (self *Creditor) credit(o *Outcome) (bool, error) {
	ctx, cancel := stopContext(self.alive.StopChan())
	defer cancel()
	return self.api.Credit(ctx, o)
}

// stopContext is cancelled when stopch is closed.
func stopContext(stopch <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stopch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
