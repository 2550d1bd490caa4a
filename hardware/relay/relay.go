// Package relay drives output pin that signals "vend session ready" to other hardware.
package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

const DefaultPulse = 500 * time.Millisecond

const consumerLabel = "cashless-relay"

type Pulser interface {
	// Pulse must return without waiting for hold duration.
	Pulse()
}

type Noop struct{}

func (Noop) Pulse() {}

type Relay struct {
	Log   *log2.Log
	chip  gpio.Chiper
	lines gpio.Lineser
	set   gpio.LineSetFunc
	pin   uint32
	hold  time.Duration
	busy  uint32
	wg    sync.WaitGroup
}

// Open opens GPIO character device chipPath, e.g. /dev/gpiochip0.
func Open(log *log2.Log, chipPath string, pin uint32, hold time.Duration) (*Relay, error) {
	chip, err := gpio.Open(chipPath, consumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "relay open chip=%s", chipPath)
	}
	self, err := New(log, chip, pin, hold)
	if err != nil {
		chip.Close()
		return nil, err
	}
	return self, nil
}

func New(log *log2.Log, chip gpio.Chiper, pin uint32, hold time.Duration) (*Relay, error) {
	if hold <= 0 {
		hold = DefaultPulse
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, pin)
	if err != nil {
		return nil, errors.Annotatef(err, "relay open line=%d", pin)
	}
	self := &Relay{
		Log:   log,
		chip:  chip,
		lines: lines,
		set:   lines.SetFunc(pin),
		pin:   pin,
		hold:  hold,
	}
	return self, nil
}

func (self *Relay) Activate() error   { return self.write(1) }
func (self *Relay) Deactivate() error { return self.write(0) }

func (self *Relay) write(value byte) error {
	self.set(value)
	return errors.Annotatef(self.lines.Flush(), "relay pin=%d value=%d", self.pin, value)
}

// Pulse runs PulseSync in background.
// Pulse while previous one is still holding is ignored.
func (self *Relay) Pulse() {
	if !atomic.CompareAndSwapUint32(&self.busy, 0, 1) {
		self.Log.Debugf("relay pulse already active")
		return
	}
	self.wg.Add(1)
	go func() {
		defer self.wg.Done()
		defer atomic.StoreUint32(&self.busy, 0)
		if err := self.PulseSync(); err != nil {
			self.Log.Error(err)
		}
	}()
}

func (self *Relay) PulseSync() error {
	if err := self.Activate(); err != nil {
		return err
	}
	time.Sleep(self.hold)
	return self.Deactivate()
}

// Close waits for pulse in progress and releases the line.
func (self *Relay) Close() error {
	self.wg.Wait()
	errs := make([]error, 0, 2)
	if err := self.lines.Close(); err != nil {
		errs = append(errs, errors.Annotate(err, "relay lines close"))
	}
	if err := self.chip.Close(); err != nil {
		errs = append(errs, errors.Annotate(err, "relay chip close"))
	}
	return helpers.FoldErrors(errs)
}
