// Package tele reports reader state, vend outcomes and errors over MQTT.
// Telemetry is optional, lost messages are acceptable.
package tele

import (
	"encoding/json"
	"time"

	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

const (
	SuffixState = "state"
	SuffixVend  = "vend"
	SuffixError = "error"
)

// Teler is implemented by tele (MQTT) and Noop.
type Teler interface {
	State(state string)
	Vend(v Vend)
	Error(err error)
	Close()
}

type Vend struct {
	PaymentID string `json:"payment_id"`
	Amount    int32  `json:"amount"`
	Price     int32  `json:"price"`
	Approved  bool   `json:"approved"`
	// false: outcome decided, ledger not yet confirmed
	Credited bool `json:"credited"`
}

type message struct {
	VmId  int    `json:"vm_id"`
	Time  int64  `json:"time"`
	State string `json:"state,omitempty"`
	Vend  *Vend  `json:"vend,omitempty"`
	Error string `json:"error,omitempty"`
}

type tele struct {
	log       *log2.Log
	config    Config
	transport Transporter
	now       func() time.Time
}

// New returns Noop when telemetry is disabled.
func New(log *log2.Log, config Config) (Teler, error) {
	return NewWithTransporter(log, config, &transportMqtt{})
}

func NewWithTransporter(log *log2.Log, config Config, trans Transporter) (Teler, error) {
	if !config.Enable {
		return Noop{}, nil
	}
	self := &tele{
		log:       log,
		config:    config,
		transport: trans,
		now:       time.Now,
	}
	// broker publishes this retained on our behalf when connection is lost
	willPayload := []byte{0x00}
	if err := self.transport.Init(log, config, willPayload); err != nil {
		return nil, errors.Annotate(err, "tele transport")
	}
	return self, nil
}

func (self *tele) State(state string) {
	self.send(SuffixState, message{State: state})
}

func (self *tele) Vend(v Vend) {
	self.send(SuffixVend, message{Vend: &v})
}

func (self *tele) Error(err error) {
	if err == nil {
		return
	}
	self.send(SuffixError, message{Error: err.Error()})
}

func (self *tele) Close() { self.transport.Close() }

func (self *tele) send(suffix string, m message) {
	m.VmId = self.config.VmId
	m.Time = self.now().UnixNano() / int64(time.Millisecond)
	b, err := json.Marshal(m)
	if err != nil {
		// no Error() here, it would loop back
		self.log.Warningf("tele marshal err=%v", err)
		return
	}
	if !self.transport.Publish(suffix, b) {
		self.log.Warningf("tele publish topic=%s dropped", suffix)
	}
}

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) State(string) {}
func (Noop) Vend(Vend)    {}
func (Noop) Error(error)  {}
func (Noop) Close()       {}
