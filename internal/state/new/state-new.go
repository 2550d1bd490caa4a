// Test context with Global wired to mocks.
// Separate package because state tests themselves live in state.
package state_new

import (
	"context"
	"os"
	"testing"

	"github.com/focpay/cashless/hardware/relay"
	"github.com/focpay/cashless/hardware/uart"
	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/internal/state"
	"github.com/focpay/cashless/internal/tele"
	"github.com/focpay/cashless/log2"
)

type Mocks struct {
	Uart *uart.NullUart
	HTTP *helpers.MockHTTP
}

func NewTestContext(t testing.TB, buildVersion string, confString string) (context.Context, *state.Global, *Mocks) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("cashless_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := state.NewContext(log, tele.Noop{})
	g.BuildVersion = buildVersion

	mocks := &Mocks{
		Uart: uart.NewNullUart(nil),
		HTTP: &helpers.MockHTTP{},
	}
	g.Hardware.Uart.Uarter = mocks.Uart
	g.Hardware.Relay.Pulser = relay.Noop{}
	g.Payment.Client.Transport = mocks.HTTP

	config := state.MustReadConfig(log, fs, "test-inline")
	g.MustInit(ctx, config)
	if _, err := g.Uart(); err != nil {
		t.Fatal(err)
	}
	return ctx, g, mocks
}
