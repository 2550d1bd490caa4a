package state_test

import (
	"context"
	"testing"

	"github.com/focpay/cashless/hardware/relay"
	"github.com/focpay/cashless/internal/state"
	state_new "github.com/focpay/cashless/internal/state/new"
	"github.com/focpay/cashless/internal/tele"
	"github.com/focpay/cashless/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalTestContext(t *testing.T) {
	t.Parallel()

	ctx, g, mocks := state_new.NewTestContext(t, "test", `
api { token = "secret" base_url = "http://ledger.local/api" }
creditor { backoff_sec = 1 }
`)
	assert.Equal(t, g, state.GetGlobal(ctx))
	u, err := g.Uart()
	require.NoError(t, err)
	assert.Equal(t, mocks.Uart, u)
	r, err := g.Relay()
	require.NoError(t, err)
	assert.Equal(t, relay.Noop{}, r)

	mocks.HTTP.Body = []byte(`{"payment":{"id":"p9","amount":3,"status":"PAID"}}`)
	client, err := g.PaymentClient()
	require.NoError(t, err)
	p, err := client.OldestPaid(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "p9", p.ID)

	poller, err := g.Poller()
	require.NoError(t, err)
	poller2, _ := g.Poller()
	assert.True(t, poller == poller2, "poller must be created once")
	poller.Stop()

	creditor, err := g.Creditor()
	require.NoError(t, err)
	require.NoError(t, creditor.Close())
	require.NoError(t, g.Close())
}

func TestGlobalMissingToken(t *testing.T) {
	t.Parallel()

	_, g, _ := state_new.NewTestContext(t, "test", ``)
	_, err := g.PaymentClient()
	require.Error(t, err)
	_, err = g.Poller()
	require.Error(t, err)
}

func TestGlobalRelayDisabled(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	ctx, g := state.NewContext(log, tele.Noop{})
	fs := state.NewMockFullReader(map[string]string{"c": `relay { enable = false }`})
	g.MustInit(ctx, state.MustReadConfig(log, fs, "c"))
	r, err := g.Relay()
	require.NoError(t, err)
	assert.Equal(t, relay.Noop{}, r)
}

func TestGlobalInitTeleError(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	ctx, g := state.NewContext(log, nil)
	fs := state.NewMockFullReader(map[string]string{"c": `tele { enable = true mqtt_broker = "::bad" }`})
	err := g.Init(ctx, state.MustReadConfig(log, fs, "c"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tele init")
	assert.Equal(t, tele.Noop{}, g.Tele)
}

func TestGetGlobalMissing(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { state.GetGlobal(context.Background()) })
}
