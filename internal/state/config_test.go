package state

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, "/dev/ttyUSB0", c.Serial.Device)
			assert.Equal(t, 115200, c.Serial.Baud)
			assert.Equal(t, time.Second, c.SerialReadTimeout())
			assert.Equal(t, "https://focpay.xyz/api/", c.API.BaseURL)
			assert.Equal(t, 15*time.Second, c.APITimeout())
			assert.Equal(t, 10, c.Poller.SettleSec)
			assert.Equal(t, 5, c.Poller.IntervalSec)
			assert.Equal(t, 5, c.Poller.ErrorSec)
			assert.Equal(t, 20, c.Poller.LogCooldown)
			assert.Equal(t, 3, c.Creditor.BackoffSec)
			assert.Equal(t, 3, c.Creditor.BackoffMaxSec)
			assert.Equal(t, 1.0, c.Creditor.BackoffK)
			assert.Equal(t, "", c.Creditor.PersistPath)
			assert.False(t, c.Relay.Enable)
			assert.Equal(t, 25, c.Relay.Pin)
			assert.Equal(t, 500, c.Relay.PulseMs)
			assert.False(t, c.Tele.Enable)
			assert.Equal(t, 5*time.Second, c.AcceptorCooldown())
			assert.Equal(t, log2.LInfo, c.LogLevel())
		}, ""},

		{"serial",
			`serial { device = "/dev/ttyAMA0" baud = 9600 log_frames = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "/dev/ttyAMA0", c.Serial.Device)
				assert.Equal(t, 9600, c.Serial.Baud)
				assert.True(t, c.Serial.LogFrames)
			}, ""},

		{"creditor-backoff",
			`creditor { backoff_sec = 2 backoff_max_sec = 60 backoff_k = 1.5 persist_path = "/var/lib/cashless/credit" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 2, c.Creditor.BackoffSec)
				assert.Equal(t, 60, c.Creditor.BackoffMaxSec)
				assert.Equal(t, 1.5, c.Creditor.BackoffK)
				assert.Equal(t, "/var/lib/cashless/credit", c.Creditor.PersistPath)
			}, ""},

		{"include-normalize", `
log { level = "debug" }
include "./empty" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, log2.LDebug, c.LogLevel())
			}, ""},

		{"include-optional", `
include "relay-on" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.Relay.Enable)
				assert.Equal(t, 17, c.Relay.Pin)
			}, ""},

		{"include-overwrites", `
relay { pin = 5 }
include "relay-on" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 17, c.Relay.Pin)
			}, ""},

		{"include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
	}
	helpers.RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"relay-on":     "relay { enable = true pin = 17 }",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		})
	}
}

func TestConfigEnvValidate(t *testing.T) {
	t.Parallel()

	env := map[string]string{}
	getenv := func(k string) string { return env[k] }
	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{
		"main": `api { token = "from-file" } tele { enable = true }`,
	})

	c := MustReadConfig(log, fs, "main")
	c.ApplyEnv(getenv)
	assert.Equal(t, "from-file", c.API.Token)
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tele.mqtt_broker")

	env[EnvAuthToken] = "from-env"
	env[EnvLogLevel] = "DEBUG"
	c.Tele.MqttBroker = "tls://broker:8883"
	c.ApplyEnv(getenv)
	assert.Equal(t, "from-env", c.API.Token)
	assert.Equal(t, log2.LDebug, c.LogLevel())
	require.NoError(t, c.Validate())

	c.API.Token = ""
	c.Log.Level = "verbose"
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.token")
	assert.Contains(t, err.Error(), "log.level=verbose")
}

func TestOsFullReader(t *testing.T) {
	t.Parallel()

	dir, err := ioutil.TempDir("", "cashless-config-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "main.hcl"), []byte(`include "local.hcl" { optional = true }
serial { baud = 9600 }`), 0600))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "local.hcl"), []byte(`api { token = "t" }`), 0600))

	log := log2.NewTest(t, log2.LDebug)
	c, err := ReadConfig(log, NewOsFullReader(), filepath.Join(dir, "main.hcl"))
	require.NoError(t, err, errors.ErrorStack(err))
	assert.Equal(t, 9600, c.Serial.Baud)
	assert.Equal(t, "t", c.API.Token)
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../cashless.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../../cashless.hcl")
	c.ApplyEnv(func(string) string { return "" })
	c.API.Token = "test"
	require.NoError(t, c.Validate())
}
