package state

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/internal/tele"
	"github.com/focpay/cashless/log2"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

const (
	EnvAuthToken = "FOC_PAY_AUTH_TOKEN"
	EnvLogLevel  = "LOGLEVEL"
)

const (
	DefaultSerialDevice = "/dev/ttyUSB0"
	DefaultSerialBaud   = 115200
	DefaultAPIBaseURL   = "https://focpay.xyz/api/"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Serial struct {
		Device        string `hcl:"device"`
		Baud          int    `hcl:"baud"`
		ReadTimeoutMs int    `hcl:"read_timeout_ms"`
		LogFrames     bool   `hcl:"log_frames"`
	} `hcl:"serial"`

	API struct {
		BaseURL    string `hcl:"base_url"`
		Token      string `hcl:"token"`
		TimeoutSec int    `hcl:"timeout_sec"`
	} `hcl:"api"`

	Poller struct {
		SettleSec   int `hcl:"settle_sec"`
		IntervalSec int `hcl:"interval_sec"`
		ErrorSec    int `hcl:"error_sec"`
		// "no payments" is logged once per this many empty polls
		LogCooldown int `hcl:"log_cooldown"`
	} `hcl:"poller"`

	Creditor struct {
		BackoffSec    int     `hcl:"backoff_sec"`
		BackoffMaxSec int     `hcl:"backoff_max_sec"`
		BackoffK      float64 `hcl:"backoff_k"`
		// empty = in-memory backlog
		PersistPath string `hcl:"persist_path"`
	} `hcl:"creditor"`

	Relay struct {
		Enable  bool   `hcl:"enable"`
		PinChip string `hcl:"pin_chip"`
		Pin     int    `hcl:"pin"`
		PulseMs int    `hcl:"pulse_ms"`
	} `hcl:"relay"`

	Tele tele.Config `hcl:"tele"`

	Acceptor struct {
		CooldownSec int `hcl:"cooldown_sec"`
	} `hcl:"acceptor"`

	Log struct {
		Level string `hcl:"level"`
	} `hcl:"log"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// applyDefaults fills zero values after all sources are read,
// so an include may override any part without repeating the rest.
func (c *Config) applyDefaults() {
	if c.Serial.Device == "" {
		c.Serial.Device = DefaultSerialDevice
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = DefaultSerialBaud
	}
	if c.Serial.ReadTimeoutMs == 0 {
		c.Serial.ReadTimeoutMs = 1000
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIBaseURL
	}
	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = 15
	}
	if c.Poller.SettleSec == 0 {
		c.Poller.SettleSec = 10
	}
	if c.Poller.IntervalSec == 0 {
		c.Poller.IntervalSec = 5
	}
	if c.Poller.ErrorSec == 0 {
		c.Poller.ErrorSec = 5
	}
	if c.Poller.LogCooldown == 0 {
		c.Poller.LogCooldown = 20
	}
	if c.Creditor.BackoffSec == 0 {
		c.Creditor.BackoffSec = 3
	}
	if c.Creditor.BackoffMaxSec == 0 {
		c.Creditor.BackoffMaxSec = c.Creditor.BackoffSec
	}
	if c.Creditor.BackoffK == 0 {
		c.Creditor.BackoffK = 1
	}
	if c.Relay.PinChip == "" {
		c.Relay.PinChip = "/dev/gpiochip0"
	}
	if c.Relay.Pin == 0 {
		c.Relay.Pin = 25
	}
	if c.Relay.PulseMs == 0 {
		c.Relay.PulseMs = 500
	}
	if c.Tele.KeepaliveSec == 0 {
		c.Tele.KeepaliveSec = 60
	}
	if c.Acceptor.CooldownSec == 0 {
		c.Acceptor.CooldownSec = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ApplyEnv lets environment override secrets and log level.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if s := getenv(EnvAuthToken); s != "" {
		c.API.Token = s
	}
	if s := getenv(EnvLogLevel); s != "" {
		c.Log.Level = s
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.Serial.Baud < 0 {
		errs = append(errs, errors.NotValidf("serial.baud=%d", c.Serial.Baud))
	}
	if c.Serial.ReadTimeoutMs < 0 {
		errs = append(errs, errors.NotValidf("serial.read_timeout_ms=%d", c.Serial.ReadTimeoutMs))
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, errors.NotValidf("api.base_url=%s", c.API.BaseURL))
	}
	if c.API.Token == "" {
		errs = append(errs, errors.NotFoundf("api.token or env %s", EnvAuthToken))
	}
	if c.Creditor.BackoffK < 1 {
		errs = append(errs, errors.NotValidf("creditor.backoff_k=%v must be >= 1", c.Creditor.BackoffK))
	}
	if c.Relay.Enable && c.Relay.PulseMs < 0 {
		errs = append(errs, errors.NotValidf("relay.pulse_ms=%d", c.Relay.PulseMs))
	}
	if c.Tele.Enable && c.Tele.MqttBroker == "" {
		errs = append(errs, errors.NotValidf("tele.mqtt_broker empty"))
	}
	if _, err := log2.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, errors.NotValidf("log.level=%s", c.Log.Level))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) LogLevel() log2.Level {
	l, _ := log2.ParseLevel(c.Log.Level)
	return l
}

func (c *Config) SerialReadTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.Serial.ReadTimeoutMs, time.Second)
}

func (c *Config) APITimeout() time.Duration {
	return helpers.IntSecondDefault(c.API.TimeoutSec, 15*time.Second)
}

func (c *Config) AcceptorCooldown() time.Duration {
	return helpers.IntSecondDefault(c.Acceptor.CooldownSec, 5*time.Second)
}

// ReadConfig reads names in order, later sources override earlier.
// Defaults are applied to what remains zero. Validate is separate
// because environment may still change the result.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	c.applyDefaults()
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
