package tele

import (
	"github.com/focpay/cashless/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - application may start without network available
// - Publish must not block on network, delivery happens in background
type Transporter interface {
	Init(log *log2.Log, config Config, willPayload []byte) error
	Publish(topicSuffix string, payload []byte) bool
	Close()
}
