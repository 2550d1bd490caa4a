package tele

import (
	"fmt"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

const closeTimeout = 2 * time.Second

func TopicPrefix(vmId int) string   { return fmt.Sprintf("vm%d", vmId) }
func TopicConnect(vmId int) string  { return TopicPrefix(vmId) + "/c" }
func TopicWrite(vmId int, suffix string) string {
	return fmt.Sprintf("%s/w/%s", TopicPrefix(vmId), suffix)
}

type transportMqtt struct {
	log          *log2.Log
	m            mqtt.Client
	mopt         *mqtt.ClientOptions
	vmId         int
	topicConnect string
}

func (self *transportMqtt) Init(log *log2.Log, config Config, willPayload []byte) error {
	if _, err := url.ParseRequestURI(config.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", config.MqttBroker)
	}

	self.log = log.Clone(log2.LInfo)
	if config.MqttLogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	// paho loggers are process global
	mqtt.ERROR = self.log
	mqtt.CRITICAL = self.log
	mqtt.WARN = self.log
	if config.MqttLogDebug {
		mqtt.DEBUG = self.log
	}
	self.vmId = config.VmId
	mqttClientId := TopicPrefix(config.VmId)
	credFun := func() (string, string) {
		return mqttClientId, config.MqttPassword
	}
	self.topicConnect = TopicConnect(config.VmId)
	keepAlive := helpers.IntSecondDefault(config.KeepaliveSec, 60*time.Second)
	retryInterval := helpers.IntSecondDefault(config.KeepaliveSec/2, 30*time.Second)

	self.mopt = mqtt.NewClientOptions().
		AddBroker(config.MqttBroker).
		SetBinaryWill(self.topicConnect, willPayload, 1, true).
		SetClientID(mqttClientId).
		SetCredentialsProvider(credFun).
		SetKeepAlive(keepAlive).
		SetPingTimeout(keepAlive / 2).
		SetOrderMatters(false).
		SetConnectRetryInterval(retryInterval).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler).
		SetConnectRetry(true)
	if config.StorePath != "" {
		self.mopt.SetStore(mqtt.NewFileStore(config.StorePath))
	}
	self.m = mqtt.NewClient(self.mopt)
	// with ConnectRetry, token completes only after first successful connect
	self.m.Connect()
	return nil
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	self.log.Infof("mqtt disconnect")
	t := self.m.Publish(self.topicConnect, 1, true, []byte{0x00})
	t.WaitTimeout(closeTimeout)
	self.m.Disconnect(uint(closeTimeout / time.Millisecond))
}

func (self *transportMqtt) Publish(topicSuffix string, payload []byte) bool {
	topic := TopicWrite(self.vmId, topicSuffix)
	self.log.Debugf("mqtt publish topic=%s payload=%s", topic, payload)
	self.m.Publish(topic, 1, false, payload)
	return true
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt connection lost err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connect")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}
