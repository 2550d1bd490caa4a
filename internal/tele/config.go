package tele

type Config struct { //nolint:maligned
	Enable       bool   `hcl:"enable"`
	MqttBroker   string `hcl:"mqtt_broker"`
	MqttPassword string `hcl:"mqtt_password"`
	MqttLogDebug bool   `hcl:"mqtt_log_debug"`
	VmId         int    `hcl:"vm_id"`
	KeepaliveSec int    `hcl:"keepalive_sec"`
	// paho message store, empty = memory
	StorePath string `hcl:"store_path"`
}
