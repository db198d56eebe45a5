package config

// HomeKitConfig configures the HAP bridge which presents switches to HomeKit clients. A blank Pin is
// replaced by one read from, or generated into, the HomeKit store.
type HomeKitConfig struct {
	Name       string
	Pin        string
	ListenAddr string
	Interfaces []string
	Debug      bool
}
