package config

import (
	"encoding/json"
)

type InterfaceConfig struct {
	Name   string `json:"-"`
	Type   string
	Config any
}

var interfaceTypes = constructors{
	"http":     func() any { return &HTTPInterfaceConfig{Port: DefaultHTTPPort, EnabledAPIs: []string{"accessory"}} },
	"mqtt":     func() any { return &MQTTInterfaceConfig{TopicPrefix: DefaultMQTTTopicPrefix} },
	"influxdb": func() any { return &InfluxDBInterfaceConfig{Measurement: DefaultInfluxDBMeasurement} },
}

func (g *InterfaceConfig) UnmarshalJSON(data []byte) error {
	t, cfg, err := unmarshalTyped(data, "interface", interfaceTypes, false)
	g.Type = t
	g.Config = cfg
	return err
}

const DefaultHTTPPort = 18081

type HTTPInterfaceConfig struct {
	Port           int
	EnabledAPIs    []string
	Authentication AuthenticationConfig
}

// DefaultHTTPInterface is started when no interfaces have been configured.
func DefaultHTTPInterface() InterfaceConfig {
	return InterfaceConfig{
		Name: "default",
		Type: "http",
		Config: &HTTPInterfaceConfig{
			Port:           DefaultHTTPPort,
			EnabledAPIs:    []string{"accessory"},
			Authentication: AuthenticationConfig{Type: "null", Config: &NullAuthentication{}},
		},
	}
}

type AuthenticationConfig struct {
	Type   string
	Config any
}

var authenticationTypes = constructors{
	"null":     func() any { return &NullAuthentication{} },
	"external": func() any { return &ExternalAuthentication{UserHeader: DefaultExternalUserHeader} },
	"jwt":      func() any { return &JWTAuthentication{TTL: DefaultJWTTTL, KeyFile: DefaultJWTKeyFile} },
}

func (a *AuthenticationConfig) UnmarshalJSON(data []byte) error {
	t, cfg, err := unmarshalTyped(data, "authentication", authenticationTypes, true)
	a.Type = t
	a.Config = cfg
	return err
}

func (a AuthenticationConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string
		Config any
	}{a.Type, a.Config})
}

type NullAuthentication struct{}

const DefaultExternalUserHeader = "X-Remote-User"

type ExternalAuthentication struct {
	UserHeader string
}

const (
	DefaultJWTTTL     = "720h"
	DefaultJWTKeyFile = "jwt.pem"
)

type JWTAuthentication struct {
	TTL     string
	KeyFile string
}

const DefaultMQTTTopicPrefix = "httpkit"

type MQTTInterfaceConfig struct {
	Server string

	TLS         *MQTTTLS
	Credentials *MQTTCredentials

	Retained    bool
	QOS         byte
	TopicPrefix string

	PublishStateOnConnect bool
}

type MQTTTLS struct {
	IgnoreSystemRootCertificates bool
	SkipCertificateVerification  bool
	Key                          string
	Cert                         string
	CACert                       string
}

type MQTTCredentials struct {
	Username string
	Password string
}

const DefaultInfluxDBMeasurement = "switch_state"

type InfluxDBInterfaceConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	Measurement string

	BatchSize     uint
	FlushInterval uint
}
