package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	gorillamux "github.com/gorilla/mux"
	"github.com/shimmeringbee/httpkit/config"
	"github.com/shimmeringbee/httpkit/interface/http/auth"
	"github.com/shimmeringbee/httpkit/interface/http/auth/external"
	"github.com/shimmeringbee/httpkit/interface/http/auth/jwt"
	"github.com/shimmeringbee/httpkit/interface/http/auth/null"
	"github.com/shimmeringbee/httpkit/interface/http/pprof"
	"github.com/shimmeringbee/httpkit/interface/http/v1"
	"github.com/shimmeringbee/httpkit/interface/influxdb"
	"github.com/shimmeringbee/httpkit/interface/mqtt"
	"github.com/shimmeringbee/httpkit/state"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/nest"
	"net"
	"net/http"
	url2 "net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

type StartedInterface struct {
	Name     string
	Shutdown func() error
}

type interfaceDependencies struct {
	registry state.SwitchRegistry
	eventbus *state.EventBus
}

const DefaultMQTTEventDuration = 1 * time.Second

func loadInterfaceConfigurations(dir string) ([]config.InterfaceConfig, error) {
	var cfgs []config.InterfaceConfig

	err := readConfigurationFiles(dir, "interface", func(name string, data []byte) error {
		cfg := config.InterfaceConfig{Name: name}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return err
		}

		cfgs = append(cfgs, cfg)
		return nil
	})

	return cfgs, err
}

func interfaceDataDirectory(directories Directories, name string) string {
	return filepath.Join(directories.Data, "interfaces", name)
}

func startInterfaces(cfgs []config.InterfaceConfig, deps interfaceDependencies, directories Directories, l logwrap.Logger) ([]StartedInterface, error) {
	var started []StartedInterface

	for _, cfg := range cfgs {
		dataDir := interfaceDataDirectory(directories, cfg.Name)

		if err := os.MkdirAll(dataDir, DefaultDirectoryPermissions); err != nil {
			return started, fmt.Errorf("failed to create interface data directory '%s': %w", dataDir, err)
		}

		if shutdown, err := startInterface(cfg, deps, dataDir, l); err != nil {
			return started, fmt.Errorf("failed to start interface '%s': %w", cfg.Name, err)
		} else {
			started = append(started, StartedInterface{
				Name:     cfg.Name,
				Shutdown: shutdown,
			})
		}
	}

	return started, nil
}

func startInterface(cfg config.InterfaceConfig, deps interfaceDependencies, dataDir string, l logwrap.Logger) (func() error, error) {
	il := logwrap.New(nest.Wrap(l))
	il.AddOptionsToLogger(logwrap.Datum("interface", cfg.Name))

	switch iCfg := cfg.Config.(type) {
	case *config.HTTPInterfaceConfig:
		il.AddOptionsToLogger(logwrap.Source("http"))
		return startHTTPInterface(cfg.Name, *iCfg, deps, dataDir, il)
	case *config.MQTTInterfaceConfig:
		il.AddOptionsToLogger(logwrap.Source("mqtt"))
		return startMQTTInterface(*iCfg, deps, il)
	case *config.InfluxDBInterfaceConfig:
		il.AddOptionsToLogger(logwrap.Source("influxdb"))
		return startInfluxDBInterface(*iCfg, deps, il)
	default:
		return nil, fmt.Errorf("unknown interface type loaded: %s", cfg.Type)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}

	return false
}

func jwtSystemIdentifier(interfaceName string) string {
	return fmt.Sprintf("httpkit/%s", interfaceName)
}

// loadOrGenerateJWTKey reads the signing key at path, generating and saving a new one if none exists.
func loadOrGenerateJWTKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		return key, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read jwt key '%s': %w", path, err)
	}

	key, err = jwt.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	if err := safeWriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to save jwt key '%s': %w", path, err)
	}

	return key, nil
}

func constructJWTAuthenticator(interfaceName string, cfg config.JWTAuthentication, dataDir string) (*jwt.Authenticator, error) {
	ttl, err := time.ParseDuration(cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwt TTL '%s': %w", cfg.TTL, err)
	}

	key, err := loadOrGenerateJWTKey(filepath.Join(dataDir, cfg.KeyFile))
	if err != nil {
		return nil, err
	}

	return jwt.NewAuthenticator(jwtSystemIdentifier(interfaceName), ttl, key)
}

func constructAuthenticator(interfaceName string, cfg config.AuthenticationConfig, dataDir string) (auth.AuthenticationProvider, error) {
	switch aCfg := cfg.Config.(type) {
	case nil, *config.NullAuthentication:
		return null.Authenticator{}, nil
	case *config.ExternalAuthentication:
		return external.Authenticator{UserHeader: aCfg.UserHeader}, nil
	case *config.JWTAuthentication:
		return constructJWTAuthenticator(interfaceName, *aCfg, dataDir)
	default:
		return nil, fmt.Errorf("unknown authentication type: %s", cfg.Type)
	}
}

// issueToken signs a token for subject using the first HTTP interface with jwt authentication.
func issueToken(cfgs []config.InterfaceConfig, directories Directories, subject string) (string, error) {
	if len(subject) == 0 {
		return "", errors.New("a subject is required to issue a token")
	}

	for _, cfg := range cfgs {
		httpCfg, ok := cfg.Config.(*config.HTTPInterfaceConfig)
		if !ok {
			continue
		}

		jwtCfg, ok := httpCfg.Authentication.Config.(*config.JWTAuthentication)
		if !ok {
			continue
		}

		dataDir := interfaceDataDirectory(directories, cfg.Name)
		if err := os.MkdirAll(dataDir, DefaultDirectoryPermissions); err != nil {
			return "", fmt.Errorf("failed to create interface data directory '%s': %w", dataDir, err)
		}

		a, err := constructJWTAuthenticator(cfg.Name, *jwtCfg, dataDir)
		if err != nil {
			return "", err
		}

		return a.Sign(subject)
	}

	return "", errors.New("no http interface is configured with jwt authentication")
}

func constructHTTPRouter(name string, cfg config.HTTPInterfaceConfig, deps interfaceDependencies, dataDir string, l logwrap.Logger) (http.Handler, error) {
	ap, err := constructAuthenticator(name, cfg.Authentication, dataDir)
	if err != nil {
		return nil, err
	}

	r := gorillamux.NewRouter()

	if containsString(cfg.EnabledAPIs, "pprof") {
		l.LogInfo(context.Background(), "Mounting pprof endpoint on /debug/pprof.")
		r.PathPrefix("/debug/pprof").Handler(http.StripPrefix("/debug/pprof", pprof.ConstructRouter(ap)))
	}

	if containsString(cfg.EnabledAPIs, "accessory") {
		var eventbus state.EventSubscriber

		if containsString(cfg.EnabledAPIs, "events") {
			l.LogInfo(context.Background(), "Mounting event streams on /events.")
			eventbus = deps.eventbus
		}

		l.LogInfo(context.Background(), "Mounting accessory API on /.")
		r.PathPrefix("/").Handler(v1.ConstructRouter(deps.registry, eventbus, ap, l))
	}

	return r, nil
}

func startHTTPInterface(name string, cfg config.HTTPInterfaceConfig, deps interfaceDependencies, dataDir string, l logwrap.Logger) (func() error, error) {
	handler, err := constructHTTPRouter(name, cfg, deps, dataDir, l)
	if err != nil {
		return nil, err
	}

	bindAddress := fmt.Sprintf(":%d", cfg.Port)

	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", bindAddress, err)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	l.LogInfo(context.Background(), "HTTP server listening.", logwrap.Datum("address", bindAddress))

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.LogError(context.Background(), "HTTP server failed.", logwrap.Err(err))
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(ctx)
	}, nil
}

func awaitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return context.DeadlineExceeded
	}
}

func constructMQTTTLSConfig(cfg config.MQTTTLS, l logwrap.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.SkipCertificateVerification}

	if cfg.SkipCertificateVerification {
		l.LogWarn(context.Background(), "Set to ignore remote TLS certificate, this is considered insecure.")
	}

	if len(cfg.Cert) > 0 {
		cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate/key for mqtt: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	var certPool *x509.CertPool
	var err error

	if cfg.IgnoreSystemRootCertificates {
		l.LogInfo(context.Background(), "Configured to ignore system root certificates, ensure you are providing your own.")
		certPool = x509.NewCertPool()
	} else {
		certPool, err = x509.SystemCertPool()
		if err != nil {
			// Windows does not return a typed error here, so continue with an empty pool.
			if runtime.GOOS == "windows" {
				l.LogWarn(context.Background(), "Failed to load system certificate pool for root CAs, this is expected on Windows, you must provide the CA root certificate for your servers trust chain.", logwrap.Err(err))
				certPool = x509.NewCertPool()
			} else {
				return nil, fmt.Errorf("failed to load system certificate pool: %w", err)
			}
		}
	}

	if len(cfg.CACert) > 0 {
		caCerts, err := os.ReadFile(filepath.Clean(cfg.CACert))
		if err != nil {
			return nil, fmt.Errorf("failed to load CA TLS certificates for mqtt: %w", err)
		}

		certPool.AppendCertsFromPEM(caCerts)
	}

	tlsConfig.RootCAs = certPool

	return tlsConfig, nil
}

func startMQTTInterface(cfg config.MQTTInterfaceConfig, deps interfaceDependencies, l logwrap.Logger) (func() error, error) {
	clientId, err := randomClientID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate random client id: %w", err)
	}

	l.LogInfo(context.Background(), "Constructing new MQTT client.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))

	clientOptions := pahomqtt.NewClientOptions()
	clientOptions.ClientID = clientId

	if url, err := url2.Parse(cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to parse MQTT server URL: %w", err)
	} else {
		clientOptions.Servers = []*url2.URL{url}
	}

	i := &mqtt.Interface{Registry: deps.registry, EventSubscriber: deps.eventbus, Logger: l, PublishStateOnConnect: cfg.PublishStateOnConnect}

	lastWillTopic := prefixTopic(cfg.TopicPrefix, "controller/online")

	clientOptions.OnConnect = func(client pahomqtt.Client) {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultMQTTEventDuration)
		defer cancel()

		l.LogInfo(ctx, "MQTT client successfully connected.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))

		subTopic := prefixTopic(cfg.TopicPrefix, "switches/+/state/set")
		subscribeToken := client.Subscribe(subTopic, cfg.QOS, func(client pahomqtt.Client, message pahomqtt.Message) {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultMQTTEventDuration)
			defer cancel()

			if err := i.IncomingMessage(ctx, stripPrefixTopic(cfg.TopicPrefix, message.Topic()), message.Payload()); err != nil {
				l.LogWarn(ctx, "Failed to handle incoming message.", logwrap.Datum("topic", message.Topic()), logwrap.Err(err))
			}
		})

		if err := awaitToken(ctx, subscribeToken); err != nil {
			l.LogError(ctx, "Failed to subscribe to topic in MQTT.", logwrap.Datum("topic", subTopic), logwrap.Err(err))
		}

		client.Publish(lastWillTopic, cfg.QOS, cfg.Retained, `true`)

		if err := i.Connected(context.Background(), func(ctx context.Context, topic string, payload []byte) error {
			prefixedTopic := prefixTopic(cfg.TopicPrefix, topic)

			token := client.Publish(prefixedTopic, cfg.QOS, cfg.Retained, payload)
			if err := awaitToken(ctx, token); err != nil {
				return fmt.Errorf("failed to publish to '%s': %w", prefixedTopic, err)
			}

			return nil
		}); err != nil {
			l.LogError(context.Background(), "Failed to execute connection handler in MQTT interface.", logwrap.Err(err))
		}
	}

	clientOptions.SetConnectionLostHandler(func(client pahomqtt.Client, err error) {
		l.LogInfo(context.Background(), "MQTT client disconnected.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server), logwrap.Err(err))
		i.Disconnected()
	})

	clientOptions.SetWill(lastWillTopic, `false`, cfg.QOS, cfg.Retained)
	clientOptions.SetAutoReconnect(true)

	if cfg.Credentials != nil {
		clientOptions.SetUsername(cfg.Credentials.Username)
		clientOptions.SetPassword(cfg.Credentials.Password)
	}

	if cfg.TLS != nil {
		tlsConfig, err := constructMQTTTLSConfig(*cfg.TLS, l)
		if err != nil {
			return nil, err
		}

		clientOptions.SetTLSConfig(tlsConfig)
	}

	i.Start()

	client := pahomqtt.NewClient(clientOptions)
	stopConnecting := make(chan struct{})

	go func() {
		ctx := context.Background()

		retry := time.NewTicker(1 * time.Second)
		defer retry.Stop()

		for {
			select {
			case <-retry.C:
				if token := client.Connect(); token.Wait() && token.Error() != nil {
					l.LogError(ctx, "Failed initial connection to MQTT server.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server), logwrap.Err(token.Error()))
				} else {
					l.LogInfo(ctx, "Initial MQTT connection call completed.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))
					return
				}
			case <-stopConnecting:
				return
			}
		}
	}()

	return func() error {
		close(stopConnecting)
		client.Disconnect(1500)
		i.Stop()
		return nil
	}, nil
}

func prefixTopic(topicPrefix string, topic string) string {
	if len(topicPrefix) > 0 {
		return fmt.Sprintf("%s/%s", topicPrefix, topic)
	}

	return topic
}

func stripPrefixTopic(topicPrefix string, topic string) string {
	if len(topicPrefix) > 0 {
		return strings.TrimPrefix(topic, topicPrefix+"/")
	}

	return topic
}

func randomClientID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func startInfluxDBInterface(cfg config.InfluxDBInterfaceConfig, deps interfaceDependencies, l logwrap.Logger) (func() error, error) {
	l.LogInfo(context.Background(), "Connecting to InfluxDB.", logwrap.Datum("url", cfg.URL), logwrap.Datum("bucket", cfg.Bucket))

	client, writeAPI, err := influxdb.Connect(context.Background(), cfg.URL, cfg.Token, cfg.Org, cfg.Bucket, cfg.BatchSize, cfg.FlushInterval, l)
	if err != nil {
		return nil, err
	}

	r := &influxdb.Recorder{Writer: writeAPI, EventSubscriber: deps.eventbus, Measurement: cfg.Measurement, Logger: l}
	r.Start()

	return func() error {
		r.Stop()
		writeAPI.Flush()
		client.Close()
		return nil
	}, nil
}
