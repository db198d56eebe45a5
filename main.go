package main

import (
	"context"
	"fmt"
	"github.com/shimmeringbee/httpkit/config"
	"github.com/shimmeringbee/httpkit/state"
	lw "github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/shimmeringbee/logwrap/impl/nest"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

func main() {
	ctx := context.Background()
	l := lw.New(golog.Wrap(log.New(os.Stderr, "", log.LstdFlags)))

	invocation, err := parseInvocation(os.Args[1:])
	if err != nil {
		l.LogFatal(ctx, "Failed to parse invocation.", lw.Err(err))
	}

	directories := invocation.Directories

	if err := directories.ensure(); err != nil {
		l.LogFatal(ctx, "Failed to initialise directories.", lw.Err(err))
	}

	interfaceCfgs, err := loadInterfaceConfigurations(filepath.Join(directories.Config, "interfaces"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load interface configurations.", lw.Err(err))
	}

	if len(invocation.IssueToken) > 0 {
		token, err := issueToken(interfaceCfgs, directories, invocation.IssueToken)
		if err != nil {
			l.LogFatal(ctx, "Failed to issue token.", lw.Err(err))
		}

		fmt.Println(token)
		return
	}

	l.LogInfo(ctx, "HTTPKit - Starting...")
	l.LogInfo(ctx, "Directory enumeration complete.", lw.Datum("directories", directories))

	if l, err = configureLogging(filepath.Join(directories.Config, "logging"), directories.Log, l); err != nil {
		l.LogFatal(ctx, "Failed to configure logging.", lw.Err(err))
	}

	if len(interfaceCfgs) == 0 {
		l.LogInfo(ctx, "No interfaces configured, starting default HTTP interface.", lw.Datum("port", config.DefaultHTTPPort))
		interfaceCfgs = append(interfaceCfgs, config.DefaultHTTPInterface())
	}

	homekitCfg, err := loadHomeKitConfiguration(filepath.Join(directories.Config, "homekit.json"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load homekit configuration.", lw.Err(err))
	}

	host, err := constructHomeKitHost(homekitCfg, directories.Data, subsystemLogger(l, "homekit"))
	if err != nil {
		l.LogFatal(ctx, "Failed to construct homekit host.", lw.Err(err))
	}

	eventbus := state.NewEventBus()
	registry := state.NewRegistry(host, eventbus, subsystemLogger(l, "registry"))

	l.LogInfo(ctx, "Restoring switches from previous run.")
	if err := registry.Restore(); err != nil {
		l.LogFatal(ctx, "Failed to restore switches.", lw.Err(err))
	}

	l.LogInfo(ctx, "Starting HomeKit server.")
	shutdownHomeKit := startHomeKitHost(host, subsystemLogger(l, "homekit"))

	l.LogInfo(ctx, "Starting interfaces.")
	startedInterfaces, err := startInterfaces(interfaceCfgs, interfaceDependencies{registry: registry, eventbus: eventbus}, directories, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to start interfaces.", lw.Err(err))
	}

	l.LogInfo(ctx, "HTTPKit ready.", lw.Datum("switches", len(registry.List())))

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	s := <-signalCh
	l.LogInfo(ctx, "Signal received, shutting down.", lw.Datum("signal", s.String()))

	for _, intf := range startedInterfaces {
		l.LogInfo(ctx, "Shutting down interface.", lw.Datum("interface", intf.Name))

		if err := intf.Shutdown(); err != nil {
			l.LogError(ctx, "Failed to shutdown interface.", lw.Err(err), lw.Datum("interface", intf.Name))
		}
	}

	l.LogInfo(ctx, "Shutting down HomeKit server.")
	if err := shutdownHomeKit(); err != nil {
		l.LogError(ctx, "Failed to shutdown HomeKit server.", lw.Err(err))
	}

	l.LogInfo(ctx, "Shut down complete.")
}

func subsystemLogger(l lw.Logger, source string) lw.Logger {
	sl := lw.New(nest.Wrap(l))
	sl.AddOptionsToLogger(lw.Source(source))
	return sl
}
