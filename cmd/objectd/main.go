package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/durable/internal/auth"
	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/config"
	"github.com/danmuck/durable/internal/host"
	"github.com/danmuck/durable/internal/kinds/inserter"
	"github.com/danmuck/durable/internal/kinds/person"
	"github.com/danmuck/durable/internal/object"
	"github.com/danmuck/durable/internal/observability"
	"github.com/danmuck/durable/internal/storage"
	"github.com/danmuck/durable/internal/storage/memory"
	"github.com/danmuck/durable/internal/storage/sqlite"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to objectd TOML config (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "objectd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	observability.InitLogger("objectd")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.Close()

	srv, err := buildServer(cfg, backend)
	if err != nil {
		return err
	}
	log.Info().Msgf("objectd.run host=%s storage=%s codec=%s persist_retries=%d auth=%t",
		cfg.HostID, cfg.Storage.Driver, cfg.Codec, cfg.Persist.Retries, cfg.Token != "")
	return srv.Serve()
}

func openBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.Path)
	default:
		return memory.New(), nil
	}
}

func buildServer(cfg config.Config, backend storage.Backend) (*host.Server, error) {
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	opts := func(binding string) []object.Option {
		return []object.Option{
			object.WithPersistRetry(cfg.RetryPolicy()),
			object.WithObserver(observability.LifecycleObserver{Binding: binding}),
		}
	}

	reg := host.NewRegistry()
	bindings := []host.Binding{
		host.NewBinding(person.Binding, "person records keyed by email", person.NewDispatcher(c, opts(person.Binding)...)),
		host.NewBinding(inserter.Binding, "json key/value buckets", inserter.NewDispatcher(c, opts(inserter.Binding)...)),
	}
	for _, b := range bindings {
		if err := reg.Register(b); err != nil {
			return nil, err
		}
	}
	var srvOpts []host.ServerOption
	if cfg.Token != "" {
		srvOpts = append(srvOpts, host.WithAuth(auth.StaticTokens{cfg.Token}))
	}
	if cfg.TLSCert != "" {
		srvOpts = append(srvOpts, host.WithTLS(cfg.TLSCert, cfg.TLSKey))
	}
	return host.NewServer(host.New(cfg.HostID, backend, reg), cfg.Addr, srvOpts...), nil
}
