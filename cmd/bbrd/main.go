package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/backbone-router/api"
	"github.com/vx-labs/backbone-router/backbone"
	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/cli"
	"github.com/vx-labs/backbone-router/cluster"
	"github.com/vx-labs/backbone-router/multicast"
	"github.com/vx-labs/backbone-router/netdata"
	"github.com/vx-labs/backbone-router/netif"
	"github.com/vx-labs/backbone-router/store"
	"github.com/vx-labs/backbone-router/topology"
	"go.uber.org/zap"
)

func multicastTransport(logger *zap.Logger, opts cli.Options) (*multicast.Agent, error) {
	if opts.BackboneInterface == "" {
		logger.Warn("no backbone interface configured, tracking multicast groups in memory")
		return multicast.NewMemory(logger), nil
	}
	return multicast.Listen(logger, opts.BackboneInterface, opts.MulticastPort)
}

func interfaceAddresses(logger *zap.Logger, opts cli.Options) (bbr.Netif, error) {
	if opts.ThreadInterface == "" {
		logger.Warn("no thread interface configured, tracking addresses in memory")
		return netif.NewMemory(), nil
	}
	return netif.NewNetlink(logger, opts.ThreadInterface)
}

func run(config *viper.Viper) error {
	if err := cli.LoadConfigFile(config); err != nil {
		return err
	}
	opts, err := cli.OptionsFromConfig(config)
	if err != nil {
		return err
	}
	logger := cli.Bootstrap(opts.NodeID)
	defer logger.Sync()
	logger.Info(opts.Cluster.Describe())
	logger.Info(opts.API.Describe())

	layer, err := cluster.NewGossipLayer("bbr", logger.With(zap.String("service_name", "cluster")), cluster.Config{
		ID:            opts.NodeID,
		Rloc16:        opts.Rloc16,
		BindAddr:      opts.Cluster.BindAddress,
		BindPort:      opts.Cluster.BindPort,
		AdvertiseAddr: opts.Cluster.AdvertisedAddress,
		AdvertisePort: opts.Cluster.AdvertisedPort,
	})
	if err != nil {
		logger.Error("failed to create gossip layer", zap.Error(err))
		return err
	}
	random := bbr.NewRandom()
	mesh, err := topology.NewMesh(logger.With(zap.String("service_name", "topology")), layer, random, topology.Options{
		Rloc16:                opts.Rloc16,
		MeshLocalPrefix:       opts.MeshLocalPrefix,
		Standalone:            opts.Standalone,
		RouterSelectionJitter: opts.RouterSelectionJitter,
	})
	if err != nil {
		logger.Error("failed to create topology", zap.Error(err))
		return err
	}
	networkData, err := netdata.NewStore(logger.With(zap.String("service_name", "netdata")), mesh)
	if err != nil {
		return err
	}
	agent, err := multicastTransport(logger, opts)
	if err != nil {
		logger.Error("failed to open backbone link", zap.Error(err))
		return err
	}
	defer agent.Close()
	addresses, err := interfaceAddresses(logger, opts)
	if err != nil {
		logger.Error("failed to open thread interface", zap.Error(err))
		return err
	}

	serviceConfig := backbone.Config{
		Layer:        layer,
		NetworkData:  networkData,
		Topology:     mesh,
		Multicast:    agent,
		Netif:        addresses,
		Random:       random,
		Registerer:   prometheus.DefaultRegisterer,
		Local:        opts.LocalOptions(),
		Enabled:      opts.Enabled,
		DomainPrefix: opts.DomainPrefix,
	}
	if path := opts.DatabasePath(); path != "" {
		if err := os.MkdirAll(opts.DataDir, 0750); err != nil {
			return err
		}
		db, err := store.New(store.Options{Path: path})
		if err != nil {
			logger.Error("failed to open settings database", zap.Error(err))
			return err
		}
		defer db.Close()
		serviceConfig.Persistence = db
	}
	svc, err := backbone.New(logger.With(zap.String("service_name", "bbr")), serviceConfig)
	if err != nil {
		logger.Error("failed to create backbone router", zap.Error(err))
		return err
	}
	svc.Start()

	quit := make(chan struct{})
	if opts.UseConsul {
		consulAPI, err := cli.NewConsulClient()
		if err != nil {
			logger.Error("failed to connect to consul", zap.Error(err))
			return err
		}
		go cli.JoinConsulPeers(consulAPI, cli.CONSUL_SERVICE_NAME, opts.Cluster.AdvertisedAddress, opts.Cluster.AdvertisedPort, layer, logger, quit)
	}
	if err := cli.JoinCluster(layer, opts.Join, logger); err != nil {
		logger.Warn("starting without cluster peers", zap.Error(err))
	}

	server := api.New(opts.NodeID, logger.With(zap.String("service_name", "api")), svc, api.Config{
		BindAddress: opts.API.BindAddress,
		TcpPort:     opts.API.BindPort,
	})
	if _, err := server.Serve(0); err != nil {
		logger.Error("failed to start api", zap.Error(err))
		svc.Shutdown()
		return err
	}
	go cli.ServeHTTPHealth(logger, opts.HealthPort, layer, svc, server)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	<-sigc
	logger.Info("received termination signal")
	close(quit)
	server.Shutdown()
	svc.Shutdown()
	layer.Leave()
	logger.Info("cluster left")
	return nil
}

func main() {
	config := viper.New()
	root := &cobra.Command{
		Use:          "bbrd",
		Short:        "Thread Backbone Router role arbitration daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config)
		},
	}
	cli.AddFlags(root, config)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
