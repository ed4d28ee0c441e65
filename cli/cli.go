// Package cli bootstraps the bbrd process: logger, configuration, cluster
// discovery and the health endpoint.
package cli

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	consul "github.com/hashicorp/consul/api"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxJoinAttempts = 5

var newBackOff = func() backoff.BackOff {
	return backoff.NewExponentialBackOff()
}

// BuiltVersion is set at link time.
var BuiltVersion = "dev"

func Version() string {
	return BuiltVersion
}

type Joiner interface {
	Join(hosts []string) error
}

type healthChecker interface {
	Health() string
}

// Bootstrap returns the process logger.
func Bootstrap(id string) *zap.Logger {
	fields := []zap.Field{
		zap.String("node_id", id), zap.String("version", Version()),
	}
	if allocID := os.Getenv("NOMAD_ALLOC_ID"); allocID != "" {
		fields = append(fields,
			zap.String("nomad_alloc_id", allocID),
			zap.String("nomad_alloc_name", os.Getenv("NOMAD_ALLOC_NAME")),
			zap.String("nomad_alloc_index", os.Getenv("NOMAD_ALLOC_INDEX")),
		)
	}
	opts := []zap.Option{
		zap.Fields(fields...),
	}
	var logger *zap.Logger
	var err error
	if os.Getenv("ENABLE_PRETTY_LOG") == "true" {
		logger, err = zap.NewDevelopment(opts...)
	} else {
		logger, err = zap.NewProduction(opts...)
	}
	if err != nil {
		panic(err)
	}
	return logger
}

// JoinCluster joins the given peers, retrying with an exponential backoff.
// It gives up after a few failed attempts.
func JoinCluster(layer Joiner, peers []string, logger *zap.Logger) error {
	if len(peers) == 0 {
		return nil
	}
	attempts := 0
	return backoff.Retry(func() error {
		attempts++
		err := layer.Join(peers)
		if err == nil {
			logger.Info("joined cluster", zap.Strings("cluster_peers", peers))
			return nil
		}
		logger.Warn("failed to join cluster", zap.Error(err), zap.Int("attempt", attempts))
		if attempts >= maxJoinAttempts {
			return backoff.Permanent(pkgerrors.Wrap(err, "failed to join cluster"))
		}
		return err
	}, newBackOff())
}

// JoinConsulPeers watches the consul health of service and joins the
// discovered peers once the local node shows up in the catalog. It returns
// when a join succeeded or quit is closed.
func JoinConsulPeers(api *consul.Client, service string, selfAddress string, selfPort int, layer Joiner, logger *zap.Logger, quit <-chan struct{}) error {
	var index uint64
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return nil
		default:
		}
		services, meta, err := api.Health().Service(
			service,
			"",
			false,
			&consul.QueryOptions{
				WaitIndex: index,
				WaitTime:  15 * time.Second,
			},
		)
		if err != nil {
			logger.Warn("failed to query consul", zap.Error(err))
			select {
			case <-ticker.C:
			case <-quit:
				return nil
			}
			continue
		}
		index = meta.LastIndex
		foundSelf := false
		peers := []string{}
		for _, service := range services {
			if service.Checks.AggregatedStatus() == consul.HealthCritical {
				continue
			}
			if service.Service.Address == selfAddress &&
				service.Service.Port == selfPort {
				foundSelf = true
				continue
			}
			logger.Debug("discovered node", zap.String("node_address", service.Service.Address), zap.Int("node_port", service.Service.Port))
			peers = append(peers, net.JoinHostPort(service.Service.Address, fmt.Sprint(service.Service.Port)))
		}
		if foundSelf && len(peers) > 0 {
			if err := layer.Join(peers); err == nil {
				logger.Info("joined cluster peers discovered with consul", zap.Int("peer_count", len(peers)))
				return nil
			}
		}
	}
}

// NewConsulClient returns a consul client configured from the environment.
func NewConsulClient() (*consul.Client, error) {
	consulConfig := consul.DefaultConfig()
	consulConfig.HttpClient = http.DefaultClient
	client, err := consul.NewClient(consulConfig)
	return client, pkgerrors.Wrap(err, "failed to create consul client")
}

func healthHandler(checkers ...healthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		for _, checker := range checkers {
			switch checker.Health() {
			case "warning":
				w.WriteHeader(http.StatusTooManyRequests)
				return
			case "critical":
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ServeHTTPHealth serves /health and /metrics on port until the listener fails.
func ServeHTTPHealth(logger *zap.Logger, port int, checkers ...healthChecker) {
	err := http.ListenAndServe(fmt.Sprintf("[::]:%d", port), healthHandler(checkers...))
	if err != nil {
		logger.Error("failed to run healthcheck endpoint", zap.Error(err))
	}
}
