package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bosonnetwork/godht/config"
	"github.com/bosonnetwork/godht/log"
	"github.com/bosonnetwork/godht/node"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bosond",
	Short: "Boson DHT node daemon",
	Long: `bosond runs a standalone Boson overlay node: it binds a UDP
socket per configured address family, joins the network through a set
of bootstrap peers, and serves find/store/announce requests from
other nodes until it receives an interrupt.`,
	PersistentPreRunE: initConfig,
	RunE:              runDaemon,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./bosond.yaml or $HOME/.config/bosond/bosond.yaml)")
	flags.String("addr4", "0.0.0.0", "IPv4 bind address, empty to disable IPv4")
	flags.String("addr6", "", "IPv6 bind address, empty to disable IPv6")
	flags.Int("port", config.DefaultPort, "UDP port shared by both address families")
	flags.String("data-dir", "", "directory for the persisted identity, routing cache, and storage database")
	flags.String("storage-uri", "", "explicit storage backend path, overriding data-dir")
	flags.StringSlice("bootstrap", nil, "bootstrap peer addresses (host:port), may be repeated")
	flags.String("metrics-addr", "", "address to serve Prometheus metrics on, empty to disable")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("dev", false, "developer mode: allow loopback/bogon bind addresses, use console logging")

	for _, name := range []string{"addr4", "addr6", "port", "data-dir", "storage-uri", "bootstrap", "metrics-addr", "log-level", "dev"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func initConfig(cmd *cobra.Command, args []string) error {
	viper.SetEnvPrefix("boson")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bosond")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/bosond")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	dev := viper.GetBool("dev")

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return fmt.Errorf("parsing log-level: %w", err)
	}
	logger, err := log.New(level, dev)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	builder := config.NewBuilder().
		WithPort(viper.GetInt("port")).
		WithLogger(logger).
		WithDeveloperMode(dev)

	if addr4 := viper.GetString("addr4"); addr4 != "" {
		ip := net.ParseIP(addr4)
		if ip == nil {
			return fmt.Errorf("invalid addr4 %q", addr4)
		}
		builder = builder.WithAddress4(ip)
	}
	if addr6 := viper.GetString("addr6"); addr6 != "" {
		ip := net.ParseIP(addr6)
		if ip == nil {
			return fmt.Errorf("invalid addr6 %q", addr6)
		}
		builder = builder.WithAddress6(ip)
	}
	if dir := viper.GetString("data-dir"); dir != "" {
		builder = builder.WithDataDir(dir)
	}
	if uri := viper.GetString("storage-uri"); uri != "" {
		builder = builder.WithStorageURI(uri)
	}

	seeds, err := resolveBootstrapAddrs(viper.GetStringSlice("bootstrap"))
	if err != nil {
		return err
	}
	if len(seeds) > 0 {
		builder = builder.WithBootstrapNodes(seeds...)
	}

	var reg *prometheus.Registry
	if metricsAddr := viper.GetString("metrics-addr"); metricsAddr != "" {
		reg = prometheus.NewRegistry()
		builder = builder.WithMetricsRegisterer(reg)
		serveMetrics(metricsAddr, reg, logger)
	}

	opts, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building options: %w", err)
	}

	n, err := node.New(opts)
	if err != nil {
		return fmt.Errorf("constructing node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bosond: node %s listening on port %d\n", n.Id(), opts.Port)

	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "bosond: shutting down")
	return n.Stop()
}

func resolveBootstrapAddrs(raw []string) ([]*net.UDPAddr, error) {
	out := make([]*net.UDPAddr, 0, len(raw))
	for _, s := range raw {
		addr, err := net.ResolveUDPAddr("udp", s)
		if err != nil {
			return nil, fmt.Errorf("resolving bootstrap peer %q: %w", s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bosond: %v\n", err)
		os.Exit(1)
	}
}

