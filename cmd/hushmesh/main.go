package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/baderanaas/hushmesh/internal/config"
	"github.com/baderanaas/hushmesh/pkg/libp2p"
	"github.com/baderanaas/hushmesh/pkg/metrics"
	"github.com/baderanaas/hushmesh/pkg/overlay"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("hushmesh")

var (
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "node name (overrides NODE_NAME)",
	}
	namespaceFlag = &cli.StringFlag{
		Name:  "namespace",
		Usage: "topic namespace (overrides TOPIC_NAMESPACE)",
	}
	brokerFlag = &cli.StringFlag{
		Name:  "broker",
		Usage: "multiaddr of a peer to dial on startup (overrides BROKER_ADDRESS)",
	}
	keyDirFlag = &cli.StringFlag{
		Name:  "key-dir",
		Usage: "directory holding public.pem, private.pem and identity.key (overrides KEY_DIR)",
	}
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "libp2p listen port, 0 for random (overrides LISTEN_PORT)",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http-addr",
		Usage: "HTTP API listen address (overrides HTTP_ADDR)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level (overrides LOG_LEVEL)",
	}

	nodeFlags = []cli.Flag{nameFlag, namespaceFlag, brokerFlag, keyDirFlag, portFlag, logLevelFlag}
)

func main() {
	app := &cli.App{
		Name:  "hushmesh",
		Usage: "end-to-end encrypted messaging over a shared pub/sub bus",
		Commands: []*cli.Command{
			serveCommand,
			chatCommand,
			keygenCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, applies flag overrides and sets the log level.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}

	if c.IsSet(nameFlag.Name) {
		cfg.NodeName = c.String(nameFlag.Name)
	}
	if c.IsSet(namespaceFlag.Name) {
		cfg.Namespace = c.String(namespaceFlag.Name)
	}
	if c.IsSet(brokerFlag.Name) {
		cfg.BrokerAddress = c.String(brokerFlag.Name)
	}
	if c.IsSet(keyDirFlag.Name) {
		cfg.KeyDir = c.String(keyDirFlag.Name)
	}
	if c.IsSet(portFlag.Name) {
		cfg.ListenPort = c.Int(portFlag.Name)
	}
	if c.IsSet(httpAddrFlag.Name) {
		cfg.HTTPAddr = c.String(httpAddrFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = c.String(logLevelFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.SetLogLevelRegex("hushmesh.*", cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}
	return cfg, nil
}

// startNode creates the libp2p bus and starts an overlay node on it.
func startNode(ctx context.Context, cfg *config.Config, m metrics.Metrics) (*overlay.Node, *libp2p.Bus, error) {
	bus, err := libp2p.New(libp2p.Config{
		ListenPort:  cfg.ListenPort,
		IdentityDir: cfg.KeyDir,
		EnableMDNS:  cfg.EnableMDNS,
		EnableDHT:   cfg.EnableDHT,
	})
	if err != nil {
		return nil, nil, err
	}

	nodeCfg := cfg.NodeConfig()
	nodeCfg.Metrics = m
	node, err := overlay.NewNode(nodeCfg, bus)
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	if err := node.Start(ctx); err != nil {
		_ = bus.Close()
		return nil, nil, err
	}

	for _, addr := range bus.Addrs() {
		log.Infow("listening", "addr", addr.String())
	}
	return node, bus, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
