// Command cauchynode runs a full peer: the wire dispatcher, the local
// mining pool, the state store, and the RPC control server, wired
// together the way the reference daemon's single-process node does.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rjeczalik/notify"
	"github.com/rs/cors"
	uuid "github.com/satori/go.uuid"
	"gopkg.in/urfave/cli.v1"

	"github.com/cauchynet/cauchy/arena"
	"github.com/cauchynet/cauchy/config"
	"github.com/cauchynet/cauchy/crypto/signatures"
	"github.com/cauchynet/cauchy/ego"
	"github.com/cauchynet/cauchy/log"
	"github.com/cauchynet/cauchy/mining"
	"github.com/cauchynet/cauchy/p2p"
	"github.com/cauchynet/cauchy/rpc"
	"github.com/cauchynet/cauchy/stage"
	"github.com/cauchynet/cauchy/storage/database"
)

var logger = log.NewModuleLogger(log.ModuleCmd)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML configuration file",
		Value: "",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "directory holding the node's LevelDB state",
	}
	debugFlag = cli.BoolFlag{
		Name:  "debug",
		Usage: "enable debug-level logging",
	}
	natFlag = cli.StringFlag{
		Name:  "nat",
		Usage: `port mapping: "none" disables it; any other value races NAT-PMP against UPnP and uses whichever answers first (neither can be chosen alone)`,
		Value: "any",
	}
	metricsPortFlag = cli.IntFlag{
		Name:  "metricsport",
		Usage: "port to serve Prometheus metrics on, 0 disables it",
		Value: 9090,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "cauchynode"
	app.Usage = "run a peer in the network"
	app.Flags = []cli.Flag{configFlag, dataDirFlag, debugFlag, natFlag, metricsPortFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("fatal: %v", err))
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	instanceID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("generate instance id: %w", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool(debugFlag.Name) || cfg.Debugging.DaemonVerbose {
		log.SetDebug(true)
	}

	fmt.Println(color.CyanString("cauchynode"), instanceID.String())
	logger.Info("starting node", "instance", instanceID.String(), "datadir", cfg.Storage.DataDir)

	store, err := database.NewLevelDBStore(cfg.Storage.DataDir, cfg.Storage.LevelDBCache, cfg.Storage.LevelDBHandle)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	keys, err := signatures.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	localEgo := ego.New(keys)
	a := arena.New(localEgo)

	proposals := make(chan ego.MiningProposal, 16)
	resets := make(chan ego.MiningReset, 4)
	updaterDone := make(chan struct{})
	go localEgo.Updater(proposals, resets, updaterDone)
	defer close(updaterDone)

	pool := mining.Start(int(cfg.Mining.NMiningThreads), localEgo.Pubkey(), proposals)
	defer pool.Stop()

	st := stage.New(localEgo, store, 4096, pool, resets)
	daemon := p2p.New(cfg, localEgo, a, st, st)
	rpcServer := rpc.New(cfg, daemon, st, store)
	heartbeat := p2p.NewHeartbeat(a, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopNAT := make(chan struct{})
	if mech := c.String(natFlag.Name); mech != "none" {
		if n := p2p.Discover(); n != nil {
			go p2p.MapPort(n, stopNAT, "TCP", int(cfg.Network.ServerPort), int(cfg.Network.ServerPort), "cauchynode")
		} else {
			logger.Warn("no NAT-PMP or UPnP gateway discovered")
		}
	}
	defer close(stopNAT)

	go watchConfigFile(c.String(configFlag.Name))

	if port := c.Int(metricsPortFlag.Name); port > 0 {
		go serveMetrics(port)
	}

	errs := make(chan error, 2)
	go func() { errs <- daemon.Serve(ctx) }()
	go func() { errs <- rpcServer.Serve(ctx) }()
	go heartbeat.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		cancel()
		return err
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
		cancel()
	}

	select {
	case <-errs:
	case <-time.After(5 * time.Second):
		logger.Warn("shutdown timed out waiting for listeners to close")
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(configFlag.Name)
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if dir := c.String(dataDirFlag.Name); dir != "" {
		cfg.Storage.DataDir = dir
	}
	return cfg, nil
}

// watchConfigFile logs a notice when the configuration file on disk
// changes; the running node does not hot-reload, but an operator watching
// logs knows a restart is needed to pick the change up.
func watchConfigFile(path string) {
	if path == "" {
		return
	}
	events := make(chan notify.EventInfo, 1)
	if err := notify.Watch(path, events, notify.Write); err != nil {
		logger.Warn("could not watch configuration file", "path", path, "error", err)
		return
	}
	defer notify.Stop(events)
	for e := range events {
		logger.Info("configuration file changed on disk, restart to apply", "event", e.Event(), "path", e.Path())
	}
}

// serveMetrics exposes /metrics for Prometheus scraping, permissive CORS
// matching the local-network-only control-plane trust model the RPC
// server already assumes.
func serveMetrics(port int) {
	handler := cors.Default().Handler(promhttp.Handler())
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}
