// Package main is the worker process entry point (spec.md §4, all
// components wired together): load or generate an identity, load config,
// open the sealed master-key history and chainstore, and start serving
// the external interfaces while ticking the orchestrator.
//
// Structured on the teacher's cmd/kcn/main.go: a gopkg.in/urfave/cli.v1
// App with global flags and an app.Action that runs the long-lived
// process, starting the metrics exporter itself.
package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/ccworker/pruntime-core/chainstore"
	"github.com/ccworker/pruntime-core/config"
	"github.com/ccworker/pruntime-core/egress"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/keylifecycle"
	"github.com/ccworker/pruntime-core/log"
	"github.com/ccworker/pruntime-core/metrics"
	"github.com/ccworker/pruntime-core/mq"
	"github.com/ccworker/pruntime-core/orchestrator"
	"github.com/ccworker/pruntime-core/rpcext"
)

var logger = log.NewModuleLogger("pruntime")

var (
	DataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Directory holding the identity seed, sealed master-key history and chainstore",
		Value: "./data",
	}
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML config file overriding the defaults",
		Value: "",
	}
	ListenAddrFlag = cli.StringFlag{
		Name:  "rpc.addr",
		Usage: "Address the external interfaces HTTP server listens on",
	}
	MetricsAddrFlag = cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Address the Prometheus exporter listens on",
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "Confidential-compute worker control plane"
	app.Flags = []cli.Flag{DataDirFlag, ConfigFileFlag, ListenAddrFlag, MetricsAddrFlag}
	app.Action = run
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	dataDir := ctx.String(DataDirFlag.Name)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("pruntime: create data dir: %w", err)
	}

	cfg := config.Default()
	if path := ctx.String(ConfigFileFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("pruntime: load config: %w", err)
		}
		cfg = loaded
	}
	if v := ctx.String(ListenAddrFlag.Name); v != "" {
		cfg.ListenAddr = v
	}
	if v := ctx.String(MetricsAddrFlag.Name); v != "" {
		cfg.MetricsAddr = v
	}

	self, err := loadOrGenerateIdentity(filepath.Join(dataDir, "identity.seed"))
	if err != nil {
		return fmt.Errorf("pruntime: identity: %w", err)
	}
	logger.Info("worker identity loaded", "pubkey", hex.EncodeToString(pubKeyBytes(self)))

	var sealKey [32]byte
	copy(sealKey[:], self.Seed()[:]) // the seal key is domain-bound to this worker's own seed
	store := keylifecycle.NewSealStore(filepath.Join(dataDir, "master_key_history.sealed"), sealKey)
	kls, err := keylifecycle.NewKLS(self, store)
	if err != nil {
		return fmt.Errorf("pruntime: open sealed history: %w", err)
	}

	chain, err := chainstore.Open(filepath.Join(dataDir, "chainstore"))
	if err != nil {
		return fmt.Errorf("pruntime: open chainstore: %w", err)
	}
	defer chain.Close()

	router := mq.NewRouter()
	eg := egress.NewQueue()
	o := orchestrator.New(self, orchestrator.Version{
		Major: cfg.PRuntimeVersion.Major,
		Minor: cfg.PRuntimeVersion.Minor,
		Patch: cfg.PRuntimeVersion.Patch,
	}, kls, router, eg)
	o.SetChainStore(chain)

	go metrics.Serve(cfg.MetricsAddr)

	srv := rpcext.NewServer(kls, o.Gatekeeper(), o)
	go func() {
		logger.Info("external interfaces listening", "addr", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, srv.Mux()); err != nil {
			logger.Error("external interfaces server stopped", "err", err)
		}
	}()

	logger.Info("pruntime worker started", "datadir", dataDir)
	runTickLoop(o)
	return nil
}

// runTickLoop drives one orchestrator.Tick per block. The chain client that
// would normally deliver block_number/now_ms over the Message Router is
// outside this worker's scope (spec.md treats the pallet side as given), so
// this stands in with a fixed-cadence ticker; swapping in a real block
// subscription only means replacing this loop's source of (blockNumber,
// nowMs), not anything downstream of Tick.
func runTickLoop(o *orchestrator.Orchestrator) {
	const blockPeriod = 3 * time.Second
	ticker := time.NewTicker(blockPeriod)
	defer ticker.Stop()

	var blockNumber uint64
	for range ticker.C {
		blockNumber++
		o.Tick(blockNumber, uint64(time.Now().UnixNano()/int64(time.Millisecond)))
	}
}

func loadOrGenerateIdentity(path string) (*identity.Identity, error) {
	if raw, err := ioutil.ReadFile(path); err == nil {
		var seed [32]byte
		if len(raw) != len(seed) {
			return nil, fmt.Errorf("identity seed file %s has unexpected length %d", path, len(raw))
		}
		copy(seed[:], raw)
		return identity.FromSeed(seed), nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	seed, err := identity.GenerateSeed()
	if err != nil {
		return nil, err
	}
	if err := ioutil.WriteFile(path, seed[:], 0600); err != nil {
		return nil, err
	}
	return identity.FromSeed(seed), nil
}

func pubKeyBytes(id *identity.Identity) []byte {
	pk := id.PubKey()
	return pk[:]
}
