package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/zkballot/api"
	"go.vocdoni.io/zkballot/config"
	"go.vocdoni.io/zkballot/crypto/ethereum"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/metadb"
	"go.vocdoni.io/zkballot/ledger"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/metrics"
	"go.vocdoni.io/zkballot/state"
	"go.vocdoni.io/zkballot/voting"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func loadConfig() *config.Config {
	conf := config.Default()
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	flag.StringVar(&conf.DataDir, "dataDir", filepath.Join(home, ".ballotd"), "storage data directory")
	flag.StringVar(&conf.DBType, "dbType", conf.DBType, fmt.Sprintf("database backend (%s, %s)", db.TypePebble, db.TypeMemory))
	flag.StringVar(&conf.LogLevel, "logLevel", conf.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&conf.LogOutput, "logOutput", conf.LogOutput, "log output (stdout, stderr or filepath)")
	flag.StringVar(&conf.LogErrorFile, "logErrorFile", "", "log file for warnings and errors")
	flag.StringVar(&conf.Admin, "admin", "", "admin address, allowed to add candidates and set the voting period")
	flag.StringVar(&conf.AdminKey, "adminKey", "", "admin private hexadecimal key, the admin address is derived from it")
	flag.StringVar(&conf.ListenHost, "listenHost", conf.ListenHost, "API host to bind")
	flag.IntVar(&conf.ListenPort, "listenPort", conf.ListenPort, "API port to bind")
	flag.DurationVar(&conf.BlockPeriod, "blockPeriod", conf.BlockPeriod, "block time target")
	flag.IntVar(&conf.TxsPerBlock, "txsPerBlock", conf.TxsPerBlock, "max number of transactions per block")
	flag.IntVar(&conf.MempoolSize, "mempoolSize", conf.MempoolSize, "max number of pending transactions")
	flag.StringVar(&conf.Verifier, "verifier", conf.Verifier, fmt.Sprintf("proof verifier (%s, %s, %s)",
		config.VerifierGroth16, config.VerifierRapidsnark, config.VerifierCanned))
	flag.StringVar(&conf.VerificationKey, "verificationKey", "", "path to the snarkjs verification_key.json")
	flag.StringVar(&conf.Genesis, "genesis", "", "path to the genesis candidates file")
	flag.BoolVar(&conf.Metrics, "metrics", conf.Metrics, "enable the prometheus metrics")
	flag.CommandLine.SortFlags = false
	flag.Parse()

	pviper := viper.New()
	pviper.SetConfigName(config.DefaultConfigName)
	pviper.SetConfigType("yml")
	pviper.SetEnvPrefix("BALLOT")
	pviper.AutomaticEnv()
	pviper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// the data dir is needed first to find the config file
	if err := pviper.BindPFlag("dataDir", flag.Lookup("dataDir")); err != nil {
		panic(err)
	}
	conf.DataDir = pviper.GetString("dataDir")
	pviper.AddConfigPath(conf.DataDir)
	_ = pviper.ReadInConfig()

	if err := pviper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}

	_, err = os.Stat(filepath.Join(conf.DataDir, config.DefaultConfigName+".yml"))
	if err != nil {
		if os.IsNotExist(err) {
			if err = os.MkdirAll(conf.DataDir, os.ModePerm); err != nil {
				panic(err)
			}
			if err := pviper.SafeWriteConfig(); err != nil {
				panic(err)
			}
		} else {
			panic(err)
		}
	}
	if err := pviper.Unmarshal(conf); err != nil {
		panic(err)
	}

	// generate a new admin key if no admin is configured and save it
	if conf.Admin == "" && conf.AdminKey == "" {
		fmt.Println("generating new random key for the admin")
		adminKey := ethereum.NewSignKeys()
		if err := adminKey.Generate(); err != nil {
			panic(err)
		}
		conf.AdminKey = adminKey.PrivateKeyHex()
		pviper.Set("adminKey", conf.AdminKey)
		if err := pviper.WriteConfig(); err != nil {
			panic(err)
		}
	}
	return conf
}

func newVerifier(conf *config.Config) (verifier.ProofVerifier, error) {
	if conf.Verifier == config.VerifierCanned {
		log.Warnw("canned verifier in use, every vote will be rejected")
		return verifier.NewCanned(), nil
	}
	vkey, err := os.ReadFile(conf.VerificationKey)
	if err != nil {
		return nil, fmt.Errorf("cannot read verification key: %w", err)
	}
	if conf.Verifier == config.VerifierRapidsnark {
		return verifier.NewRapidsnark(vkey)
	}
	return verifier.NewGroth16(vkey)
}

func main() {
	// Report the version before loading the config or logger init, just in case something goes wrong.
	fmt.Fprintf(os.Stderr, "ballotd version %q\n", Version)

	conf := loadConfig()
	log.Init(conf.LogLevel, conf.LogOutput)
	if conf.LogErrorFile != "" {
		if err := log.SetFileErrorLog(conf.LogErrorFile); err != nil {
			log.Fatal(err)
		}
	}
	log.Infow("starting "+filepath.Base(os.Args[0]), "version", Version)
	log.Infof("using data directory at %s", conf.DataDir)

	if conf.AdminKey != "" {
		adminKey := ethereum.NewSignKeys()
		if err := adminKey.AddHexKey(conf.AdminKey); err != nil {
			log.Fatal(err)
		}
		if conf.Admin != "" && !strings.EqualFold(conf.Admin, adminKey.Address().Hex()) {
			log.Fatalf("admin %s does not match the admin key %s", conf.Admin, adminKey.Address().Hex())
		}
		conf.Admin = adminKey.Address().Hex()
	}
	if err := conf.Validate(); err != nil {
		log.Fatal(err)
	}
	log.Infow("admin configured", "address", conf.AdminAddress().Hex())

	stores, err := metadb.Open(conf.DBType, filepath.Join(conf.DataDir, "data"))
	if err != nil {
		log.Fatal(err)
	}
	st, err := state.New(stores.State)
	if err != nil {
		log.Fatal(err)
	}
	pv, err := newVerifier(conf)
	if err != nil {
		log.Fatal(err)
	}
	o, err := voting.New(st, pv, conf.AdminAddress())
	if err != nil {
		log.Fatal(err)
	}

	// an election without genesis file gets a random id and no candidates
	var genesis *config.Genesis
	if conf.Genesis != "" {
		genesis, err = config.LoadGenesis(conf.Genesis)
	} else {
		genesis, err = config.ParseGenesis([]byte("{}"))
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := o.ApplyGenesis(genesis, time.Now()); err != nil {
		log.Fatal(err)
	}

	l, err := ledger.New(o, stores.Ledger, ledger.Options{
		TxsPerBlock:     conf.TxsPerBlock,
		BlockTimeTarget: conf.BlockPeriod,
		MempoolSize:     conf.MempoolSize,
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("ledger ready", "election", l.ElectionID(), "height", l.Height())

	apiConf := &api.APIConfig{
		Host:   conf.ListenHost,
		Port:   conf.ListenPort,
		Ledger: l,
	}
	if conf.Metrics {
		collector := metrics.NewCollector(st, l.MempoolSize)
		if err := collector.Refresh(); err != nil {
			log.Warnw("cannot refresh metrics", "error", err)
		}
		info := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ballot_info",
			Help:        "Node build and election information",
			ConstLabels: prometheus.Labels{"version": Version, "election": l.ElectionID()},
		})
		info.Set(1)
		metrics.Register(collector.Registry(), info)
		apiConf.Metrics = collector.Registry()
		apiConf.PrometheusID = "ballot_http"
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	uAPI, err := api.New(apiConf)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := uAPI.Start(); err != nil {
		log.Fatal(err)
	}

	// close if interrupt received
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Warnf("received SIGTERM, exiting at %s", time.Now().Format(time.RFC850))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := uAPI.Stop(shutdownCtx); err != nil {
		log.Warnw("api shutdown", "error", err)
	}
	cancel()
	l.Stop()
	if err := stores.Close(); err != nil {
		log.Warnw("database close", "error", err)
	}
}
