package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mini-cassandra/mini-cassandra/internal/adminapi"
	"github.com/mini-cassandra/mini-cassandra/internal/clientproto"
	"github.com/mini-cassandra/mini-cassandra/internal/config"
	"github.com/mini-cassandra/mini-cassandra/internal/coordinator"
	"github.com/mini-cassandra/mini-cassandra/internal/gossip"
	"github.com/mini-cassandra/mini-cassandra/internal/internode"
	"github.com/mini-cassandra/mini-cassandra/internal/partitioner"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
	"github.com/mini-cassandra/mini-cassandra/internal/storage"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	var (
		nodeID        = flag.String("node-id", "", "Unique node identifier")
		address       = flag.String("address", "127.0.0.1", "Listen address")
		clientPort    = flag.Int("client-port", 9042, "Cassandra-wire client port")
		internodePort = flag.Int("internode-port", 9999, "Internode link port")
		adminPort     = flag.Int("admin-port", 8080, "HTTP admin port")
		dataDir       = flag.String("data-dir", "./data", "Data directory")
		seedNodes     = flag.String("seeds", "", "Comma-separated seed node internode addresses")
		seedFile      = flag.String("seeds-file", "", "Seed list file, one address per line")
		replFactor    = flag.Int("replication", 3, "Default replication factor")
		gossipEvery   = flag.Duration("gossip-interval", time.Second, "Gossip tick interval")
		requestWait   = flag.Duration("request-timeout", 5*time.Second, "Per-query deadline")
		configFile    = flag.String("config", "", "Configuration file path")
		showVersion   = flag.Bool("version", false, "Show version")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("cqlnode v%s (built: %s)\n", version, buildTime)
		os.Exit(0)
	}

	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if *nodeID != "" {
		cfg.NodeID = *nodeID
	} else if cfg.NodeID == "" {
		hostname, _ := os.Hostname()
		cfg.NodeID = fmt.Sprintf("%s-%d", hostname, *clientPort)
	}

	cfg.Address = *address
	cfg.ClientPort = *clientPort
	cfg.InternodePort = *internodePort
	cfg.AdminPort = *adminPort
	cfg.DataDir = *dataDir
	cfg.ReplicationFactor = *replFactor
	cfg.GossipInterval = *gossipEvery
	cfg.RequestTimeout = *requestWait

	if *seedNodes != "" {
		cfg.SeedNodes = splitAndTrim(*seedNodes, ",")
	}
	if *seedFile != "" {
		cfg.SeedFile = *seedFile
	}
	if cfg.SeedFile != "" {
		seeds, err := config.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			log.Fatalf("Failed to read seed file: %v", err)
		}
		cfg.SeedNodes = append(cfg.SeedNodes, seeds...)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.SetPrefix(fmt.Sprintf("[%s] ", cfg.NodeID))
	log.Printf("Starting node %s", cfg.NodeID)
	log.Printf("Client: %s, Internode: %s, Admin: %s", cfg.ClientAddress(), cfg.InternodeAddress(), cfg.AdminAddress())

	engine, err := storage.NewFileEngine(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer engine.Close()

	ring := partitioner.New()
	if err := ring.AddNode(cfg.InternodeAddress()); err != nil {
		log.Fatalf("Failed to seed the ring: %v", err)
	}

	// generation is the boot epoch: a restart bumps it, so peers drop every
	// version from the previous incarnation
	generation := uint64(time.Now().UnixMilli())
	membership := gossip.NewMembership(cfg.InternodeAddress(), generation)

	link := internode.New(cfg.InternodeAddress())
	catalog := schema.NewCatalog()
	coord := coordinator.New(cfg, catalog, ring, engine, link, membership)

	detector := gossip.NewFailureDetector(membership, cfg.SuspectTimeout, cfg.DeadTimeout, coord.OnEndpointChange)
	gossipProto := gossip.NewProtocol(cfg.InternodeAddress(), membership, detector, link, cfg.GossipInterval)
	gossipProto.OnEndpointChange(coord.OnEndpointChange)

	for _, seed := range cfg.SeedNodes {
		if seed == cfg.InternodeAddress() {
			continue
		}
		log.Printf("Seed node: %s", seed)
		gossipProto.AddSeed(seed)
	}

	clientServer := clientproto.NewServer(cfg, coord)
	adminServer := adminapi.NewServer(cfg, coord, ring, membership)

	if err := link.Start(); err != nil {
		log.Fatalf("Failed to start internode link: %v", err)
	}
	gossipProto.Start()
	detector.Start()

	if err := clientServer.Start(); err != nil {
		log.Fatalf("Failed to start client listener: %v", err)
	}
	go func() {
		if err := adminServer.Start(); err != nil {
			log.Printf("Admin server error: %v", err)
		}
	}()

	log.Printf("Node %s is ready", cfg.NodeID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// advertise Leaving and give gossip a chance to spread it before the
	// listeners go away
	membership.SetSelfStatus(types.StatusLeaving)
	time.Sleep(2 * cfg.GossipInterval)
	membership.SetSelfStatus(types.StatusRemoving)
	time.Sleep(cfg.GossipInterval)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientServer.Stop()
	detector.Stop()
	gossipProto.Stop()
	link.Stop()

	if err := adminServer.Stop(ctx); err != nil {
		log.Printf("Error stopping admin server: %v", err)
	}

	log.Println("Shutdown complete")
}

// splitAndTrim splits a string by separator and trims whitespace.
func splitAndTrim(s string, sep string) []string {
	if s == "" {
		return nil
	}
	parts := make([]string, 0)
	for _, p := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
