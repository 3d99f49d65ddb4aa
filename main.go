package main

import (
	"encoding/hex"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/config"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/keys"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/transport/tcp"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/logger"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/signals"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/time/monotonic"
)

var log = logger.GetLogger()

var (
	bindAddress string
	connectAddr string
	connectPeer string
)

var rootCmd = &cobra.Command{
	Use:   "gnunet-communicator-tcp",
	Short: "Encrypted TCP transport daemon",
	Long: "Maintains authenticated, encrypted TCP connections to peers and " +
		"relays application payloads over them.",
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

func init() {
	cobra.OnInitialize(config.InitConfig)
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default is $HOME/.gnunet-communicator/config.yaml)")
	rootCmd.Flags().StringVar(&bindAddress, "bind", "", "listen address, e.g. tcp-2086 (overrides config)")
	rootCmd.Flags().StringVar(&connectAddr, "connect", "", "peer address to connect to at startup, e.g. tcp-host:2086")
	rootCmd.Flags().StringVar(&connectPeer, "peer", "", "hex identity of the peer given with --connect")
}

func runDaemon() {
	cfg := config.NewTCPConfigFromViper()
	if bindAddress != "" {
		cfg.BindAddress = bindAddress
	}

	ks := keys.NewIdentityKeystore(config.KeyDir())
	key, err := ks.LoadOrCreate()
	if err != nil {
		log.WithError(err).Error("Cannot load identity key")
		os.Exit(1)
	}

	clock := monotonic.NewClock()
	if servers := config.NTPServers(); len(servers) > 0 {
		if offset, err := monotonic.SampleOffset(nil, servers); err != nil {
			log.WithError(err).Warn("NTP sampling failed, running on the local clock")
		} else {
			clock.SetOffset(offset)
			log.WithField("offset", offset).Debug("Clock offset applied")
		}
	}

	bridge := tcp.NewChannelDelivery(64)
	comm := tcp.NewCommunicator(key, cfg, clock, bridge)

	go signals.Handle()
	signals.RegisterReloadHandler(func() {
		config.InitConfig()
		log.Info("Configuration reloaded")
	})
	signals.RegisterWithdrawHandler(func() {
		log.WithField("address", comm.AdvertisedAddress()).Info("Withdrawing address")
	})

	if err := comm.Start(); err != nil {
		log.WithError(err).Error("Cannot start communicator")
		os.Exit(1)
	}
	log.WithFields(map[string]interface{}{
		"identity": comm.Identity(),
		"address":  comm.AdvertisedAddress(),
	}).Info("Communicator running")

	if addr := config.MetricsAddress(); addr != "" {
		go serveMetrics(addr)
	}

	if connectAddr != "" {
		if err := dialInitialPeer(comm); err != nil {
			log.WithError(err).Error("Initial connect failed")
		}
	}

	done := make(chan struct{})
	signals.RegisterInterruptHandler(func() {
		comm.Stop()
		close(done)
	})

	// Drain deliveries; a standalone daemon has no upper layer, so payloads
	// are logged and acknowledged immediately.
	go func() {
		for env := range bridge.Receive() {
			log.WithFields(map[string]interface{}{
				"sender": env.Sender,
				"bytes":  len(env.Payload),
			}).Debug("Payload received")
			env.Ack(nil)
		}
	}()

	<-done
}

func dialInitialPeer(comm *tcp.Communicator) error {
	raw, err := hex.DecodeString(connectPeer)
	if err != nil || len(raw) != eddsa.PeerIdentitySize {
		return tcp.ErrInvalidAddress
	}
	var target eddsa.PeerIdentity
	copy(target[:], raw)
	_, err = comm.Connect(connectAddr, target)
	return err
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics endpoint failed")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
