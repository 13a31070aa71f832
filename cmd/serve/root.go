package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/db/engines/rowan"
	"github.com/ValentinKolb/rKV/resp/client"
	"github.com/ValentinKolb/rKV/resp/common"
	"github.com/ValentinKolb/rKV/resp/server"
	"github.com/ValentinKolb/rKV/resp/transport"
	"github.com/ValentinKolb/rKV/resp/transport/tcp"
	"github.com/ValentinKolb/rKV/resp/transport/unix"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the rKV server",
		Long:    `Start the rKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_LOG_LEVEL=debug)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:6379", cmdUtil.WrapString("The address on which the server will listen (host:port for tcp, a file path for unix)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Idle timeout in seconds after which inactive client connections are closed (0 = never). Replica connections are exempt"))

	key = "shards"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of store shards (0 = one per CPU core)"))

	key = "snapshot-path"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Path of the snapshot file. Persistence is disabled if empty and the SAVE command is rejected"))

	key = "snapshot-codec"
	ServeCmd.PersistentFlags().String(key, "binary", cmdUtil.WrapString("Codec used for snapshot files (binary, json, gob)"))

	key = "save-interval"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Interval in seconds between automatic background snapshots (0 = manual SAVE only)"))

	key = "replica-of"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Leader address to replicate from. The server starts as a read-only replica if set"))

	key = "backlog-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of write commands kept in the replication backlog for partial resyncs (0 = default)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address on which Prometheus metrics and server info are served over HTTP (disabled if empty)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	serveCmdConfig.NumShards = viper.GetInt("shards")
	serveCmdConfig.Snapshot.Path = viper.GetString("snapshot-path")
	serveCmdConfig.Snapshot.Codec = viper.GetString("snapshot-codec")
	serveCmdConfig.Snapshot.SaveIntervalSec = viper.GetInt("save-interval")
	serveCmdConfig.Replication.ReplicaOf = viper.GetString("replica-of")
	serveCmdConfig.Replication.BacklogSize = viper.GetInt("backlog-size")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// validate the snapshot codec before any state is touched
	if serveCmdConfig.Snapshot.Path != "" {
		switch serveCmdConfig.Snapshot.Codec {
		case "binary", "json", "gob":
		default:
			return fmt.Errorf("invalid snapshot codec %s (expected one of: binary, json, gob)", serveCmdConfig.Snapshot.Codec)
		}
	}

	return nil
}

// run starts the rKV server and blocks until it is stopped by a signal
func run(_ *cobra.Command, _ []string) error {

	// parse the transport
	var (
		serverConnector transport.IServerConnector
		clientConnector transport.IClientConnector
	)
	switch viper.GetString("transport") {
	case "tcp":
		serverConnector = tcp.NewTCPServerConnector()
		clientConnector = tcp.NewTCPClientConnector()
	case "unix":
		serverConnector = unix.NewUnixServerConnector()
		clientConnector = unix.NewUnixClientConnector()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	color.Cyan("rKV v%s", server.Version)

	// create the store and the server
	store := rowan.NewRowanDB(&rowan.DBOptions{NumShards: serveCmdConfig.NumShards})
	srv, err := server.NewServer(*serveCmdConfig, serverConnector, store)
	if err != nil {
		return err
	}

	// restore persisted state before accepting connections
	if err := srv.LoadSnapshot(); err != nil {
		return fmt.Errorf("failed to load snapshot: %v", err)
	}

	// start the replication stream when running as a replica
	var follower *client.Follower
	if serveCmdConfig.IsReplica() {
		// the sync handshake needs a deadline even when the idle timeout is disabled
		syncTimeout := serveCmdConfig.TimeoutSecond
		if syncTimeout <= 0 {
			syncTimeout = 10
		}

		follower, err = client.NewFollower(common.ClientConfig{
			TimeoutSecond: syncTimeout,
			Transport: common.ClientTransportConfig{
				Endpoints: []string{serveCmdConfig.Replication.ReplicaOf},
			},
		}, clientConnector, srv.Apply)
		if err != nil {
			return err
		}
		go func() {
			_ = follower.Run()
		}()
	}

	// serve until a signal arrives or the listener fails
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		server.Logger.Infof("Received signal %v, shutting down", sig)
	case serveErr = <-errCh:
	}

	// stop the replication stream first so the final snapshot is stable
	if follower != nil {
		if err := follower.Close(); err != nil {
			server.Logger.Warningf("Failed to stop replication: %v", err)
		}
	}

	if err := srv.Shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
