package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/snapshot"
	"github.com/ValentinKolb/rKV/resp/common"
	"github.com/ValentinKolb/rKV/resp/proto"
	"github.com/ValentinKolb/rKV/resp/replication"
	"github.com/ValentinKolb/rKV/resp/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = common.GetLogger("server")

// Version is reported by INFO and the CLI.
const Version = "0.1.0"

const (
	// defaultBacklogSize bounds the replication log when no size is configured
	defaultBacklogSize = 1 << 16

	// readChunkSize is the size of the pooled per-read buffers
	readChunkSize = 64 * 1024
)

// Server accepts connections from an injected connector and runs one
// session per connection. All sessions share one dispatcher, one store and
// one replication log.
type Server struct {
	config    common.ServerConfig
	connector transport.IServerConnector

	store      db.KVDB
	log        *replication.Log
	dispatcher *Dispatcher

	listener    net.Listener
	sessions    *xsync.MapOf[uint64, *session]
	nextSessID  atomic.Uint64
	dispatchSem chan struct{}
	bufferPool  *sync.Pool

	metrics *serverMetrics

	stopping atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewServer wires a server from its parts. The store is owned by the caller
// and must not be shared with another server.
//
// Usage:
//
//	s, err := server.NewServer(config, tcp.NewTCPServerConnector(), rowan.NewRowanDB(nil))
//	if err != nil {
//		panic(err)
//	}
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewServer(config common.ServerConfig, connector transport.IServerConnector, store db.KVDB) (*Server, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	backlog := config.Replication.BacklogSize
	if backlog <= 0 {
		backlog = defaultBacklogSize
	}
	log := replication.NewLog(backlog)

	var snapshots *snapshot.FileStore
	if config.Snapshot.Path != "" {
		codec, ok := snapshot.NewCodec(config.Snapshot.Codec)
		if !ok {
			return nil, fmt.Errorf("unknown snapshot codec %q", config.Snapshot.Codec)
		}
		snapshots = snapshot.NewFileStore(config.Snapshot.Path, codec)
	}

	dispatcher := NewDispatcher(store, log, &DispatcherOptions{
		ReadOnly:  config.IsReplica(),
		Snapshots: snapshots,
	})

	s := &Server{
		config:      config,
		connector:   connector,
		store:       store,
		log:         log,
		dispatcher:  dispatcher,
		sessions:    xsync.NewMapOf[uint64, *session](),
		dispatchSem: make(chan struct{}, 4*runtime.NumCPU()),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, readChunkSize)
			},
		},
		metrics: dispatcher.metrics,
		stopCh:  make(chan struct{}),
	}
	dispatcher.clients = s.sessions.Size

	Logger.Infof("Created rKV Server")
	Logger.Infof(config.String())

	return s, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// LoadSnapshot restores persisted state if a snapshot file exists. It must
// be called before Serve. A corrupt snapshot is returned as an error so the
// process can refuse to start instead of silently running empty.
func (s *Server) LoadSnapshot() error {
	seq, err := s.dispatcher.LoadSnapshot()
	if err != nil {
		return err
	}
	if seq > 0 {
		Logger.Infof("Restored snapshot up to sequence %d (%d keys)", seq, s.store.Len())
	}
	return nil
}

// Listen binds the configured endpoint. Serve calls this implicitly; tests
// call it first so the bound address is known before serving.
func (s *Server) Listen() error {
	if s.config.LogLevel != "" {
		common.InitLoggers(s.config)
	}

	listener, err := s.connector.Listen(s.config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	s.listener = listener

	Logger.Infof("Starting %s server on %s", s.connector.GetName(), s.config.Transport.Endpoint)
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown. It binds the listener if Listen
// has not been called yet and starts the configured background tasks
// (autosave, metrics endpoint).
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	if s.config.MetricsEndpoint != "" {
		go s.serveMetricsEndpoint()
	}
	if s.config.Snapshot.SaveIntervalSec > 0 && s.dispatcher.snapshots != nil {
		go s.autoSaveLoop()
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping.Load() {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := s.connector.UpgradeConnection(conn, s.config); err != nil {
			Logger.Warningf("Failed to tune connection: %v", err)
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Shutdown stops accepting connections, closes every session, waits for
// them to finish and writes a final snapshot when persistence is
// configured.
func (s *Server) Shutdown() error {
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}

	Logger.Infof("Shutting down")
	close(s.stopCh)

	if s.listener != nil {
		s.listener.Close()
	}

	// Closing the connections unblocks every session loop; follower
	// sessions detach themselves when their connection dies.
	s.sessions.Range(func(_ uint64, sess *session) bool {
		sess.conn.Close()
		return true
	})

	s.wg.Wait()

	if s.dispatcher.snapshots != nil {
		if err := s.dispatcher.Save(); err != nil {
			Logger.Errorf("Final snapshot failed: %v", err)
			return err
		}
		Logger.Infof("Final snapshot written to %s", s.config.Snapshot.Path)
	}

	return s.store.Close()
}

// Apply runs a command received from the leader's replication stream, see
// Dispatcher.Apply. Used to wire a client.Follower to a replica server.
func (s *Server) Apply(cmd proto.Command) proto.Reply {
	return s.dispatcher.Apply(cmd)
}

// Save writes a snapshot through the dispatcher, see Dispatcher.Save.
func (s *Server) Save() error {
	return s.dispatcher.Save()
}

// --------------------------------------------------------------------------
// Connection handling
// --------------------------------------------------------------------------

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()

	id := s.nextSessID.Add(1)
	sess := newSession(id, conn, s)

	s.sessions.Store(id, sess)
	s.metrics.connectionsTotal.Inc()
	s.metrics.connectionsActive.Inc()

	defer func() {
		conn.Close()
		s.sessions.Delete(id)
		s.metrics.connectionsActive.Dec()
	}()

	// The shutdown sweep may have run between Accept and the session
	// registration above, re-check so this session cannot outlive it
	if s.stopping.Load() {
		conn.Close()
	}

	sess.serve()
}

// --------------------------------------------------------------------------
// Background tasks
// --------------------------------------------------------------------------

// autoSaveLoop persists a snapshot on the configured interval until
// shutdown.
func (s *Server) autoSaveLoop() {
	interval := time.Duration(s.config.Snapshot.SaveIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.dispatcher.Save(); err != nil {
				Logger.Errorf("Auto save failed: %v", err)
			} else {
				Logger.Debugf("Auto save completed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// serveMetricsEndpoint exposes the instance metrics in Prometheus format
// plus a JSON dump of the engine statistics.
func (s *Server) serveMetricsEndpoint() {
	router := mux.NewRouter()

	router.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.metrics.WritePrometheus(w)
		metrics.WritePrometheus(w, true)
	})

	router.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		info, err := s.store.GetInfo()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			Logger.Errorf("Failed to encode info: %v", err)
		}
	})

	Logger.Infof("Starting metrics endpoint on %s", s.config.MetricsEndpoint)
	if err := http.ListenAndServe(s.config.MetricsEndpoint, router); err != nil {
		Logger.Errorf("Metrics endpoint failed: %v", err)
	}
}
