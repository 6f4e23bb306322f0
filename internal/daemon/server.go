package daemon

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/PyRo1121/omg-sub002/internal/engine"
	"github.com/PyRo1121/omg-sub002/internal/security"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
)

// batchConcurrencyCap is §4.2's "Batch requests are fanned out with a
// concurrency cap of 16 to bound resource use".
const batchConcurrencyCap = 16

// handlerTimeout and writeBackpressureTimeout are §4.2's per-request and
// backpressure limits.
const handlerTimeout = 30 * time.Second
const writeBackpressureTimeout = 5 * time.Second

// shutdownDrainTimeout is §5's "Global shutdown waits up to 5s for
// in-flight requests to drain, then aborts."
const shutdownDrainTimeout = 5 * time.Second

// Server is the Unix-socket accept loop and per-connection dispatcher
// (§4.2). A single accept loop spawns one goroutine per connection; each
// connection reads frames and dispatches them concurrently, replying as
// each completes (§4.2: "responses may be reordered relative to request
// arrival").
type Server struct {
	eng         *engine.Engine
	resultCache *ResultCache
	auditRunner *AuditRunner
	metrics     *Metrics
	log         *logging.Logger
	keyring     *security.Keyring

	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
	done     chan struct{}
}

// NewServer wires a Server against an already-started Engine and
// AuditRunner.
func NewServer(eng *engine.Engine, resultCache *ResultCache, auditRunner *AuditRunner, metrics *Metrics, log *logging.Logger) *Server {
	return &Server{
		eng:         eng,
		resultCache: resultCache,
		auditRunner: auditRunner,
		metrics:     metrics,
		log:         log,
		done:        make(chan struct{}),
	}
}

// WithKeyring attaches a PGP keyring so MsgTransact can verify local-file
// installs before commit (§4.3). A nil keyring (the default) leaves
// verification to the native backend, matching cmd/omgd's dev/test mode
// where no distro keyring file is configured.
func (s *Server) WithKeyring(keyring *security.Keyring) *Server {
	s.keyring = keyring
	return s
}

// Serve listens on socketPath and accepts connections until ctx is
// cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return omgerrors.Internal("failed to listen on daemon socket", err)
	}
	s.listener = listener

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shuttingDown := s.shutdown
			s.mu.Unlock()
			if shuttingDown {
				return nil
			}
			return omgerrors.Internal("daemon accept loop failed", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Shutdown stops accepting new connections and waits up to
// shutdownDrainTimeout for in-flight handlers to finish.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(shutdownDrainTimeout):
		s.log.LogSecurityEvent(context.Background(), "daemon_shutdown_timeout", nil)
	}
	close(s.done)
}

// Done returns a channel closed once Shutdown has finished draining.
func (s *Server) Done() <-chan struct{} { return s.done }

// handleConn reads frames off conn until it is closed or the connection
// write buffer backs up past writeBackpressureTimeout, dispatching each
// request on its own goroutine so a slow request does not block others
// on the same connection (§4.2: responses may arrive out of order).
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			cancel()
			return
		}

		inFlight.Add(1)
		go func(req Request) {
			defer inFlight.Done()
			resp := s.dispatch(connCtx, req)
			s.writeResponse(conn, &writeMu, resp)
		}(req)
	}
}

func (s *Server) writeResponse(conn net.Conn, writeMu *sync.Mutex, resp Response) {
	writeMu.Lock()
	defer writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeBackpressureTimeout))
	if err := WriteFrame(conn, resp); err != nil {
		s.log.LogRequest(context.Background(), "write_frame", resp.ID, 0, err)
	}
}

// dispatch decodes req's payload against its Kind and runs the matching
// handler under handlerTimeout.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	resp := s.route(ctx, req)

	duration := time.Since(start)
	var err error
	if resp.Error != nil {
		err = omgerrors.Internal(resp.Error.Message, nil)
	}
	s.log.LogRequest(ctx, string(req.Kind), req.ID, duration, err)
	if s.metrics != nil {
		s.metrics.ObserveRequest(string(req.Kind), duration, resp.Error == nil)
	}
	return resp
}

func (s *Server) route(ctx context.Context, req Request) Response {
	switch req.Kind {
	case MsgPing:
		return successResponse(req.ID, map[string]string{"status": "ok"})

	case MsgSearch:
		var p SearchPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errorResponse(req.ID, omgerrors.InvalidJSON("search payload", err))
		}
		results, err := s.resultCache.Search(ctx, p.Query, p.Limit)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return successResponse(req.ID, results)

	case MsgInfo:
		var p InfoPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errorResponse(req.ID, omgerrors.InvalidJSON("info payload", err))
		}
		pkg, found, err := s.resultCache.Info(ctx, p.Package)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		if !found {
			return errorResponse(req.ID, omgerrors.PackageNotFound(p.Package))
		}
		return successResponse(req.ID, pkg)

	case MsgSuggest:
		var p SuggestPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errorResponse(req.ID, omgerrors.InvalidJSON("suggest payload", err))
		}
		results, err := s.resultCache.Suggest(ctx, p.Query, p.Limit)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return successResponse(req.ID, results)

	case MsgStatus:
		status, err := s.eng.Status(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return successResponse(req.ID, status)

	case MsgExplicit:
		names, err := s.eng.Explicit(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return successResponse(req.ID, names)

	case MsgExplicitCount:
		names, err := s.eng.Explicit(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return successResponse(req.ID, map[string]int{"count": len(names)})

	case MsgSecurityAudit:
		result, err := s.auditRunner.Run(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return successResponse(req.ID, result)

	case MsgCacheStats:
		return successResponse(req.ID, s.resultCache.Stats())

	case MsgCacheClear:
		s.resultCache.Clear()
		return successResponse(req.ID, map[string]bool{"cleared": true})

	case MsgMetrics:
		if s.metrics == nil {
			return successResponse(req.ID, map[string]string{})
		}
		return successResponse(req.ID, s.metrics.Snapshot())

	case MsgTransact:
		var p TransactPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errorResponse(req.ID, omgerrors.InvalidJSON("transact payload", err))
		}
		result, err := s.runTransact(ctx, p)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return successResponse(req.ID, result)

	case MsgBatch:
		var p BatchPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errorResponse(req.ID, omgerrors.InvalidJSON("batch payload", err))
		}
		return successResponse(req.ID, s.runBatch(ctx, p.Requests))

	default:
		return errorResponse(req.ID, omgerrors.Internal("unknown request kind: "+string(req.Kind), nil))
	}
}

// runBatch fans out sub-requests with batchConcurrencyCap concurrency
// (§4.2) and returns the Open-Question-(a) partial-success envelope:
// every sub-request's own outcome travels in its ItemResult regardless
// of whether it succeeded.
func (s *Server) runBatch(ctx context.Context, requests []Request) BatchResult {
	items := make([]ItemResult, len(requests))
	sem := make(chan struct{}, batchConcurrencyCap)
	var wg sync.WaitGroup

	for i, sub := range requests {
		wg.Add(1)
		go func(i int, sub Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if s.metrics != nil {
				s.metrics.IncBatchInFlight()
				defer s.metrics.DecBatchInFlight()
			}

			resp := s.route(ctx, sub)
			if resp.Error != nil {
				items[i] = ItemResult{ID: sub.ID, OK: false, Error: resp.Error}
			} else {
				items[i] = ItemResult{ID: sub.ID, OK: true, Result: resp.Result}
			}
		}(i, sub)
	}
	wg.Wait()

	return BatchResult{Items: items}
}
