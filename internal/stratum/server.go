// Package stratum implements the pool's miner-facing JSON-RPC server:
// login/getjob/submit/keepalived dispatch, HTTP/Stratum connection
// multiplexing on one listening socket, and proof-of-work verification on
// submit. Grounded on the teacher's TCP accept loop and concurrent
// miner-connection map (internal/stratum in the teacher repo), generalized
// from classic Stratum (mining.subscribe/authorize/notify) to this pool's
// single-job-object RPC shape (spec §6).
package stratum

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cnpool/poolcore/internal/hashing"
	"github.com/cnpool/poolcore/internal/jobregistry"
	"github.com/cnpool/poolcore/internal/metrics"
	"github.com/cnpool/poolcore/internal/minersession"
	"github.com/cnpool/poolcore/internal/template"
)

// BlockSubmitter is the narrow daemon-facing interface server.go needs:
// forwarding a found block's full template blob. internal/daemon supplies
// the production implementation; nil disables found-block submission
// (useful in tests that only exercise share acceptance).
type BlockSubmitter interface {
	SubmitBlock(ctx context.Context, blobHex string) error
}

// FoundBlockRecorder persists a pending found-block record once a share
// meets network difficulty. Optional; nil disables persistence.
type FoundBlockRecorder interface {
	RecordPendingBlock(ctx context.Context, blobHex, prevHash string, height uint64) error
}

// ShareAccountant persists each accepted share's weight, keyed by the
// submitting miner's address, for the unlocker's payout accounting.
// Optional; nil disables persistence (useful in tests that only exercise
// share acceptance itself).
type ShareAccountant interface {
	RecordShare(ctx context.Context, address string, difficulty uint64) error
}

const defaultTargetTimeSeconds = 10

// Server is the Stratum-style JSON-RPC front end: one TCP listener
// multiplexed between HTTP (statistics) and Stratum (mining) traffic.
type Server struct {
	logger *zap.Logger

	httpHandler http.Handler
	listener    net.Listener
	quit        chan struct{}
	wg          sync.WaitGroup

	sessionCfg minersession.Config
	hasher     hashing.Hasher
	variant    hashing.Variant
	submitter  BlockSubmitter
	recorder   FoundBlockRecorder
	accountant ShareAccountant
	addrRE     *regexp.Regexp

	mu       sync.RWMutex
	sessions map[string]*minersession.MinerSession

	tmplMu   sync.RWMutex
	template *template.BlockTemplate
}

// NewServer creates a Server with a starting vardiff difficulty and a
// default 10s target time, a built-in MockHasher, and no block submitter
// or address validation wired in — suitable for tests and for composing
// into a fuller constructor once daemon/wallet clients exist.
func NewServer(startingDifficulty float64, logger *zap.Logger) *Server {
	return &Server{
		logger: logger,
		sessionCfg: minersession.Config{
			StartingDifficulty: uint64(math.Max(1, startingDifficulty)),
			TargetTimeSeconds:  defaultTargetTimeSeconds,
		},
		hasher:   hashing.NewMockHasher(),
		variant:  hashing.Cryptonight,
		sessions: make(map[string]*minersession.MinerSession),
		quit:     make(chan struct{}),
	}
}

// WithHasher overrides the hash verifier and CryptoNight variant.
func (s *Server) WithHasher(h hashing.Hasher, variant hashing.Variant) *Server {
	s.hasher = h
	s.variant = variant
	return s
}

// WithSubmitter wires a daemon client for found-block submission.
func (s *Server) WithSubmitter(sub BlockSubmitter) *Server {
	s.submitter = sub
	return s
}

// WithRecorder wires a database for persisting pending found blocks.
func (s *Server) WithRecorder(r FoundBlockRecorder) *Server {
	s.recorder = r
	return s
}

// WithShareAccountant wires a database for persisting accepted share
// weight, consumed by the unlocker's payout accounting.
func (s *Server) WithShareAccountant(a ShareAccountant) *Server {
	s.accountant = a
	return s
}

// WithAddressPattern enables login-address validation.
func (s *Server) WithAddressPattern(re *regexp.Regexp) *Server {
	s.addrRE = re
	return s
}

// SetHTTPHandler installs the handler used for non-Stratum connections
// (e.g. the statistics HTTP surface).
func (s *Server) SetHTTPHandler(h http.Handler) {
	s.httpHandler = h
}

// SetTemplate replaces the current block template under the template
// mutex (spec §5: template replacement is serialized per server).
func (s *Server) SetTemplate(t *template.BlockTemplate) {
	s.tmplMu.Lock()
	s.template = t
	s.tmplMu.Unlock()
	if t != nil {
		metrics.TemplateHeight.Set(float64(t.Height))
		metrics.TemplateDifficulty.Set(float64(t.Difficulty))
	}
}

// CurrentTemplate returns the current template reference. Callers should
// treat the returned pointer as immutable and not hold it across a
// blocking hash operation longer than necessary.
func (s *Server) CurrentTemplate() *template.BlockTemplate {
	s.tmplMu.RLock()
	defer s.tmplMu.RUnlock()
	return s.template
}

// SessionCount reports the number of connected, tracked miner sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// listenerAddr is the label value used for the per-port MinersConnected
// gauge. Safe to call only after Start.
func (s *Server) listenerAddr() string {
	if s.listener == nil {
		return "unknown"
	}
	return s.listener.Addr().String()
}

// Start begins listening on addr and accepting connections in the
// background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stratum: listen %s: %w", addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and waits for the accept loop to exit.
func (s *Server) Stop() error {
	close(s.quit)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				if s.logger != nil {
					s.logger.Warn("accept error", zap.Error(err))
				}
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn sniffs the connection's first byte to decide whether it is
// an HTTP request or a Stratum JSON-RPC line, per the teacher's
// HTTP/Stratum multiplexing idiom.
func (s *Server) handleConn(conn net.Conn) {
	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	isStratum := err == nil && len(first) > 0 && first[0] == '{'

	buffered, _ := br.Peek(br.Buffered())
	pc := &prefixConn{Conn: conn, prefix: append([]byte{}, buffered...)}

	if !isStratum && s.httpHandler != nil {
		l := &singleConnListener{conn: pc, done: make(chan struct{})}
		_ = http.Serve(l, s.httpHandler)
		return
	}

	s.serveStratum(pc)
}

func (s *Server) serveStratum(conn net.Conn) {
	defer conn.Close()
	codec := NewCodec(conn)
	var sendMu sync.Mutex

	var session *minersession.MinerSession
	pushDone := make(chan struct{})
	defer func() {
		close(pushDone)
		if session != nil {
			session.MarkDisconnected()
			s.mu.Lock()
			delete(s.sessions, session.MinerID.String())
			s.mu.Unlock()
			metrics.MinersConnected.WithLabelValues(s.listenerAddr()).Dec()
		}
	}()

	peerAddr := conn.RemoteAddr().String()
	var pushStarted bool

	for {
		req, err := codec.ReadRequest()
		if err != nil {
			return
		}

		resp := &Response{ID: req.ID}
		switch req.Method {
		case "login":
			sess, result, rpcErr := s.handleLogin(req, peerAddr)
			if rpcErr != nil {
				resp.Error = rpcErr
			} else {
				session = sess
				resp.Result = result
				if !pushStarted {
					pushStarted = true
					go s.forwardJobPushes(sess, codec, &sendMu, pushDone)
				}
			}
		case "getjob":
			resp.Result, resp.Error = s.handleGetJob(session, req)
		case "submit":
			resp.Result, resp.Error = s.handleSubmit(session, req)
		case "keepalived":
			if session == nil || !session.AcceptsWork() {
				resp.Error = invalidParams("unknown session")
			} else {
				session.MarkIdle()
				resp.Result = "hello"
			}
		default:
			resp.Error = invalidParams("unknown method: " + req.Method)
		}

		sendMu.Lock()
		err = codec.SendResponse(resp)
		sendMu.Unlock()
		if err != nil {
			return
		}
	}
}

// forwardJobPushes drains a session's outbound channel and writes each
// job as a `job` notification, serialized against response writes on the
// same connection via sendMu.
func (s *Server) forwardJobPushes(session *minersession.MinerSession, codec *Codec, sendMu *sync.Mutex, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case push, ok := <-session.Outbound():
			if !ok {
				return
			}
			notif := &Notification{
				Method: "job",
				Params: JobDescriptor{JobID: push.JobID, Blob: push.Blob, Target: push.Target},
			}
			sendMu.Lock()
			err := codec.SendNotification(notif)
			sendMu.Unlock()
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("job push write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func invalidParams(msg string) *rpcError {
	return &rpcError{Code: -32602, Message: msg}
}

func internalError(msg string) *rpcError {
	return &rpcError{Code: -32603, Message: msg}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleLogin(req *Request, peerAddr string) (*minersession.MinerSession, *LoginResult, *rpcError) {
	if peerAddr == "" {
		return nil, nil, invalidParams("missing peer address")
	}
	var params LoginParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, nil, invalidParams("malformed login params")
	}
	if s.addrRE != nil && params.Login != "" && !s.addrRE.MatchString(params.Login) {
		return nil, nil, invalidParams("malformed address")
	}

	tmpl := s.CurrentTemplate()
	if tmpl == nil {
		return nil, nil, internalError("no current template")
	}

	sess := minersession.New(params.Login, peerAddr, s.sessionCfg)
	sess.MarkLoggedIn()

	push, err := sess.GetJob(tmpl)
	if err != nil {
		return nil, nil, internalError(err.Error())
	}

	s.mu.Lock()
	s.sessions[sess.MinerID.String()] = sess
	s.mu.Unlock()
	metrics.MinersConnected.WithLabelValues(s.listenerAddr()).Inc()

	return sess, &LoginResult{
		ID:     sess.MinerID.String(),
		Job:    JobDescriptor{JobID: push.JobID, Blob: push.Blob, Target: push.Target},
		Status: "OK",
	}, nil
}

func (s *Server) handleGetJob(session *minersession.MinerSession, req *Request) (interface{}, *rpcError) {
	if session == nil || !session.AcceptsWork() {
		return nil, invalidParams("unknown id")
	}
	var params GetJobParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, invalidParams("malformed getjob params")
	}
	if params.ID != session.MinerID.String() {
		return nil, invalidParams("unknown id")
	}

	tmpl := s.CurrentTemplate()
	if tmpl == nil {
		return nil, internalError("no current template")
	}
	push, err := session.GetJob(tmpl)
	if err != nil {
		return nil, internalError(err.Error())
	}
	return JobDescriptor{JobID: push.JobID, Blob: push.Blob, Target: push.Target}, nil
}

func (s *Server) handleSubmit(session *minersession.MinerSession, req *Request) (interface{}, *rpcError) {
	if session == nil || !session.AcceptsWork() {
		return nil, invalidParams("unknown id")
	}
	var params SubmitParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, invalidParams("malformed submit params")
	}
	if params.ID != session.MinerID.String() {
		return nil, invalidParams("unknown id")
	}
	if len(params.Nonce) != 8 {
		return nil, invalidParams("nonce must be exactly 8 hex characters")
	}
	if _, err := hex.DecodeString(params.Nonce); err != nil {
		return nil, invalidParams("nonce must be hex")
	}

	job, ok := session.FindJob(params.JobID)
	if !ok {
		return nil, invalidParams("unknown job id")
	}

	switch session.RecordNonce(params.JobID, params.Nonce) {
	case jobregistry.UnknownJob:
		metrics.SharesRejected.WithLabelValues("unknown_job").Inc()
		return nil, invalidParams("unknown job id")
	case jobregistry.Duplicate:
		metrics.SharesRejected.WithLabelValues("duplicate_nonce").Inc()
		return nil, invalidParams("Nonce already submitted")
	}

	patched, err := template.PatchNonce(job.TemplateRef.BlockhashingBlob, params.Nonce)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	blobBytes, err := hex.DecodeString(patched)
	if err != nil {
		return nil, internalError("blob decode: " + err.Error())
	}

	hash, err := s.hasher.Hash(blobBytes, s.variant)
	if err != nil {
		return nil, internalError("hash: " + err.Error())
	}

	achieved := achievedDifficulty(hash)
	if achieved < job.TargetDifficulty {
		metrics.SharesRejected.WithLabelValues("low_difficulty").Inc()
		return nil, invalidParams("low difficulty share")
	}
	metrics.SharesAccepted.Inc()

	if s.accountant != nil {
		if err := s.accountant.RecordShare(context.Background(), session.Login, job.TargetDifficulty); err != nil && s.logger != nil {
			s.logger.Warn("record_share failed", zap.Error(err))
		}
	}

	if changed := session.RecordShare(1); changed {
		metrics.VardiffAdjustments.Inc()
		if err := session.RetargetJob(s.CurrentTemplate()); err != nil && s.logger != nil {
			s.logger.Warn("retarget_job failed", zap.Error(err))
		}
	}

	if job.TemplateRef.Difficulty > 0 && achieved >= job.TemplateRef.Difficulty {
		s.submitFoundBlock(job, params.Nonce)
	}

	return "Result accepted", nil
}

// submitFoundBlock forwards a share meeting network difficulty to the
// daemon and records a pending FoundBlock, per spec §4.5. The full
// blocktemplate_blob shares the same 86-hex-char header as
// blockhashing_blob, so the PoW nonce is patched at the same [78:86)
// offset before submission. Best-effort: failures are logged, not
// retried inline.
func (s *Server) submitFoundBlock(job *jobregistry.Job, nonce string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	patchedFull, err := template.PatchNonce(job.TemplateRef.BlocktemplateBlob, nonce)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("patch found-block nonce failed", zap.Error(err))
		}
		return
	}

	metrics.BlocksFound.Inc()
	if s.submitter != nil {
		if err := s.submitter.SubmitBlock(ctx, patchedFull); err != nil {
			metrics.BlockSubmissions.WithLabelValues("error").Inc()
			if s.logger != nil {
				s.logger.Error("submitblock failed", zap.Error(err))
			}
		} else {
			metrics.BlockSubmissions.WithLabelValues("ok").Inc()
		}
	}
	if s.recorder != nil {
		if err := s.recorder.RecordPendingBlock(ctx, patchedFull, job.TemplateRef.PrevHash, job.Height); err != nil && s.logger != nil {
			s.logger.Error("record pending block failed", zap.Error(err))
		}
	}
}

// achievedDifficulty interprets the last 8 bytes of hash as a
// little-endian u64 h and returns floor(u64::MAX / h), per spec §4.5.
// h == 0 is treated as the maximum achievable difficulty.
func achievedDifficulty(hash [32]byte) uint64 {
	h := binary.LittleEndian.Uint64(hash[24:32])
	if h == 0 {
		return math.MaxUint64
	}
	return math.MaxUint64 / h
}

// RetargetAll pushes a fresh job to every connected session against the
// given template; used by the TemplateRefresher after a height increase
// (spec §4.6). Failures are logged, not retried.
func (s *Server) RetargetAll(tmpl *template.BlockTemplate) {
	s.mu.RLock()
	sessions := make([]*minersession.MinerSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		if !sess.AcceptsWork() {
			continue
		}
		if err := sess.RetargetJob(tmpl); err != nil && s.logger != nil {
			s.logger.Warn("retarget_job failed", zap.String("miner_id", sess.MinerID.String()), zap.Error(err))
		}
	}
}

func decodeParams(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	return json.Unmarshal(raw, target)
}
