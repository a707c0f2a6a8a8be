package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-comms/internal/core/connmgr"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/lib/log"
	"github.com/dep2p/go-comms/pkg/types"
)

var logger = log.Logger("debug/introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// queryTimeout 单次向连接管理器查询的超时
const queryTimeout = 2 * time.Second

// ============================================================================
//                              配置
// ============================================================================

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Identity 本节点身份（可选）
	Identity *identity.Identity

	// Requester 连接管理器客户端（可选）
	Requester *connmgr.Requester

	// Directory 节点目录（可选）
	Directory interfaces.PeerDirectory

	// Gatherer 指标来源（可选，为 nil 时不提供 /metrics）
	Gatherer prometheus.Gatherer
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地诊断 HTTP 服务
type Server struct {
	config Config

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建诊断服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{config: cfg}
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/node", s.handleNode)
	mux.HandleFunc("/debug/introspect/connections", s.handleConnections)
	mux.HandleFunc("/debug/introspect/peers", s.handlePeers)
	mux.HandleFunc("/debug/introspect/runtime", s.handleRuntime)

	if s.config.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("诊断服务异常退出", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	logger.Info("诊断服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("关闭诊断服务失败", "error", err)
		return err
	}

	s.running = false
	logger.Info("诊断服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// IntrospectResponse 完整诊断响应
type IntrospectResponse struct {
	Timestamp   time.Time       `json:"timestamp"`
	Uptime      string          `json:"uptime"`
	Node        *NodeInfo       `json:"node,omitempty"`
	Connections *ConnectionInfo `json:"connections,omitempty"`
	Runtime     *RuntimeInfo    `json:"runtime,omitempty"`
}

// NodeInfo 本节点信息
type NodeInfo struct {
	ID        string   `json:"id"`
	PublicKey string   `json:"public_key"`
	Addresses []string `json:"addresses"`
	Features  uint64   `json:"features"`
}

// ConnectionInfo 连接统计
type ConnectionInfo struct {
	Total    int        `json:"total"`
	Inbound  int        `json:"inbound"`
	Outbound int        `json:"outbound"`
	Conns    []ConnInfo `json:"conns,omitempty"`
}

// ConnInfo 单条连接
type ConnInfo struct {
	ID            string    `json:"id"`
	Peer          string    `json:"peer"`
	Direction     string    `json:"direction"`
	RemoteAddr    string    `json:"remote_addr"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Substreams    int       `json:"substreams"`
	EstablishedAt time.Time `json:"established_at"`
}

// PeerInfo 节点目录中的记录
type PeerInfo struct {
	ID        string   `json:"id"`
	Addresses []string `json:"addresses"`
	Banned    bool     `json:"banned,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	resp := IntrospectResponse{
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
		Node:      s.collectNodeInfo(),
		Runtime:   collectRuntimeInfo(),
	}
	if info, err := s.collectConnectionInfo(r.Context()); err == nil {
		resp.Connections = info
	}

	s.writeJSON(w, resp)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	info := s.collectNodeInfo()
	if info == nil {
		http.Error(w, "Node info not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, info)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	info, err := s.collectConnectionInfo(r.Context())
	if err != nil {
		http.Error(w, "Connection info not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, info)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	peers, err := s.collectPeers(r.Context())
	if err != nil {
		http.Error(w, "Peer info not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, peers)
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, collectRuntimeInfo())
}

// handleHealth 连接管理器停止后返回 degraded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
	}
	if _, err := s.collectConnectionInfo(r.Context()); err != nil {
		health.Status = "degraded"
	}
	s.writeJSON(w, health)
}

// ============================================================================
//                              数据收集
// ============================================================================

func (s *Server) collectNodeInfo() *NodeInfo {
	id := s.config.Identity
	if id == nil {
		return nil
	}

	return &NodeInfo{
		ID:        id.NodeID().String(),
		PublicKey: types.EncodePublicKey(id.PublicKey()),
		Addresses: multiaddrStrings(id.PublicAddresses()),
		Features:  uint64(id.Features()),
	}
}

var errUnavailable = errors.New("introspect: source unavailable")

func (s *Server) collectConnectionInfo(ctx context.Context) (*ConnectionInfo, error) {
	if s.config.Requester == nil {
		return nil, errUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	conns, err := s.config.Requester.ActiveConnections(ctx)
	if err != nil {
		return nil, err
	}

	info := &ConnectionInfo{Total: len(conns), Conns: make([]ConnInfo, 0, len(conns))}
	for _, c := range conns {
		if c.Direction() == types.DirInbound {
			info.Inbound++
		} else {
			info.Outbound++
		}
		ci := ConnInfo{
			ID:            c.ID().String(),
			Peer:          c.PeerNodeID().String(),
			Direction:     c.Direction().String(),
			Substreams:    c.NumSubstreams(),
			EstablishedAt: c.EstablishedAt(),
		}
		if addr := c.RemoteAddr(); addr != nil {
			ci.RemoteAddr = addr.String()
		}
		if pi := c.PeerIdentity(); pi != nil {
			ci.UserAgent = pi.UserAgent
		}
		info.Conns = append(info.Conns, ci)
	}
	return info, nil
}

func (s *Server) collectPeers(ctx context.Context) ([]PeerInfo, error) {
	if s.config.Directory == nil {
		return nil, errUnavailable
	}

	peers, err := s.config.Directory.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerInfo{
			ID:        p.NodeID.String(),
			Addresses: multiaddrStrings(p.AddressList()),
			Banned:    p.IsBanned(),
			UserAgent: p.UserAgent,
		})
	}
	return out, nil
}

func collectRuntimeInfo() *RuntimeInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

// ============================================================================
//                              辅助方法
// ============================================================================

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func multiaddrStrings(addrs []ma.Multiaddr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logger.Error("JSON 编码失败", "error", err)
	}
}
