package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/charging-platform/chargeamps-bridge/internal/cache"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
	"github.com/charging-platform/chargeamps-bridge/internal/gateway"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
)

const maxCommandBody = 64 << 10

// StateReader 缓存读取接口，由充电桩管理器实现
type StateReader interface {
	GetChargePoints() []device.ChargePoint
	GetSnapshot(chargePointID string) (cache.Snapshot, bool)
	ConnectorView(chargePointID string, connectorID int) (device.ConnectorView, bool)
	LightView(chargePointID string) (device.LightView, bool)
}

// CommandQueue 指令入队接口，由指令分发器实现
type CommandQueue interface {
	Enqueue(name string, payload json.RawMessage) error
}

// Server 宿主侧 HTTP 接口
type Server struct {
	State    StateReader
	Commands CommandQueue
	APIToken string
	logger   *logger.Logger
}

// NewServer 创建 HTTP 接口，apiToken 为空时指令接口不做认证
func NewServer(state StateReader, commands CommandQueue, apiToken string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{State: state, Commands: commands, APIToken: apiToken, logger: log.Component("httpapi")}
}

// Routes 注册全部路由
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/chargepoints", s.ListChargePoints)
		r.Get("/chargepoints/{id}", s.GetChargePoint)
		r.Get("/chargepoints/{id}/connectors/{connectorId}", s.GetConnector)
		r.Get("/chargepoints/{id}/lights", s.GetLights)

		r.Group(func(r chi.Router) {
			if s.APIToken != "" {
				r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.APIToken, next) })
			}
			r.Post("/commands/{name}", s.SubmitCommand)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

// ListChargePoints 返回缓存中的全部充电桩信息
func (s *Server) ListChargePoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State.GetChargePoints())
}

// GetChargePoint 返回单个充电桩的缓存快照，未缓存时 404
func (s *Server) GetChargePoint(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.State.GetSnapshot(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetConnector 返回连接器视图，连接器 id 非整数时 400
func (s *Server) GetConnector(w http.ResponseWriter, r *http.Request) {
	connectorID, err := strconv.Atoi(chi.URLParam(r, "connectorId"))
	if err != nil {
		http.Error(w, "bad connector id", http.StatusBadRequest)
		return
	}
	view, ok := s.State.ConnectorView(chi.URLParam(r, "id"), connectorID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetLights 返回充电桩灯光视图
func (s *Server) GetLights(w http.ResponseWriter, r *http.Request) {
	view, ok := s.State.LightView(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SubmitCommand 指令异步执行，验证失败只在日志中体现，接口仍返回 202
func (s *Server) SubmitCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	raw, err := readAll(r, maxCommandBody)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	if err := s.Commands.Enqueue(name, raw); err != nil {
		if errors.Is(err, gateway.ErrQueueFull) || errors.Is(err, gateway.ErrDispatcherStopped) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		s.logger.Warnf("Failed to enqueue command %s: %v", name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "command": name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
