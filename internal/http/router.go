package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

// ServeHTTP 统一处理 CORS 预检，并在请求边界捕获 panic
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler panicked",
				zap.String("path", req.URL.Path),
				zap.Any("panic", rec),
			)
			serverError(w, fmt.Sprintf("%v", rec))
		}
	}()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	if req.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// method 限定请求方法，其余返回 405
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			methodNotAllowed(w)
			return
		}
		h(w, req)
	}
}

// RegisterDefinitionRoutes 注册围栏与告警定义路由
func (r *Router) RegisterDefinitionRoutes(h *DefinitionsHandler) {
	r.Handle("/fences/save", method(http.MethodPost, h.Save(fencesResource)))
	r.Handle("/fences/load", method(http.MethodGet, h.Load(fencesResource)))
	r.Handle("/fences/remove", method(http.MethodPost, h.Remove(fencesResource)))

	r.Handle("/alerts/save", method(http.MethodPost, h.Save(alertsResource)))
	r.Handle("/alerts/load", method(http.MethodGet, h.Load(alertsResource)))
	r.Handle("/alerts/remove", method(http.MethodPost, h.Remove(alertsResource)))

	r.Handle("/definitions/export", method(http.MethodGet, h.Export))
}

// RegisterAlertRoutes 注册远程通道转发路由
func (r *Router) RegisterAlertRoutes(h *AlertsHandler) {
	r.Handle("/alerts/mail", method(http.MethodPost, h.SendMail))
	r.Handle("/alerts/telegram", method(http.MethodPost, h.SendTelegram))
	r.Handle("/alerts/dispatch", method(http.MethodPost, h.Dispatch))
}

// RegisterVisionRoutes 注册检测代理路由
func (r *Router) RegisterVisionRoutes(h *VisionHandler) {
	r.Handle("/vision/pose", method(http.MethodPost, h.Pose))
	r.Handle("/vision/segment", method(http.MethodPost, h.Segment))
}

// RegisterMonitorRoutes 注册监控状态查询路由
func (r *Router) RegisterMonitorRoutes(h *MonitorHandler) {
	r.Handle("/monitor/status", method(http.MethodGet, h.Status))
	r.Handle("/monitor/events", method(http.MethodGet, h.Events))
}

// RegisterHealthRoutes 注册健康检查与指标
func (r *Router) RegisterHealthRoutes(metricsHandler http.Handler) {
	r.Handle("/healthz", method(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		success(w, nil)
	}))
	if metricsHandler != nil {
		r.HandleHandler("/metrics", metricsHandler)
	}
}
