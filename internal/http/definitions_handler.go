package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/metrics"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/store"

	"go.uber.org/zap"
)

// DefinitionStore 定义存储
type DefinitionStore interface {
	Load(ns store.Namespace) (store.Definitions, error)
	Put(ns store.Namespace, id string, data json.RawMessage) (store.Definitions, error)
	Remove(ns store.Namespace, id string) (store.Definitions, error)
}

// definitionResource 命名空间对应的提示文案
type definitionResource struct {
	namespace  store.Namespace
	label      string
	savedMsg   string
	removedMsg string
}

var (
	fencesResource = definitionResource{
		namespace:  store.NamespaceFences,
		label:      "fence",
		savedMsg:   "Fence have been saved succesfully.",
		removedMsg: "Fence have been deleted succesfully.",
	}
	alertsResource = definitionResource{
		namespace:  store.NamespaceAlerts,
		label:      "alert",
		savedMsg:   "Alert have been saved succesfully.",
		removedMsg: "Alert have been deleted succesfully.",
	}
)

// DefinitionsHandler 围栏/告警定义的保存、读取、删除与导出
type DefinitionsHandler struct {
	store   DefinitionStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDefinitionsHandler 创建定义处理器
func NewDefinitionsHandler(s DefinitionStore, m *metrics.Metrics, logger *zap.Logger) *DefinitionsHandler {
	if m == nil {
		m = metrics.New()
	}
	return &DefinitionsHandler{store: s, metrics: m, logger: logger}
}

// definitionRequest 保存/删除请求
type definitionRequest struct {
	ID      string
	Data    json.RawMessage
	hasData bool
}

// Save POST /{ns}/save {id, data}
func (h *DefinitionsHandler) Save(res definitionResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, msg := h.parseRequest(w, r)
		if msg != "" {
			userError(w, msg)
			return
		}
		if !req.hasData {
			userError(w, `Missing required param "data".`)
			return
		}

		defs, err := h.store.Put(res.namespace, req.ID, req.Data)
		if err != nil {
			if errors.Is(err, store.ErrInvalidData) {
				userError(w, `Parameter "data" must be valid JSON.`)
				return
			}
			h.logger.Error("Save definition failed",
				zap.String("namespace", string(res.namespace)),
				zap.String("id", req.ID),
				zap.Error(err),
			)
			serverError(w, fmt.Sprintf("Save %s error: %v", res.label, err))
			return
		}

		h.metrics.ObserveStoreMutation(string(res.namespace), string(store.OpPut))
		h.logger.Info("Definition saved",
			zap.String("namespace", string(res.namespace)),
			zap.String("id", req.ID),
		)
		success(w, map[string]any{"message": res.savedMsg, "data": nonNil(defs)})
	}
}

// Load GET /{ns}/load
func (h *DefinitionsHandler) Load(res definitionResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs, err := h.store.Load(res.namespace)
		if err != nil {
			h.logger.Error("Load definitions failed",
				zap.String("namespace", string(res.namespace)),
				zap.Error(err),
			)
			serverError(w, fmt.Sprintf("Load %ss error: %v", res.label, err))
			return
		}
		success(w, map[string]any{"data": nonNil(defs)})
	}
}

// Remove POST /{ns}/remove {id}；id 不存在时为空操作
func (h *DefinitionsHandler) Remove(res definitionResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, msg := h.parseRequest(w, r)
		if msg != "" {
			userError(w, msg)
			return
		}

		defs, err := h.store.Remove(res.namespace, req.ID)
		if err != nil {
			h.logger.Error("Remove definition failed",
				zap.String("namespace", string(res.namespace)),
				zap.String("id", req.ID),
				zap.Error(err),
			)
			serverError(w, fmt.Sprintf("Remove %s error: %v", res.label, err))
			return
		}

		h.metrics.ObserveStoreMutation(string(res.namespace), string(store.OpRemove))
		success(w, map[string]any{"message": res.removedMsg, "data": nonNil(defs)})
	}
}

// parseRequest 解析 JSON 或表单请求体；返回非空 msg 表示用户错误
func (h *DefinitionsHandler) parseRequest(w http.ResponseWriter, r *http.Request) (definitionRequest, string) {
	var req definitionRequest

	if isFormRequest(r) {
		var err error
		if isMultipart(r) {
			err = parseMultipart(w, r)
		} else {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
			err = r.ParseForm()
		}
		if err != nil {
			return req, "Invalid form body."
		}
		if !formHas(r, "id") {
			return req, `Missing required param "id".`
		}
		req.ID = r.PostForm.Get("id")
		if req.ID == "" {
			return req, `Parameter "id" must be a non-empty string.`
		}
		if formHas(r, "data") {
			raw := r.PostForm.Get("data")
			if !json.Valid([]byte(raw)) {
				return req, `Parameter "data" must be valid JSON.`
			}
			req.Data = json.RawMessage(raw)
			req.hasData = true
		}
		return req, ""
	}

	fields, err := readBodyFields(r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return req, "Request body too large."
		}
		return req, "Invalid JSON body."
	}

	rawID, ok := fields["id"]
	if !ok {
		return req, `Missing required param "id".`
	}
	if err := json.Unmarshal(rawID, &req.ID); err != nil || req.ID == "" {
		return req, `Parameter "id" must be a non-empty string.`
	}
	if data, ok := fields["data"]; ok {
		req.Data = data
		req.hasData = true
	}
	return req, ""
}

// Export GET /definitions/export?namespace=fences|alerts
func (h *DefinitionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	ns, err := store.ParseNamespace(r.URL.Query().Get("namespace"))
	if err != nil {
		userError(w, `Parameter "namespace" must be "fences" or "alerts".`)
		return
	}

	defs, err := h.store.Load(ns)
	if err != nil {
		serverError(w, fmt.Sprintf("Export error: %v", err))
		return
	}

	excelData, err := GenerateDefinitionsExport(ns, defs)
	if err != nil {
		h.logger.Error("GenerateDefinitionsExport failed", zap.Error(err))
		serverError(w, fmt.Sprintf("Export error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-export.xlsx", ns))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(excelData)
}

func nonNil(defs store.Definitions) store.Definitions {
	if defs == nil {
		return store.Definitions{}
	}
	return defs
}
