package httpapi

import "net/http"

// 响应信封：
// - 成功 {status:"ok", ...fields}，HTTP 200
// - 用户错误 {status:"fail", error}，HTTP 400
// - 服务端/上游错误 {status:"fail", error:"Server error: ..."}，HTTP 500
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// success 合并字段后写入成功信封；status 字段总是最后写入
func success(w http.ResponseWriter, fields map[string]any) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["status"] = StatusOK
	writeJSON(w, http.StatusOK, body)
}

func userError(w http.ResponseWriter, message string) {
	fail(w, http.StatusBadRequest, message)
}

func serverError(w http.ResponseWriter, message string) {
	fail(w, http.StatusInternalServerError, "Server error: "+message)
}

func methodNotAllowed(w http.ResponseWriter) {
	fail(w, http.StatusMethodNotAllowed, "Method not allowed.")
}

func fail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"status": StatusFail, "error": message})
}
