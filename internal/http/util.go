package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	maxJSONBody      = 1 << 20  // 1 MiB
	maxMultipartBody = 16 << 20 // 16 MiB
)

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// parseFormBool 与 "true" 比较（不区分大小写）
func parseFormBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// readBodyFields 读取 JSON 对象请求体，保留每个字段的原始 JSON
func readBodyFields(r *http.Request) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxJSONBody {
		return nil, errBodyTooLarge
	}
	fields := make(map[string]json.RawMessage)
	if len(body) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// isFormRequest 是否为表单编码请求
func isFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseMultipart 解析 multipart 请求（限制 16 MiB）
func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	return r.ParseMultipartForm(maxMultipartBody)
}

// formFile 读取上传文件内容与 mimetype；不存在时 ok 为 false
func formFile(r *http.Request, field string) (data []byte, mimeType string, ok bool, err error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, "", false, nil
	}
	header := r.MultipartForm.File[field][0]
	f, err := header.Open()
	if err != nil {
		return nil, "", true, err
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		return nil, "", true, err
	}
	mimeType = header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return data, mimeType, true, nil
}

// formHas 表单中是否存在字段（允许空值）
func formHas(r *http.Request, field string) bool {
	if r.MultipartForm != nil {
		if _, ok := r.MultipartForm.Value[field]; ok {
			return true
		}
	}
	_, ok := r.PostForm[field]
	return ok
}
