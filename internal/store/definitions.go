package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Namespace 定义命名空间
type Namespace string

const (
	NamespaceFences Namespace = "fences"
	NamespaceAlerts Namespace = "alerts"
)

// Namespaces 所有命名空间
var Namespaces = []Namespace{NamespaceFences, NamespaceAlerts}

var (
	// ErrUnknownNamespace 未知命名空间
	ErrUnknownNamespace = errors.New("unknown namespace")
	// ErrInvalidData 定义内容不是合法 JSON
	ErrInvalidData = errors.New("definition data must be valid JSON")
)

// Definitions 一个命名空间的完整映射（id -> 任意 JSON）
type Definitions map[string]json.RawMessage

// Op 变更类型
type Op string

const (
	OpPut    Op = "put"
	OpRemove Op = "remove"
)

// ChangeNotifier 定义变更通知（写入成功后调用）
type ChangeNotifier interface {
	NotifyChange(namespace Namespace, id string, op Op) error
}

// DefinitionStore 基于 JSON 文件的定义存储
// 每个命名空间一个文件；文件是唯一数据源，每次读取都从磁盘加载
// 同一命名空间的写操作串行化；文件只通过 rename 整体替换，读者不会看到写了一半的内容
type DefinitionStore struct {
	dir      string
	locks    map[Namespace]*sync.Mutex
	notifier ChangeNotifier
	logger   *zap.Logger
}

// NewDefinitionStore 创建定义存储
func NewDefinitionStore(dir string, logger *zap.Logger) *DefinitionStore {
	locks := make(map[Namespace]*sync.Mutex, len(Namespaces))
	for _, ns := range Namespaces {
		locks[ns] = &sync.Mutex{}
	}
	return &DefinitionStore{
		dir:    dir,
		locks:  locks,
		logger: logger,
	}
}

// SetNotifier 设置变更通知器（可选）
func (s *DefinitionStore) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

// Path 返回命名空间对应的文件路径
func (s *DefinitionStore) Path(ns Namespace) string {
	return filepath.Join(s.dir, string(ns)+".json")
}

// Load 读取命名空间的完整映射
// 文件不存在、不可读或内容损坏时返回空映射
func (s *DefinitionStore) Load(ns Namespace) (Definitions, error) {
	if _, ok := s.locks[ns]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	return s.read(ns), nil
}

// Put 新增或覆盖定义，持久化后返回写入后的映射
func (s *DefinitionStore) Put(ns Namespace, id string, data json.RawMessage) (Definitions, error) {
	lock, ok := s.locks[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	if !json.Valid(data) {
		return nil, ErrInvalidData
	}

	lock.Lock()
	defer lock.Unlock()

	defs := s.read(ns)
	defs[id] = append(json.RawMessage(nil), data...)

	if err := s.write(ns, defs); err != nil {
		return nil, err
	}

	s.logger.Info("Definition saved",
		zap.String("namespace", string(ns)),
		zap.String("id", id),
		zap.Int("count", len(defs)),
	)
	s.notify(ns, id, OpPut)

	return defs, nil
}

// Remove 删除定义；id 不存在时不写文件，直接返回当前映射
func (s *DefinitionStore) Remove(ns Namespace, id string) (Definitions, error) {
	lock, ok := s.locks[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}

	lock.Lock()
	defer lock.Unlock()

	defs := s.read(ns)
	if _, exists := defs[id]; !exists {
		s.logger.Debug("Definition not found, nothing to remove",
			zap.String("namespace", string(ns)),
			zap.String("id", id),
		)
		return defs, nil
	}
	delete(defs, id)

	if err := s.write(ns, defs); err != nil {
		return nil, err
	}

	s.logger.Info("Definition removed",
		zap.String("namespace", string(ns)),
		zap.String("id", id),
		zap.Int("count", len(defs)),
	)
	s.notify(ns, id, OpRemove)

	return defs, nil
}

// Get 读取单个定义
func (s *DefinitionStore) Get(ns Namespace, id string) (json.RawMessage, bool, error) {
	defs, err := s.Load(ns)
	if err != nil {
		return nil, false, err
	}
	data, ok := defs[id]
	return data, ok, nil
}

// read 从磁盘读取；任何读取或解析失败都视为空映射
func (s *DefinitionStore) read(ns Namespace) Definitions {
	raw, err := os.ReadFile(s.Path(ns))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read definitions, treating as empty",
				zap.String("namespace", string(ns)),
				zap.Error(err),
			)
		}
		return Definitions{}
	}

	defs := Definitions{}
	if err := json.Unmarshal(raw, &defs); err != nil || defs == nil {
		s.logger.Warn("Corrupted definitions file, treating as empty",
			zap.String("namespace", string(ns)),
			zap.Error(err),
		)
		return Definitions{}
	}
	return defs
}

// write 先写临时文件再 rename，失败时旧文件保持不变
func (s *DefinitionStore) write(ns Namespace, defs Definitions) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	content, err := encodeDefinitions(defs)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ns, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+string(ns)+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", ns, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", ns, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", ns, err)
	}
	if err := os.Rename(tmpName, s.Path(ns)); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", ns, err)
	}
	return nil
}

func (s *DefinitionStore) notify(ns Namespace, id string, op Op) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyChange(ns, id, op); err != nil {
		s.logger.Warn("Failed to publish definition change",
			zap.String("namespace", string(ns)),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

// encodeDefinitions 两空格缩进、不转义 HTML 字符
func encodeDefinitions(defs Definitions) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(defs); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseNamespace 解析命名空间名称
func ParseNamespace(name string) (Namespace, error) {
	for _, ns := range Namespaces {
		if string(ns) == name {
			return ns, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownNamespace, name)
}
