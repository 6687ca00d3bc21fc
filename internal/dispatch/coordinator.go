package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/channel"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/metrics"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/store"

	"go.uber.org/zap"
)

// Cue 本地提示音
type Cue string

const (
	CueAttention Cue = "attention" // 姿态风险
	CueWarning   Cue = "warning"   // 离开床位围栏
)

var (
	ErrAlertNotFound      = errors.New("alert definition not found")
	ErrUnsupportedChannel = errors.New("unsupported alert channel")

	// ErrChannelNotConfigured 通道客户端未配置（服务端配置问题）
	ErrChannelNotConfigured = errors.New("alert channel not configured")
)

// Player 提示音渲染器（阻塞直到播放结束）
type Player interface {
	Play(ctx context.Context, file string) error
}

// MailSender Webhook 中继
type MailSender interface {
	Send(ctx context.Context, scriptID string, data json.RawMessage) (channel.Response, error)
}

// PhotoSender 图片发送通道
type PhotoSender interface {
	SendPhoto(ctx context.Context, req channel.PhotoRequest) (channel.Response, error)
}

// AlertSource 告警定义查询
type AlertSource interface {
	Get(ns store.Namespace, id string) (json.RawMessage, bool, error)
}

// CueFiles 提示音文件路径
type CueFiles struct {
	Attention string
	Warning   string
}

// Coordinator 告警分发协调器：本地提示音 + 远程通道转发
type Coordinator struct {
	player   Player
	cues     CueFiles
	slot     PlaybackSlot
	cooldown time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastPlayed map[Cue]time.Time
	wg         sync.WaitGroup

	mail     MailSender
	telegram PhotoSender
	alerts   AlertSource

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option 协调器可选项
type Option func(*Coordinator)

// WithPlayer 设置本地播放器与提示音文件
func WithPlayer(p Player, cues CueFiles) Option {
	return func(c *Coordinator) {
		c.player = p
		c.cues = cues
	}
}

// WithCooldown 同一提示音在窗口期内不重复请求（0 表示关闭）
func WithCooldown(d time.Duration) Option {
	return func(c *Coordinator) { c.cooldown = d }
}

// WithChannels 设置远程通道客户端
func WithChannels(mail MailSender, telegram PhotoSender) Option {
	return func(c *Coordinator) {
		c.mail = mail
		c.telegram = telegram
	}
}

// WithAlertSource 设置告警定义来源
func WithAlertSource(src AlertSource) Option {
	return func(c *Coordinator) { c.alerts = src }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator 创建分发协调器
func NewCoordinator(m *metrics.Metrics, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		now:        time.Now,
		lastPlayed: make(map[Cue]time.Time),
		metrics:    m,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	return c
}

// HandleEvents 根据一帧的风险事件请求提示音，立即返回
func (c *Coordinator) HandleEvents(events []models.RiskEvent) {
	if models.HasKind(events, models.RiskPosture) {
		c.RequestCue(CueAttention)
	}
	if models.HasKind(events, models.RiskOutOfBounds) {
		c.RequestCue(CueWarning)
	}
}

// RequestCue 请求播放提示音；播放槽被占用时静默丢弃。
// 返回是否启动了播放。
func (c *Coordinator) RequestCue(cue Cue) bool {
	if c.player == nil {
		return false
	}
	file := c.cueFile(cue)
	if file == "" {
		c.logger.Warn("No file configured for cue", zap.String("cue", string(cue)))
		return false
	}
	if c.inCooldown(cue) {
		c.logger.Debug("Cue suppressed by cooldown", zap.String("cue", string(cue)))
		return false
	}

	if !c.slot.TryAcquire() {
		c.metrics.PlaybackDropped.Add(1)
		c.logger.Debug("Playback slot busy, cue dropped", zap.String("cue", string(cue)))
		return false
	}

	c.markPlayed(cue)
	c.metrics.PlaybackStarted.Add(1)
	c.wg.Add(1)
	go c.render(cue, file)
	return true
}

// render 播放并释放播放槽（出错或 panic 时同样释放）
func (c *Coordinator) render(cue Cue, file string) {
	defer c.wg.Done()
	defer c.slot.Release()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Audio playback panicked",
				zap.String("cue", string(cue)),
				zap.Any("panic", r),
			)
		}
	}()

	if err := c.player.Play(context.Background(), file); err != nil {
		c.logger.Warn("Audio playback failed",
			zap.String("cue", string(cue)),
			zap.String("file", file),
			zap.Error(err),
		)
	}
}

// Playing 当前是否在播放
func (c *Coordinator) Playing() bool {
	return c.slot.Busy()
}

// Wait 等待正在进行的播放结束（关闭时使用）
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) cueFile(cue Cue) string {
	switch cue {
	case CueAttention:
		return c.cues.Attention
	case CueWarning:
		return c.cues.Warning
	}
	return ""
}

func (c *Coordinator) inCooldown(cue Cue) bool {
	if c.cooldown <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastPlayed[cue]
	return ok && c.now().Sub(last) < c.cooldown
}

func (c *Coordinator) markPlayed(cue Cue) {
	if c.cooldown <= 0 {
		return
	}
	c.mu.Lock()
	c.lastPlayed[cue] = c.now()
	c.mu.Unlock()
}

// SendMail 通过 Webhook 中继转发 JSON（单次调用，不重试）
func (c *Coordinator) SendMail(ctx context.Context, scriptID string, data json.RawMessage) (channel.Response, error) {
	if c.mail == nil {
		return nil, fmt.Errorf("%w: mail", ErrChannelNotConfigured)
	}
	resp, err := c.mail.Send(ctx, scriptID, data)
	c.observe("mail", err)
	return resp, err
}

// SendTelegram 发送证据图片（单次调用，不重试）
func (c *Coordinator) SendTelegram(ctx context.Context, req channel.PhotoRequest) (channel.Response, error) {
	if c.telegram == nil {
		return nil, fmt.Errorf("%w: telegram", ErrChannelNotConfigured)
	}
	resp, err := c.telegram.SendPhoto(ctx, req)
	c.observe("telegram", err)
	return resp, err
}

// AlertDefinition 已保存的告警定义中与分发相关的字段
type AlertDefinition struct {
	Channel string `json:"channel"`           // "mail" | "telegram"
	Target  string `json:"target"`            // 脚本 ID 或 bot 路径
	ChatID  string `json:"chat_id,omitempty"` // 仅 telegram
	Content string `json:"content,omitempty"` // 默认图片说明
}

// AlertRequest 按告警定义分发的请求
type AlertRequest struct {
	AlertID  string
	Data     json.RawMessage // mail 请求体
	Caption  string          // telegram 图片说明，为空时使用定义中的 content
	Image    []byte
	MimeType string
}

// SendForAlert 查找已保存的告警定义并通过对应通道分发
func (c *Coordinator) SendForAlert(ctx context.Context, req AlertRequest) (channel.Response, error) {
	def, err := c.lookupAlert(req.AlertID)
	if err != nil {
		return nil, err
	}

	switch def.Channel {
	case "mail":
		return c.SendMail(ctx, def.Target, req.Data)
	case "telegram":
		caption := req.Caption
		if caption == "" {
			caption = def.Content
		}
		return c.SendTelegram(ctx, channel.PhotoRequest{
			BotPath:  def.Target,
			ChatID:   def.ChatID,
			Caption:  caption,
			Image:    req.Image,
			MimeType: req.MimeType,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, def.Channel)
	}
}

func (c *Coordinator) lookupAlert(alertID string) (AlertDefinition, error) {
	var def AlertDefinition
	if c.alerts == nil || alertID == "" {
		return def, fmt.Errorf("%w: %q", ErrAlertNotFound, alertID)
	}
	raw, ok, err := c.alerts.Get(store.NamespaceAlerts, alertID)
	if err != nil {
		return def, fmt.Errorf("failed to load alert %s: %w", alertID, err)
	}
	if !ok {
		return def, fmt.Errorf("%w: %q", ErrAlertNotFound, alertID)
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return def, fmt.Errorf("%w: alert %q is not an object", ErrUnsupportedChannel, alertID)
	}
	return def, nil
}

func (c *Coordinator) observe(ch string, err error) {
	outcome := "ok"
	var upstream *channel.UpstreamError
	switch {
	case err == nil:
	case errors.As(err, &upstream):
		outcome = "upstream_error"
	case errors.Is(err, channel.ErrInvalidRequest):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	c.metrics.ObserveDispatch(ch, outcome)
	if err != nil {
		c.logger.Warn("Remote dispatch failed",
			zap.String("channel", ch),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
}
