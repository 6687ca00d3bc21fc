package service

import (
	"context"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/channel"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/config"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/dispatch"
	httpapi "github.com/EricMovillaSanolivar/ai-fall-prevent/internal/http"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/metrics"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/monitor"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/store"

	"go.uber.org/zap"
)

// APIService 定义存储 / 告警转发 / 检测代理 HTTP 服务
type APIService struct {
	config *config.Config
	logger *zap.Logger
	infra  *infra
	store  *store.DefinitionStore
	router *httpapi.Router
	server *Server
}

// NewAPIService 创建 HTTP API 服务
func NewAPIService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*APIService, error) {
	in, err := openInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	defs := store.NewDefinitionStore(cfg.Store.DataDir, logger)
	if in.redisClient != nil {
		defs.SetNotifier(store.NewRedisChangeNotifier(in.redisClient))
	}

	coordinator := dispatch.NewCoordinator(m, logger,
		dispatch.WithChannels(
			channel.NewMailClient(cfg.Channel.MailBaseURL, cfg.Channel.Timeout, logger),
			channel.NewTelegramClient(cfg.Channel.TelegramBaseURL, cfg.Channel.Timeout, logger),
		),
		dispatch.WithAlertSource(defs),
	)

	var events httpapi.EventLister
	if in.events != nil {
		events = in.events
	}

	router := httpapi.NewRouter(logger)
	router.RegisterDefinitionRoutes(httpapi.NewDefinitionsHandler(defs, m, logger))
	router.RegisterAlertRoutes(httpapi.NewAlertsHandler(coordinator, logger))
	router.RegisterVisionRoutes(httpapi.NewVisionHandler(
		monitor.NewDetectorClient(cfg.Detector.URL, cfg.Detector.Timeout, logger), logger))
	router.RegisterMonitorRoutes(httpapi.NewMonitorHandler(in.kv(), events, cfg.Monitor.CameraID, logger))
	router.RegisterHealthRoutes(m.Handler())

	return &APIService{
		config: cfg,
		logger: logger,
		infra:  in,
		store:  defs,
		router: router,
		server: NewServer(cfg.HTTP.Addr, router, logger),
	}, nil
}

// Handler 返回路由（测试用）
func (s *APIService) Handler() *httpapi.Router {
	return s.router
}

// Start 启动 HTTP 服务（阻塞）
func (s *APIService) Start() error {
	return s.server.Start()
}

// Stop 关闭 HTTP 服务并释放连接
func (s *APIService) Stop(ctx context.Context) error {
	err := s.server.Stop(ctx)
	s.infra.close()
	return err
}
