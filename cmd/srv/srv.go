package main

import (
	"context"
	"log"

	"github.com/bwmarrin/snowflake"
	"github.com/tribes-lab/backend/config"
	"github.com/tribes-lab/backend/internal/api"
	"github.com/tribes-lab/backend/internal/domain"
	"github.com/tribes-lab/backend/internal/domain/search"
	"github.com/tribes-lab/backend/internal/domain/taskqueue"
	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/pkg/logger"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"github.com/tribes-lab/backend/pkg/xredis"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type srv struct {
	app *cli.App
	ctx context.Context

	configs     config.Configs
	db          *gorm.DB
	redisClient xredis.Client
	gw          gateway.Gateway

	postRepo    repository.PostRepository
	tribeRepo   repository.TribeRepository
	profileRepo repository.ProfileRepository

	queue    *taskqueue.Queue
	indexer  domain.IndexerService
	posts    domain.PostsService
	tribes   domain.TribesService
	profiles domain.ProfileService
	searcher domain.SearchService

	apiServer *api.Server
}

// loadConfig falls back to defaults when the file cannot be read, so the
// node still comes up in a degraded mode instead of not at all.
func (s *srv) loadConfig(cliCtx *cli.Context) {
	configs, err := config.Load(cliCtx.String("config"))
	if err != nil {
		log.Printf("Cannot load config file, using defaults: %v", err)
		configs = config.Configs{}
		configs.Default()
	}

	s.configs = configs
	s.ctx = xcontext.WithConfigs(context.Background(), configs)
}

func (s *srv) loadLogger() {
	level := logger.INFO
	if s.configs.Env == "local" {
		level = logger.DEBUG
	}

	s.ctx = xcontext.WithLogger(s.ctx, logger.NewLogger(level))
}

func (s *srv) loadSnowFlake() error {
	node, err := snowflake.NewNode(0)
	if err != nil {
		return err
	}

	s.ctx = xcontext.WithSnowFlake(s.ctx, node)
	return nil
}

// loadDatabase is optional. Without a configured database the repository
// tier simply narrows to redis.
func (s *srv) loadDatabase() error {
	if s.configs.Database.Host == "" {
		xcontext.Logger(s.ctx).Infof("No database configured, running without the database tier")
		return nil
	}

	db, err := gorm.Open(mysql.Open(s.configs.Database.ConnectionString()), &gorm.Config{})
	if err != nil {
		return err
	}

	s.db = db
	s.ctx = xcontext.WithDB(s.ctx, db)
	return entity.MigrateTable(s.ctx)
}

func (s *srv) loadRedis() error {
	if s.configs.Redis.Addr == "" {
		xcontext.Logger(s.ctx).Infof("No redis configured, running without the redis tier")
		return nil
	}

	redisClient, err := xredis.NewClient(s.ctx)
	if err != nil {
		return err
	}

	s.redisClient = redisClient
	return nil
}

func (s *srv) loadGateway(cliCtx *cli.Context) error {
	gw, err := gateway.NewEthGateway(s.ctx, cliCtx.String("signer-key"))
	if err != nil {
		return err
	}

	s.gw = gw
	return nil
}

func (s *srv) loadRepos() {
	s.postRepo = repository.NewPostRepository(s.redisClient)
	s.tribeRepo = repository.NewTribeRepository(s.redisClient)
	s.profileRepo = repository.NewProfileRepository(s.redisClient)
}

func (s *srv) loadDomains() error {
	s.queue = taskqueue.NewQueue(s.ctx)
	s.indexer = domain.NewIndexerService(s.gw, s.tribeRepo, s.profileRepo)

	posts, err := domain.NewPostsService(
		s.ctx,
		s.gw,
		s.postRepo,
		api.NewCaller(s.configs.ApiServer.Endpoint),
		s.queue,
		s.indexer,
	)
	if err != nil {
		return err
	}

	s.posts = posts
	s.tribes = domain.NewTribesService(s.gw, s.indexer)
	s.profiles = domain.NewProfileService(s.gw, s.indexer)
	s.searcher = domain.NewSearchService(s.ctx, search.NewBleveIndex(s.ctx), s.posts, s.indexer)
	return nil
}
