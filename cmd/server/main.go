package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SuperChat/data/mgo/mongoutil"
	"SuperChat/global"
	"SuperChat/logger"
	mwsecurity "SuperChat/middleware/security"
	"SuperChat/module/chat/api"
	"SuperChat/module/chat/conversation"
	"SuperChat/module/chat/delivery"
	"SuperChat/module/chat/message"
	"SuperChat/module/chat/seq"
	"SuperChat/service/chat"
	"SuperChat/service/chat/handlers"
	"SuperChat/service/natsx"
	"SuperChat/service/storage"
	storageredis "SuperChat/service/storage/redis"
	"SuperChat/tools/ids"
	"SuperChat/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Log.Sugar().Fatalw("load config", "err", err)
	}
	ids.SetNodeID(cfg.NodeID)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	mongoCli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		MaxPoolSize: cfg.MongoPoolSize,
		MaxRetry:    cfg.MongoMaxRetry,
	})
	cancel()
	if err != nil {
		logger.Log.Sugar().Fatalw("connect mongo", "err", err)
	}
	db := mongoCli.GetDB()

	if err := storageredis.Init(storageredis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	}); err != nil {
		logger.Log.Sugar().Fatalw("connect redis", "err", err)
	}
	rdb := storageredis.GetRedis()

	msgStore := message.NewMongoStore(db)
	convStore := conversation.NewMongoStore(db)
	deliveryStore := delivery.NewMongoStore(db)
	idxCtx, idxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, ensure := range []func(context.Context) error{
		msgStore.EnsureIndexes, convStore.EnsureIndexes, deliveryStore.EnsureIndexes,
	} {
		if err := ensure(idxCtx); err != nil {
			logger.Log.Sugar().Fatalw("ensure indexes", "err", err)
		}
	}
	idxCancel()

	verifier, err := security.NewVerifier(security.Options{
		Secret:  []byte(cfg.JWTSecret),
		Alg:     cfg.JWTAlg,
		Timeout: cfg.AuthTimeout,
	})
	if err != nil {
		logger.Log.Sugar().Fatalw("init verifier", "err", err)
	}

	var relay *natsx.Relay
	if cfg.NatsURL != "" {
		relay, err = natsx.NewRelay(natsx.RelayConfig{
			URL:       cfg.NatsURL,
			GatewayID: cfg.GatewayID,
			Name:      "superchat-" + cfg.GatewayID,
		})
		if err != nil {
			logger.Log.Sugar().Fatalw("connect nats", "err", err)
		}
	}

	gate := conversation.NewGate(convStore)
	seqDAO := &seq.DAO{DB: db}
	sequencer := seq.NewRedisAllocator(rdb, seq.MaxFloor{seqDAO, msgStore}).WithCommitter(seqDAO)
	presence := storage.NewPresence(rdb, cfg.PresenceTTL)
	trackerConf := delivery.TrackerConf{
		RetryEvery: cfg.DeliveryRetryEvery,
		RetryMax:   cfg.DeliveryRetryMax,
		Retention:  cfg.DeliveryRetention,
		SweepEvery: cfg.DeliverySweepEvery,
	}

	srv := chat.NewServer(chat.ServerConf{
		GatewayID:   cfg.GatewayID,
		AuthTimeout: cfg.AuthTimeout,
		ClaimsMode:  cfg.ClaimsCacheMode,
		Manager: chat.ManagerConf{
			UnauthTTL:  cfg.UnauthTTL,
			AuthTTL:    cfg.SessionTTL,
			SweepEvery: cfg.SweepEvery,
			MaxPerUser: cfg.MaxSessionsPerUser,
		},
		Tracker: trackerConf,
	}, gate, sequencer, msgStore, deliveryStore, presence, relay, verifier)

	srv.Disp().Register(handlers.NewAuthHandler())
	srv.Disp().Register(handlers.NewPingHandler())
	srv.Disp().Register(handlers.NewSendHandler())
	srv.Disp().Register(handlers.NewAckHandler())
	srv.Start()

	r := gin.Default()
	r.GET("/ws", srv.HandleWS)
	apiGroup := r.Group("/api", mwsecurity.Middleware(verifier))
	api.NewHandler(convStore, gate, msgStore, srv.Tracker()).RegisterRoutes(apiGroup)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		logger.Infof("listening on %s gateway=%s", cfg.ListenAddr, cfg.GatewayID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Sugar().Fatalw("http serve", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = httpSrv.Shutdown(shutCtx)
	srv.Close()
	_ = storageredis.Close()
	_ = mongoCli.Close(shutCtx)
}
