package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hyperscape/server/internal/auth"
	"github.com/hyperscape/server/internal/broadcast"
	"github.com/hyperscape/server/internal/config"
	"github.com/hyperscape/server/internal/core/event"
	coresys "github.com/hyperscape/server/internal/core/system"
	"github.com/hyperscape/server/internal/data"
	"github.com/hyperscape/server/internal/game"
	"github.com/hyperscape/server/internal/game/trade"
	"github.com/hyperscape/server/internal/handler"
	"github.com/hyperscape/server/internal/metrics"
	hsnet "github.com/hyperscape/server/internal/net"
	"github.com/hyperscape/server/internal/net/packet"
	"github.com/hyperscape/server/internal/persist"
	"github.com/hyperscape/server/internal/scripting"
	gamesys "github.com/hyperscape/server/internal/system"
	"github.com/hyperscape/server/internal/world"
)

func main() {
	configPath := flag.String("config", "config/server.toml", "path to server config")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := buildLogger(cfg.Logging)
	defer log.Sync()

	log.Info("starting server",
		zap.String("name", cfg.Server.Name),
		zap.String("bind", cfg.Network.BindAddress),
		zap.Duration("tick", cfg.Network.TickRate.Duration),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("database connect", zap.Error(err))
	}
	defer db.Close()
	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		log.Fatal("migrations", zap.Error(err))
	}

	accounts := persist.NewAccountRepo(db)
	chars := persist.NewCharacterRepo(db)
	skills := persist.NewSkillRepo(db)
	inventory := persist.NewInventoryRepo(db)
	equipment := persist.NewEquipmentRepo(db)

	terrain := loadTerrain(cfg, log)
	areas, err := data.LoadAreaTable(cfg.World.AreasFile)
	if err != nil {
		log.Fatal("load areas", zap.Error(err))
	}
	resources, err := data.LoadResourceTable(cfg.World.ResourcesFile)
	if err != nil {
		log.Fatal("load resources", zap.Error(err))
	}
	scripts, err := scripting.NewEngine(cfg.World.DialogueDir, log)
	if err != nil {
		log.Fatal("load dialogue scripts", zap.Error(err))
	}
	defer scripts.Close()

	aoi := world.NewAOIManager(cfg.World.CellSize, cfg.World.ViewDistance)
	state := world.NewState(aoi)
	sessions := hsnet.NewSessionTable()
	bus := event.NewBus()

	bc := broadcast.NewBroadcaster(broadcast.NewManager(sessions, log), state, aoi, log)
	bc.AOIDisabled = cfg.World.AOIDisabled
	facing := game.NewFaceDirectionManager(state, bc, cfg.Env.DebugFaceDirection, log)
	movement := game.NewMovementManager(state, bc, terrain, facing, log)
	validator := game.NewPositionValidator(state, terrain, bc, log)
	trades := trade.NewSystem(cfg.Trade, log)
	trades.Emit = func(ev any) {
		if c, ok := ev.(trade.CancelledEvent); ok {
			event.Emit(bus, event.TradeCancelled{
				TradeID: c.Trade.ID,
				PlayerA: c.Trade.Initiator,
				PlayerB: c.Trade.Target,
				Reason:  c.Reason,
			})
		}
	}

	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration)
	limiter := auth.NewAnonLimiter(cfg.Auth.AnonymousPerHour)
	authn := auth.NewAuthenticator(accounts, jwtMgr, limiter, nil, cfg, log)

	deps := &handler.Deps{
		Config:    cfg,
		Log:       log,
		World:     state,
		Terrain:   terrain,
		Bus:       bus,
		Bc:        bc,
		Sessions:  sessions,
		Movement:  movement,
		Facing:    facing,
		Validator: validator,
		Trades:    trades,
		Auth:      authn,
		Accounts:  accounts,
		Chars:     chars,
		Skills:    skills,
		Inventory: inventory,
		Equipment: equipment,
		Areas:     areas,
		Resources: resources,
		Scripts:   scripts,
		Chat:      handler.NewChatLog(),
		SpawnCh:   make(chan *handler.SpawnRequest, 64),
	}

	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, deps)
	handler.RegisterEventBridge(deps)

	spawnResources(state, terrain, resources, bus, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	msgRate := 0
	if cfg.RateLimit.Enabled {
		msgRate = cfg.RateLimit.PacketsPerSecond
	}
	srv := hsnet.NewServer(cfg.Network.BindAddress,
		cfg.Network.InQueueSize, cfg.Network.OutQueueSize, msgRate,
		cfg.Network.WriteTimeout.Duration, log, mux)

	validator.Kick = func(p *world.Player, reason string) {
		if s := sessions.Get(p.SocketID); s != nil {
			s.CloseWithCode(packet.CloseKicked, reason)
		}
	}

	connMgr := handler.NewConnectionManager(reg, deps)
	go acceptLoop(srv, sessions, connMgr)

	runner := coresys.NewRunner()
	runner.Register(gamesys.NewInputSystem(deps, reg, srv))
	runner.Register(gamesys.NewPrepareSystem(deps))
	runner.Register(gamesys.NewMovementSystem(deps))
	runner.Register(gamesys.NewResolveSystem(deps))
	runner.Register(gamesys.NewEventDispatchSystem(deps))
	runner.Register(gamesys.NewOutputSystem(deps))
	runner.Register(gamesys.NewPersistenceSystem(deps))
	runner.Register(gamesys.NewJanitorSystem(deps))

	loopDone := make(chan struct{})
	go gameLoop(ctx, runner, cfg.Network.TickRate.Duration, log, loopDone)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	<-loopDone

	// Final save and disconnect, on the now-stopped loop's state.
	state.Players(func(p *world.Player) {
		handler.SaveCharacter(p, deps)
	})
	sessions.Each(func(s *hsnet.Session) {
		s.CloseWithCode(packet.CloseServerShutdown, "server shutting down")
	})
	log.Info("shutdown complete")
}

// gameLoop drives the runner at the fixed tick rate until the context ends.
func gameLoop(ctx context.Context, runner *coresys.Runner, tickRate time.Duration, log *zap.Logger, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			runner.Tick(tickRate)
			elapsed := time.Since(start)
			metrics.TickDuration.Observe(elapsed.Seconds())
			if elapsed > tickRate {
				metrics.TickOverruns.Inc()
				log.Warn("tick overrun", zap.Duration("elapsed", elapsed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// acceptLoop hands new connections their handshake goroutine and reports
// session death to the game loop.
func acceptLoop(srv *hsnet.Server, sessions *hsnet.SessionTable, connMgr *handler.ConnectionManager) {
	for sess := range srv.NewSessions() {
		sessions.Add(sess)
		go func(s *hsnet.Session) {
			<-s.Done()
			srv.NotifyDead(s.ID)
		}(sess)
		go connMgr.Run(sess)
	}
}

func loadTerrain(cfg *config.Config, log *zap.Logger) world.Terrain {
	t, err := world.LoadHeightmap(cfg.World.TerrainFile)
	if err != nil {
		log.Warn("heightmap unavailable, using flat terrain",
			zap.String("file", cfg.World.TerrainFile),
			zap.Error(err),
		)
		return world.FlatTerrain{}
	}
	return t
}

// spawnResources places every configured resource node into the world.
func spawnResources(state *world.State, terrain world.Terrain, resources *data.ResourceTable, bus *event.Bus, log *zap.Logger) {
	count := 0
	for _, sp := range resources.Spawns() {
		tpl := resources.Get(sp.ResourceID)
		if tpl == nil {
			continue
		}
		e := &world.Entity{
			ID:    persist.NewID(),
			Type:  world.TypeResource,
			Name:  sp.ResourceID,
			X:     sp.X,
			Y:     world.GroundY(terrain, sp.X, sp.Z, sp.Y),
			Z:     sp.Z,
			QW:    1,
			State: "idle",
		}
		state.AddEntity(e)
		event.Emit(bus, event.ResourceSpawned{
			ResourceID:   e.ID,
			ResourceType: sp.ResourceID,
			X:            e.X,
			Y:            e.Y,
			Z:            e.Z,
		})
		count++
	}
	event.Emit(bus, event.ResourceSpawnPointsRegistered{Count: count})
	log.Info("resources spawned", zap.Int("count", count))
}

func buildLogger(cfg config.LoggingConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		panic(err)
	}
	return log
}
