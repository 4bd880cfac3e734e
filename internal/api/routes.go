package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/api/handlers"
	"github.com/irfndi/tides-tomes-go/internal/middleware"
	"github.com/irfndi/tides-tomes-go/internal/synth"
)

// Dependencies holds everything the routes serve from.
type Dependencies struct {
	Logger  *logrus.Logger
	Weather adapters.ServiceAdapter
	Marine  adapters.ServiceAdapter
	Climate adapters.ServiceAdapter
	Habitat adapters.ServiceAdapter

	Snapshots handlers.SnapshotService
	Cache     handlers.CacheStore
	System    handlers.SystemInfoProvider
	Breakers  handlers.BreakerStatsProvider
	Synth     *synth.Synthesizer

	CascadePreset    string
	SyntheticEpsilon float64
	SyntheticLength  int
	SyntheticMax     int

	ServiceName    string
	Version        string
	AllowedOrigins []string
}

// NewRouter builds the engine with the standard middleware chain and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(deps.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))
	SetupRoutes(router, deps)
	return router
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.System, deps.Breakers, deps.Version)
	environmentHandler := handlers.NewEnvironmentHandler(deps.Weather, deps.Marine, deps.Climate, deps.Habitat)
	snapshotHandler := handlers.NewSnapshotHandler(deps.Snapshots)
	cascadeHandler := handlers.NewCascadeHandler(deps.CascadePreset)
	syntheticHandler := handlers.NewSyntheticHandler(deps.Synth, deps.SyntheticEpsilon, deps.SyntheticLength, deps.SyntheticMax)
	cacheHandler := handlers.NewCacheHandler(deps.Cache)

	// Health check endpoint
	router.GET("/health", healthHandler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/weather/:region", environmentHandler.GetWeather)
		v1.GET("/marine/:area", environmentHandler.GetMarine)
		v1.GET("/climate/:station", environmentHandler.GetClimate)
		v1.GET("/habitat/:area", environmentHandler.GetHabitat)
		v1.GET("/snapshot", snapshotHandler.GetSnapshot)

		cascadeGroup := v1.Group("/cascade")
		{
			cascadeGroup.POST("", cascadeHandler.Evaluate)
			cascadeGroup.POST("/sensitivity", cascadeHandler.Sensitivity)
			cascadeGroup.GET("/presets", cascadeHandler.Presets)
		}

		synthetic := v1.Group("/synthetic")
		{
			synthetic.POST("", syntheticHandler.Generate)
			synthetic.GET("/variables", syntheticHandler.Variables)
		}

		cacheGroup := v1.Group("/cache")
		{
			cacheGroup.GET("/stats", cacheHandler.GetCacheStats)
			cacheGroup.POST("/purge", cacheHandler.PurgeExpired)
		}
	}
}
