package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/ai"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/path"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    cache.Config   `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type GameConfig struct {
	TickMs               int                `mapstructure:"tick_ms"`
	PlayRadiusM          float64            `mapstructure:"play_radius_m"`
	Objectives           int                `mapstructure:"objectives"`
	Agents               int                `mapstructure:"agents"`
	Difficulty           session.Difficulty `mapstructure:"difficulty"`
	Lives                int                `mapstructure:"lives"`
	SpawnClearanceM      float64            `mapstructure:"spawn_clearance_m"`
	AgentSpawnRadiusM    float64            `mapstructure:"agent_spawn_radius_m"`
	SafeZones            int                `mapstructure:"safe_zones"`
	SafeZoneRadiusM      float64            `mapstructure:"safe_zone_radius_m"`
	MaxAgents            int                `mapstructure:"max_agents"`
	MaxObjectives        int                `mapstructure:"max_objectives"`
	MaxPlayRadiusM       float64            `mapstructure:"max_play_radius_m"`
	Detection            ai.Radii           `mapstructure:"detection"`
	Tuning               session.Tuning     `mapstructure:"tuning"`
	ReapInterval         time.Duration      `mapstructure:"reap_interval"`
	RetainFinished       time.Duration      `mapstructure:"retain_finished"`
	MaxSessionAge        time.Duration      `mapstructure:"max_session_age"`
	RecentResults        int                `mapstructure:"recent_results"`
	JournalBatchSize     int                `mapstructure:"journal_batch_size"`
	JournalFlushInterval time.Duration      `mapstructure:"journal_flush_interval"`
}

// SessionDefaults builds the session configuration a new run starts from
// before request overrides apply.
func (g GameConfig) SessionDefaults() session.Config {
	return session.Config{
		PlayRadiusMeters:       g.PlayRadiusM,
		ObjectiveCount:         g.Objectives,
		AgentCount:             g.Agents,
		AgentSpawnRadiusMeters: g.AgentSpawnRadiusM,
		SpawnClearanceMeters:   g.SpawnClearanceM,
		Difficulty:             g.Difficulty,
		Lives:                  g.Lives,
		TickPeriod:             time.Duration(g.TickMs) * time.Millisecond,
		SafeZoneCount:          g.SafeZones,
		SafeZoneRadiusMeters:   g.SafeZoneRadiusM,
		Radii:                  g.Detection,
		Tuning:                 g.Tuning,
	}
}

type RoutingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	Profile       string        `mapstructure:"profile"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// Dispatch returns the request pacing for the route dispatcher.
func (r RoutingConfig) Dispatch() path.DispatcherConfig {
	return path.DispatcherConfig{
		MinInterval:   r.MinInterval,
		RetryInterval: r.RetryInterval,
		Timeout:       r.Timeout,
	}
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_ips", []string{"127.0.0.1", "::1"})
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/runmap.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)

	sd := session.DefaultConfig()
	v.SetDefault("game.tick_ms", sd.TickPeriod.Milliseconds())
	v.SetDefault("game.play_radius_m", sd.PlayRadiusMeters)
	v.SetDefault("game.objectives", sd.ObjectiveCount)
	v.SetDefault("game.agents", sd.AgentCount)
	v.SetDefault("game.difficulty", string(sd.Difficulty))
	v.SetDefault("game.lives", sd.Lives)
	v.SetDefault("game.spawn_clearance_m", sd.SpawnClearanceMeters)
	v.SetDefault("game.agent_spawn_radius_m", 0)
	v.SetDefault("game.safe_zones", sd.SafeZoneCount)
	v.SetDefault("game.safe_zone_radius_m", sd.SafeZoneRadiusMeters)
	v.SetDefault("game.max_agents", 200)
	v.SetDefault("game.max_objectives", 50)
	v.SetDefault("game.max_play_radius_m", 5000)
	v.SetDefault("game.detection.visual", sd.Radii.Visual)
	v.SetDefault("game.detection.hearing", sd.Radii.Hearing)
	v.SetDefault("game.detection.pack_alert", sd.Radii.PackAlert)
	v.SetDefault("game.detection.noise_threshold_kmh", sd.Radii.NoiseThresholdKmh)
	v.SetDefault("game.detection.disengage_factor", sd.Radii.DisengageFactor)
	v.SetDefault("game.detection.pack_alert_enabled", sd.Radii.PackAlertEnabled)
	v.SetDefault("game.tuning.wander_speed", sd.Tuning.WanderSpeed)
	v.SetDefault("game.tuning.wander_radius", sd.Tuning.WanderRadius)
	v.SetDefault("game.tuning.hit_radius", sd.Tuning.HitRadius)
	v.SetDefault("game.tuning.collect_radius", sd.Tuning.CollectRadius)
	v.SetDefault("game.tuning.knockback_distance", sd.Tuning.KnockbackDistance)
	v.SetDefault("game.tuning.trail_min_step", sd.Tuning.TrailMinStep)
	v.SetDefault("game.tuning.extraction_min_ratio", sd.Tuning.ExtractionMinRatio)
	v.SetDefault("game.reap_interval", "1m")
	v.SetDefault("game.retain_finished", "10m")
	v.SetDefault("game.max_session_age", "6h")
	v.SetDefault("game.recent_results", 50)
	v.SetDefault("game.journal_batch_size", 200)
	v.SetDefault("game.journal_flush_interval", "2s")

	v.SetDefault("routing.enabled", false)
	v.SetDefault("routing.base_url", "https://router.project-osrm.org")
	v.SetDefault("routing.profile", "foot")
	v.SetDefault("routing.timeout", "5s")
	v.SetDefault("routing.min_interval", "1s")
	v.SetDefault("routing.retry_interval", "2s")

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.allowed_origins", []string{})
	v.SetDefault("security.token_ttl", "12h")
	v.SetDefault("security.rate_limit_rps", 50)
	v.SetDefault("security.rate_limit_burst", 100)
}

// Load reads config from the given YAML file path. An empty path yields the
// defaults. Every key can be overridden from the environment as
// RUNMAP_<SECTION>_<KEY>, e.g. RUNMAP_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("runmap")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
