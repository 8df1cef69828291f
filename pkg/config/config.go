package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Realtime      RealtimeConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHAREDWISHLIST_APP_ENV" required:"true"`
	Port         string `envconfig:"SHAREDWISHLIST_APP_PORT" required:"true"`
	InstanceID   string `envconfig:"SHAREDWISHLIST_INSTANCE_ID"`
	LogLevel     string `envconfig:"SHAREDWISHLIST_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SHAREDWISHLIST_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SHAREDWISHLIST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"SHAREDWISHLIST_DB_DSN"`
	SQLitePath string `envconfig:"SHAREDWISHLIST_SQLITE_PATH" default:"sharedwishlist.db"`

	Host     string `envconfig:"SHAREDWISHLIST_DB_HOST"`
	Port     int    `envconfig:"SHAREDWISHLIST_DB_PORT" default:"5432"`
	User     string `envconfig:"SHAREDWISHLIST_DB_USER"`
	Password string `envconfig:"SHAREDWISHLIST_DB_PASSWORD"`
	Name     string `envconfig:"SHAREDWISHLIST_DB_NAME"`
	SSLMode  string `envconfig:"SHAREDWISHLIST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHAREDWISHLIST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHAREDWISHLIST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHAREDWISHLIST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHAREDWISHLIST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHAREDWISHLIST_REDIS_URL"`
	Address      string        `envconfig:"SHAREDWISHLIST_REDIS_ADDR"`
	Password     string        `envconfig:"SHAREDWISHLIST_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHAREDWISHLIST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHAREDWISHLIST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHAREDWISHLIST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHAREDWISHLIST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHAREDWISHLIST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHAREDWISHLIST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SHAREDWISHLIST_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SHAREDWISHLIST_JWT_ISSUER" default:"sharedwishlist"`
	ExpirationMinutes      int    `envconfig:"SHAREDWISHLIST_JWT_EXPIRATION_MINUTES" default:"1440"`
	RefreshTokenTTLMinutes int    `envconfig:"SHAREDWISHLIST_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SHAREDWISHLIST_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SHAREDWISHLIST_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SHAREDWISHLIST_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SHAREDWISHLIST_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SHAREDWISHLIST_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SHAREDWISHLIST_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"SHAREDWISHLIST_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"SHAREDWISHLIST_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"SHAREDWISHLIST_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"SHAREDWISHLIST_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"SHAREDWISHLIST_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHAREDWISHLIST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHAREDWISHLIST_AUTO_MIGRATE" default:"false"`
}

type RealtimeConfig struct {
	WriteWait       time.Duration `envconfig:"SHAREDWISHLIST_REALTIME_WRITE_WAIT" default:"10s"`
	PongWait        time.Duration `envconfig:"SHAREDWISHLIST_REALTIME_PONG_WAIT" default:"60s"`
	MaxMessageBytes int64         `envconfig:"SHAREDWISHLIST_REALTIME_MAX_MESSAGE_BYTES" default:"4096"`
	SendBuffer      int           `envconfig:"SHAREDWISHLIST_REALTIME_SEND_BUFFER" default:"64"`
	Relay           string        `envconfig:"SHAREDWISHLIST_REALTIME_RELAY" default:"none"`
	RelayChannel    string        `envconfig:"SHAREDWISHLIST_REALTIME_RELAY_CHANNEL" default:"sw:events"`
	AllowedOrigins  []string      `envconfig:"SHAREDWISHLIST_REALTIME_ALLOWED_ORIGINS"`
}

// PingPeriod is how often the server pings a client; it must stay below PongWait.
func (r RealtimeConfig) PingPeriod() time.Duration {
	return (r.PongWait * 9) / 10
}

// RelayEnabled reports whether events are forwarded between instances over Redis.
func (r RealtimeConfig) RelayEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(r.Relay), RelayRedis)
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SHAREDWISHLIST_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	discrete := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if discrete[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
