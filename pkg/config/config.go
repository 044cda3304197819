package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App    AppConfig
	DB     DBConfig
	JWT    JWTConfig
	HTTP   HTTPConfig
	TTN    TTNConfig
	DigiGo DigiGoConfig
	Agent  AgentConfig
	DSS    DSSConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env          string // development, staging, production
	Name         string
	PublicOrigin string // origen público (https://app.ejemplo.tn) usado en los deep links del agente
	LogLevel     string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TTNConfig parámetros del webservice El Fatoora (TTN).
type TTNConfig struct {
	WSURL                string // endpoint SOAP por defecto si la credencial no define ws_url
	TimeoutSeconds       int
	MaxXMLBytes          int
	ScheduleDelayMinutes int
	Environment          string // entorno por defecto cuando la petición no lo indica
}

// Timeout devuelve el límite de cada llamada SOAP.
func (c TTNConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DigiGoConfig firmante remoto (nube / OTP).
type DigiGoConfig struct {
	BaseURL        string
	ClientID       string
	RedirectURI    string
	TimeoutSeconds int
	SessionMinutes int
}

// Enabled indica si hay datos mínimos para construir la URL de autorización.
func (c DigiGoConfig) Enabled() bool {
	return c.BaseURL != "" && c.ClientID != "" && c.RedirectURI != ""
}

// AgentConfig agente local de firma (clé USB).
type AgentConfig struct {
	Scheme       string // esquema del deep link: facturetn-agent://
	TokenMinutes int
}

// DSSConfig firmante de servidor opcional (valores por defecto si la credencial no los define).
type DSSConfig struct {
	URL     string
	Token   string
	Profile string
}

// RedisConfig caché de sesiones de firma remota. Vacío = deshabilitado.
type RedisConfig struct {
	URL string
}

// KafkaConfig publicación de eventos. Sin brokers = deshabilitado.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, TTN_WS_URL, DIGIGO_BASE_URL, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:          getString(v, "APP_ENV", "development"),
			Name:         getString(v, "APP_NAME", "facturetn-api"),
			PublicOrigin: strings.TrimRight(getString(v, "APP_PUBLIC_ORIGIN", "http://localhost:8080"), "/"),
			LogLevel:     getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "facturetn"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "facturetn-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		TTN: TTNConfig{
			WSURL:                getString(v, "TTN_WS_URL", "https://elfatoora.tn/ElfatouraServices/EfactService"),
			TimeoutSeconds:       getInt(v, "TTN_TIMEOUT_SECONDS", 45),
			MaxXMLBytes:          getInt(v, "TTN_MAX_XML_BYTES", 50000),
			ScheduleDelayMinutes: getInt(v, "TTN_SCHEDULE_DELAY_MINUTES", 10),
			Environment:          getString(v, "TTN_ENVIRONMENT", "production"),
		},
		DigiGo: DigiGoConfig{
			BaseURL:        strings.TrimRight(getString(v, "DIGIGO_BASE_URL", ""), "/"),
			ClientID:       getString(v, "DIGIGO_CLIENT_ID", ""),
			RedirectURI:    getString(v, "DIGIGO_REDIRECT_URI", ""),
			TimeoutSeconds: getInt(v, "DIGIGO_TIMEOUT_SECONDS", 30),
			SessionMinutes: getInt(v, "DIGIGO_SESSION_MINUTES", 10),
		},
		Agent: AgentConfig{
			Scheme:       getString(v, "AGENT_SCHEME", "facturetn-agent"),
			TokenMinutes: getInt(v, "AGENT_TOKEN_MINUTES", 5),
		},
		DSS: DSSConfig{
			URL:     getString(v, "DSS_URL", ""),
			Token:   getString(v, "DSS_TOKEN", ""),
			Profile: getString(v, "DSS_PROFILE", ""),
		},
		Redis: RedisConfig{
			URL: getString(v, "REDIS_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getString(v, "KAFKA_BROKERS", "")),
			Topic:   getString(v, "KAFKA_TOPIC", "einvoice.events"),
		},
	}

	if cfg.App.Env == "production" && cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET es obligatorio en producción")
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

// splitList separa "a,b , c" en ["a","b","c"] descartando vacíos.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
