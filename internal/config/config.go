package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix — префикс переменных окружения, перекрывающих значения из файла
// у полей нет явных имён, иначе envconfig подхватит PATH или USER без префикса
const EnvPrefix = "CANTEEN"

// DefaultPath используется, когда CONFIG_PATH не задан
const DefaultPath = "config/config.yaml"

// Config определяет структуру конфигурации всего приложения целиком
type Config struct {
	Env           string        `yaml:"env" split_words:"true"`
	Logger        Logger        `yaml:"logger" envconfig:"LOGGER"`
	HTTPServer    HTTPServer    `yaml:"http_server" envconfig:"HTTP"`
	Postgres      Postgres      `yaml:"postgres" envconfig:"POSTGRES"`
	LocalStore    LocalStore    `yaml:"local_store" envconfig:"LOCAL"`
	Kafka         Kafka         `yaml:"kafka" envconfig:"KAFKA"`
	Notifications Notifications `yaml:"notifications" envconfig:"NOTIFY"`
	Orders        Orders        `yaml:"orders" envconfig:"ORDERS"`
}

// HTTPServer содержит конфигурацию для HTTP-сервера
type HTTPServer struct {
	Address         string        `yaml:"address" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// Postgres содержит конфигурацию для подключения к базе данных
// если секция пустая, приложение работает с локальным файлом
type Postgres struct {
	URL            string        `yaml:"url" split_words:"true"`
	User           string        `yaml:"user" split_words:"true"`
	Password       string        `yaml:"password" split_words:"true"`
	Host           string        `yaml:"host" split_words:"true"`
	Port           string        `yaml:"port" split_words:"true"`
	DBName         string        `yaml:"db_name" split_words:"true"`
	SSLMode        string        `yaml:"ssl_mode" split_words:"true"`
	MaxConns       int32         `yaml:"max_conns" split_words:"true"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" split_words:"true"`
	Migrate        bool          `yaml:"migrate" split_words:"true"`
}

// LocalStore содержит конфигурацию локального хранилища
type LocalStore struct {
	Path        string        `yaml:"path" split_words:"true"`
	Key         string        `yaml:"key" split_words:"true"`
	LockTimeout time.Duration `yaml:"lock_timeout" split_words:"true"`
}

// Kafka содержит конфигурацию для подключения к кафке
type Kafka struct {
	Enabled bool     `yaml:"enabled" split_words:"true"`
	Brokers []string `yaml:"brokers" split_words:"true"`
	Topic   string   `yaml:"topic" split_words:"true"`
	GroupID string   `yaml:"group_id" split_words:"true"`
}

// Notifications содержит конфигурацию уведомлений о готовых заказах
type Notifications struct {
	Enabled  bool   `yaml:"enabled" split_words:"true"`
	Platform string `yaml:"platform" split_words:"true"` // desktop | log
	Icon     string `yaml:"icon" split_words:"true"`
}

// Orders содержит правила работы со статусами
type Orders struct {
	StrictTransitions bool `yaml:"strict_transitions" split_words:"true"`
}

// Logger содержит конфигурацию для логгера
type Logger struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"` // text | json
}

// Valid сообщает, достаточно ли данных для подключения к удалённому хранилищу
func (p Postgres) Valid() bool {
	return p.URL != "" || (p.Host != "" && p.User != "" && p.DBName != "")
}

// ConnString возвращает строку подключения в виде URL, её понимают и pgx, и migrate
func (p Postgres) ConnString() string {
	if p.URL != "" {
		return p.URL
	}

	host := p.Host
	if p.Port != "" {
		host = net.JoinHostPort(p.Host, p.Port)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   host,
		Path:   "/" + p.DBName,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

func defaults() Config {
	return Config{
		Env:    "local",
		Logger: Logger{Level: "info", Format: "text"},
		HTTPServer: HTTPServer{
			Address:         ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Postgres: Postgres{
			SSLMode:        "disable",
			MaxConns:       10,
			ConnectTimeout: 30 * time.Second,
			Migrate:        true,
		},
		LocalStore: LocalStore{
			Path:        "data/canteen.db",
			Key:         "canteenOrders",
			LockTimeout: 2 * time.Second,
		},
		Kafka: Kafka{
			Topic:   "canteen-orders",
			GroupID: "canteen-orders-service",
		},
		Notifications: Notifications{
			Enabled:  true,
			Platform: "log",
		},
	}
}

// Load читает конфигурацию из файла и перекрывает её переменными окружения CANTEEN_*
// в файле допускаются подстановки ${VAR}
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if configPath == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(file))), &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal config: %w", op, err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to apply env overrides: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфигурацию из файла по указанному пути
// в случае ошибки программа завершается с фатальной ошибкой
func MustLoad(configPath string) *Config {
	if configPath == "" {
		configPath = DefaultPath
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	var errs []error
	if c.HTTPServer.Address == "" {
		errs = append(errs, errors.New("http_server.address is required"))
	}
	if c.LocalStore.Path == "" && !c.Postgres.Valid() {
		errs = append(errs, errors.New("either postgres or local_store.path must be configured"))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}
	switch c.Notifications.Platform {
	case "desktop", "log":
	default:
		errs = append(errs, fmt.Errorf("unknown notifications.platform %q", c.Notifications.Platform))
	}
	return errors.Join(errs...)
}
