// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env-default:"local"`
	HTTPServer      `yaml:"http_server"`
	GooglePlay      `yaml:"google_play"`
	Firestore       `yaml:"firestore"`
	RedisConnection `yaml:"redis_connection"`
	RabbitMQ        `yaml:"rabbitmq"`
	Demo            `yaml:"demo"`
	JWTSecretKey    string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenWaitTime   time.Duration `yaml:"token_wait_time" env-default:"15s"`
	ReconcileEvery  time.Duration `yaml:"reconcile_every" env-default:"5m"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// GooglePlay структура для доступа к биллинг-авторитету
type GooglePlay struct {
	PackageName        string `yaml:"package_name"`
	SubscriptionID     string `yaml:"subscription_id" env-default:"premium_subscription_01"`
	ServiceAccountJSON string `yaml:"service_account_json" env:"GOOGLE_PLAY_SERVICE_ACCOUNT_JSON"`
}

// Firestore структура для настройки документного хранилища
type Firestore struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsJSON string `yaml:"credentials_json" env:"FIRESTORE_CREDENTIALS_JSON"`
	Collection      string `yaml:"collection" env-default:"entitlements"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ структура для настройки публикации событий
type RabbitMQ struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange" env-default:"entitlements"`
}

// Demo структура демо-ветки: шаблон идентификатора пользователя
// и фиксированное окно локальной выдачи
type Demo struct {
	UserPattern string        `yaml:"user_pattern" env-default:"^demo-"`
	GrantWindow time.Duration `yaml:"grant_window" env-default:"720h"`
}

// MustLoad функция для загрузки конфига, путь берется из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"GooglePlay:\n"+
			"  PackageName: %s\n"+
			"  SubscriptionID: %s\n"+
			"Firestore:\n"+
			"  ProjectID: %s\n"+
			"  Collection: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  Exchange: %s\n"+
			"TokenWaitTime: %s\n"+
			"ReconcileEvery: %s\n",
		c.Env,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.PackageName,
		c.SubscriptionID,
		c.ProjectID,
		c.Collection,
		c.AddressRedis,
		c.DB,
		c.Exchange,
		c.TokenWaitTime,
		c.ReconcileEvery,
	)
}
