package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel      string `yaml:"log-level" env-default:"info"`
	HTTPPort      string `yaml:"http-port" env-default:"9090"`
	SocketPort    string `yaml:"socket-port" env-default:"8080"`
	Redis         Redis  `yaml:"redis"`
	JWTSecretKey  string `yaml:"jwt-secret-key"`
	QuestionsFile string `yaml:"questions-file" env-default:"questions.json"`
	Duel          Duel   `yaml:"duel"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

type Duel struct {
	FormingGraceSec      int     `yaml:"forming-grace-sec" env-default:"15"`
	QuestionsPerMatch    int     `yaml:"questions-per-match" env-default:"10"`
	ReconnectGraceRounds int     `yaml:"reconnect-grace-rounds" env-default:"1"`
	MinPlayers           int     `yaml:"min-players" env-default:"2"`
	MaxPlayers           int     `yaml:"max-players" env-default:"8"`
	EvictionGraceSec     int     `yaml:"eviction-grace-sec" env-default:"10"`
	BotMinDelayMs        int     `yaml:"bot-min-delay-ms" env-default:"1500"`
	BotMaxDelayMs        int     `yaml:"bot-max-delay-ms" env-default:"6000"`
	BotAccuracy          float64 `yaml:"bot-accuracy" env-default:"0.7"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Duel) FormingGrace() time.Duration {
	return time.Duration(that.FormingGraceSec) * time.Second
}

func (that *Duel) EvictionGrace() time.Duration {
	return time.Duration(that.EvictionGraceSec) * time.Second
}

func (that *Duel) BotMinDelay() time.Duration {
	return time.Duration(that.BotMinDelayMs) * time.Millisecond
}

func (that *Duel) BotMaxDelay() time.Duration {
	return time.Duration(that.BotMaxDelayMs) * time.Millisecond
}
