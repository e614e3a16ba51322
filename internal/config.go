package internal

import (
	"fmt"
	"time"
)

type Config struct {
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	OrchestratorTimeout  time.Duration `env:"ORCHESTRATOR_TIMEOUT,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`

	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	ReadTimeout    time.Duration `env:"READ_TIMEOUT,required=true"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT,required=true"`
	PingInterval   time.Duration `env:"PING_INTERVAL,required=true"`
	MaxMessageSize int64         `env:"MAX_MESSAGE_SIZE,required=true"`

	LogLevel       string `env:"LOG_LEVEL,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	DebugPort      int    `env:"DEBUG_PORT"`

	LimitTurns      *int     `env:"LIMIT_TURNS"`
	CensoredWords   []string `env:"CENSORED_WORDS"`
	CharReplacement string   `env:"CHARACTER_REPLACEMENT,required=true"`

	OpenAIKey     string        `env:"OPENAI_API_KEY,required=true"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	OpenAIModel   string        `env:"OPENAI_MODEL"`
	OpenAIMaxTok  int64         `env:"OPENAI_MAX_TOKENS"`
	OpenAITemp    float64       `env:"OPENAI_TEMPERATURE"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
