package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port int `env:"PORT" envDefault:"8080"`
	}

	Telegram struct {
		BotToken    string        `env:"BOT_TOKEN,required"`
		AdminIDs    []int64       `env:"ADMIN_IDS" envSeparator:","`
		SendTimeout time.Duration `env:"TG_SEND_TIMEOUT" envDefault:"15s"`
	}

	Database struct {
		URL string `env:"DATABASE_URL,required"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Shopee struct {
		BaseURL       string        `env:"SHOPEE_BASE_URL" envDefault:"https://shopee.vn/api/v4"`
		ListTimeout   time.Duration `env:"SHOPEE_LIST_TIMEOUT" envDefault:"20s"`
		DetailTimeout time.Duration `env:"SHOPEE_DETAIL_TIMEOUT" envDefault:"15s"`
		OrderLimit    int           `env:"SHOPEE_ORDER_LIMIT" envDefault:"10"`
		// Cookie of a known-live account used for phone liveness probes.
		ProbeCookie string `env:"SHOPEE_PROBE_COOKIE" envDefault:""`
	}

	SPX struct {
		APIURL  string        `env:"SPX_API_URL" envDefault:"https://tramavandon.com/api/spx.php"`
		Timeout time.Duration `env:"SPX_TIMEOUT" envDefault:"20s"`
	}

	GHN struct {
		BaseURL string        `env:"GHN_BASE_URL" envDefault:"https://online-gateway.ghn.vn"`
		Timeout time.Duration `env:"GHN_TIMEOUT" envDefault:"15s"`
	}

	QR struct {
		BaseURL      string        `env:"QR_BASE_URL" envDefault:""`
		PollInterval time.Duration `env:"QR_POLL_INTERVAL" envDefault:"3s"`
		SessionTTL   time.Duration `env:"QR_SESSION_TTL" envDefault:"3m"`
		CallTimeout  time.Duration `env:"QR_CALL_TIMEOUT" envDefault:"10s"`
	}

	Ledger struct {
		BaseURL string        `env:"LEDGER_BASE_URL" envDefault:""`
		Timeout time.Duration `env:"LEDGER_TIMEOUT" envDefault:"10s"`
	}

	Limits struct {
		FreePerDay      int           `env:"FREE_LIMIT_PER_DAY" envDefault:"10"`
		SpamPerMinute   int           `env:"SPAM_LIMIT_PER_MIN" envDefault:"20"`
		Band1           time.Duration `env:"BAND_1" envDefault:"1h"`
		Band2           time.Duration `env:"BAND_2" envDefault:"24h"`
		Band3           time.Duration `env:"BAND_3" envDefault:"168h"`
		MaxPhonesPerMsg int           `env:"MAX_PHONES_PER_MSG" envDefault:"10"`
	}

	Cache struct {
		OrderTTL time.Duration `env:"ORDER_CACHE_TTL" envDefault:"5m"`
	}

	Logbatch struct {
		Size     int           `env:"LOG_BATCH_SIZE" envDefault:"20"`
		Interval time.Duration `env:"LOG_BATCH_INTERVAL" envDefault:"10s"`
	}

	Prices struct {
		OrderCheck int `env:"PRICE_ORDER_CHECK" envDefault:"0"`
		SPXCheck   int `env:"PRICE_SPX_CHECK" envDefault:"0"`
		GHNCheck   int `env:"PRICE_GHN_CHECK" envDefault:"0"`
		PhoneCheck int `env:"PRICE_PHONE_CHECK" envDefault:"0"`
		QRLogin    int `env:"PRICE_QR_LOGIN" envDefault:"0"`
	}

	Broadcast struct {
		Cooldown time.Duration `env:"BROADCAST_COOLDOWN" envDefault:"10m"`
	}
}

func Load() *Config {
	// Missing .env is fine; in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
