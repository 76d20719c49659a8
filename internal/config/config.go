package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"club.db"`

	Venue    Venue    `envPrefix:"VENUE_"`
	Gateway  Gateway  `envPrefix:"GATEWAY_"`
	Fees     Fees     `envPrefix:"FEES_"`
	Pricing  Pricing  `envPrefix:"PRICING_"`
	Checkout Checkout `envPrefix:"CHECKOUT_"`
	Lock     Lock     `envPrefix:"LOCK_"`
	Auth     Auth     `envPrefix:"AUTH_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// Venue holds the civil-time context of the deployment. Date checks and
// pricing use this fixed offset, never the host timezone.
type Venue struct {
	UTCOffsetMinutes int    `env:"UTC_OFFSET_MINUTES" envDefault:"-300"`
	Currency         string `env:"CURRENCY" envDefault:"COP"`
}

type Gateway struct {
	BaseApiURL      string `env:"BASE_API_URL"`
	PublicKey       string `env:"PUBLIC_KEY"`
	PrivateKey      string `env:"PRIVATE_KEY"`
	IntegritySecret string `env:"INTEGRITY_SECRET"`
	RedirectURL     string `env:"REDIRECT_URL"`
	// PollTimeoutSeconds bounds how long checkout waits for an async
	// redirect URL before handing the transaction back to the client.
	PollTimeoutSeconds  int `env:"POLL_TIMEOUT_SECONDS" envDefault:"15"`
	PollIntervalSeconds int `env:"POLL_INTERVAL_SECONDS" envDefault:"2"`
}

type Fees struct {
	GeneralTicketRatePct float64 `env:"GENERAL_TICKET_RATE_PCT" envDefault:"5"`
	EventTicketRatePct   float64 `env:"EVENT_TICKET_RATE_PCT" envDefault:"5"`
	MenuRatePct          float64 `env:"MENU_RATE_PCT" envDefault:"2.5"`
	GatewayVariablePct   float64 `env:"GATEWAY_VARIABLE_PCT" envDefault:"2.65"`
	GatewayFixedCents    int64   `env:"GATEWAY_FIXED_CENTS" envDefault:"700"`
	GatewayTaxPct        float64 `env:"GATEWAY_TAX_PCT" envDefault:"19"`
}

type Pricing struct {
	GraceMinutes      int     `env:"GRACE_MINUTES" envDefault:"60"`
	GraceSurchargePct float64 `env:"GRACE_SURCHARGE_PCT" envDefault:"30"`
}

type Checkout struct {
	MinTotalCents   int64  `env:"MIN_TOTAL_CENTS" envDefault:"1500"`
	HorizonDays     int    `env:"HORIZON_DAYS" envDefault:"21"`
	QRSecret        string `env:"QR_SECRET"`
	PaymentProvider string `env:"PAYMENT_PROVIDER" envDefault:"wompi"`
}

type Lock struct {
	TTLMinutes    int    `env:"TTL_MINUTES" envDefault:"10"`
	SweepMinutes  int    `env:"SWEEP_MINUTES" envDefault:"5"`
	RedisAddr     string `env:"REDIS_ADDR"` // empty selects the in-memory store
	RedisPassword string `env:"REDIS_PASSWORD"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}
