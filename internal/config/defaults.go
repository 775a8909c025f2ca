package config

import "time"

// Escalation policies for orders whose offers all expired.
const (
	EscalationNotifyAdmins = "notify_admins"
	EscalationRebroadcast  = "rebroadcast"
)

const defaultPort = 8080

var defaultDB = DB{
	Host:    "127.0.0.1",
	Port:    "5432",
	User:    "myuser",
	Pass:    "mypassword",
	Name:    "dispatch_db",
	SSLMode: "disable",
}

var defaultKafka = Kafka{
	GroupID:     "captain-dispatch",
	OrdersTopic: "orders.events",
	StatusTopic: "orders.status",

	PublishAttempts: 3,
	RetryBaseDelay:  100 * time.Millisecond,
	RetryMaxDelay:   time.Second,
}

var defaultAuth = Auth{
	Issuer:   "captain-dispatch",
	TokenTTL: 12 * time.Hour,
}

var defaultDispatch = Dispatch{
	OfferTTL:         2 * time.Minute,
	SweepSchedule:    "@every 15s",
	OperationTimeout: 3 * time.Second,
	AutoBroadcast:    true,
	Escalation:       EscalationNotifyAdmins,
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       10,
	Burst:      20,
	TTL:        5 * time.Minute,
	MaxBuckets: 10000,
}

// Default returns the built-in settings every other layer overrides.
func Default() Config {
	return Config{
		Port:     defaultPort,
		LogLevel: "info",
		Storage:  StoragePostgres,
		DB:       defaultDB,
		Redis: Redis{
			RelayChannel: "dispatch:push",
		},
		Kafka:     defaultKafka,
		Auth:      defaultAuth,
		Dispatch:  defaultDispatch,
		Notify:    Notify{Language: "en", ActiveWithinDays: 7},
		RateLimit: defaultRateLimit,
		Pprof:     Pprof{Addr: "127.0.0.1:6060"},
	}
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}
