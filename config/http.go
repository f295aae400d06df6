package config

// HTTPConfig contains the health endpoint configuration.
type HTTPConfig struct {
	// Addr is the address of the liveness/readiness listener. Empty disables it.
	Addr string `env:"HEALTH_ADDR" envDefault:":8081"`
}
