package httpapi

import "time"

// Config parameterizes the HTTP facade.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	SigningKey     string
	Issuer         string
	RequestTimeout time.Duration
}

func (config Config) requestTimeout() time.Duration {
	if config.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return config.RequestTimeout
}
