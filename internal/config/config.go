package config

import (
	"fmt"
	"net/url"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	PublicURL      string
	AllowedOrigins []string
	InMemory       bool
}

func NewConfig(serverAddr, databaseDSN, publicURL string, allowedOrigins []string, inMemory bool) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if !inMemory && databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if publicURL == "" {
		return nil, fmt.Errorf("public URL cannot be empty")
	}

	// Invite links and QR codes are built from the public URL, so it
	// has to parse as an absolute URL.
	u, err := url.Parse(publicURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("invalid public URL %q", publicURL)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		PublicURL:      publicURL,
		AllowedOrigins: allowedOrigins,
		InMemory:       inMemory,
	}, nil
}
