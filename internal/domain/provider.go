package domain

import (
	"fmt"
	"strings"
)

// Priority decides how a server takes part in scheduling. Low priority
// servers only service work that was redirected to them.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "default"
	}
}

// ParsePriority accepts the names used in config files and the API.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "normal":
		return PriorityDefault, nil
	case "high":
		return PriorityHigh, nil
	case "low", "backup":
		return PriorityLow, nil
	default:
		return PriorityDefault, fmt.Errorf("unknown priority %q", s)
	}
}

// ServerConfig describes one upstream news server.
type ServerConfig struct {
	Name        string
	Host        string
	Port        int
	Username    string
	Password    string
	TLS         bool
	Connections int
	Priority    Priority
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
