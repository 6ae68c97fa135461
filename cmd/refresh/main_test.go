package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheTTLTooLong(t *testing.T) {
	tests := []struct {
		name     string
		ttl      time.Duration
		interval time.Duration
		want     bool
	}{
		{name: "default ttl against default interval", ttl: 300 * time.Second, interval: 5 * time.Minute, want: true},
		{name: "half the interval", ttl: 150 * time.Second, interval: 5 * time.Minute, want: false},
		{name: "short ttl", ttl: time.Minute, interval: 5 * time.Minute, want: false},
		{name: "daily schedule", ttl: 300 * time.Second, interval: 24 * time.Hour, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cacheTTLTooLong(tt.ttl, tt.interval))
			assert.Equal(t, tt.want, warnServerCacheStaleness(tt.ttl, tt.interval))
		})
	}
}
