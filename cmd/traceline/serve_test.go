package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8137", "ws://localhost:8137/ws"},
		{"0.0.0.0:8137", "ws://localhost:8137/ws"},
		{"[::]:8137", "ws://localhost:8137/ws"},
		{"192.168.1.5:9000", "ws://192.168.1.5:9000/ws"},
		{"[fe80::1]:9000", "ws://[fe80::1]:9000/ws"},
		{"example.com:8137", "ws://example.com:8137/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, accessURL(tt.addr))
		})
	}
}
