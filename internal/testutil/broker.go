// Package testutil provides an in-process MQTT broker for tests.
//
// Tests that previously needed a Mosquitto instance on 127.0.0.1:1883 start
// their own broker on a free loopback port instead.
package testutil

import (
	"context"
	"net"
	"testing"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"
)

// BrokerOption customises the broker started by StartBroker.
type BrokerOption func(*accessPlugin)

// DenyClientID makes the broker answer a CONNECT from clientID with
// CONNACK "not authorized".
func DenyClientID(clientID string) BrokerOption {
	return func(p *accessPlugin) {
		p.denied[clientID] = struct{}{}
	}
}

// StartBroker starts an embedded MQTT 3.1.1 broker on a random loopback port.
// The broker is stopped when the test finishes.
func StartBroker(t testing.TB, opts ...BrokerOption) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening for test broker: %v", err)
	}

	access := &accessPlugin{denied: make(map[string]struct{})}
	for _, opt := range opts {
		opt(access)
	}

	s := gmqtt.NewServer(gmqtt.WithTCPListener(ln), gmqtt.WithPlugin(access))
	s.Run()

	t.Cleanup(func() {
		s.Stop(context.Background()) //nolint:errcheck // best-effort teardown
	})

	addr := ln.Addr().(*net.TCPAddr) //nolint:errcheck // Listen("tcp") always yields *net.TCPAddr
	return addr.IP.String(), addr.Port
}

// accessPlugin rejects configured client ids at CONNECT time.
type accessPlugin struct {
	denied map[string]struct{}
}

func (p *accessPlugin) Load(gmqtt.Server) error { return nil }
func (p *accessPlugin) Unload() error           { return nil }
func (p *accessPlugin) Name() string            { return "testutil access" }

func (p *accessPlugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{OnConnectWrapper: p.onConnect}
}

func (p *accessPlugin) onConnect(next gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) uint8 {
		if _, ok := p.denied[client.OptionsReader().ClientID()]; ok {
			return packets.CodeNotAuthorized
		}
		return next(ctx, client)
	}
}
