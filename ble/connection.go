package ble

import (
	"context"
	"net"
	"sync"

	"github.com/go-ble/ble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "embermug_bridge_ble_successful_connections_total",
		Help: "Number of BLE connections successfully established.",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "embermug_bridge_ble_failed_connections_total",
		Help: "Number of BLE connection attempts that failed.",
	})
	connectionsFromPoolCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "embermug_bridge_ble_reused_connections_total",
		Help: "Number of connections served from the connection pool.",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "embermug_bridge_ble_disconnections_total",
		Help: "Number of BLE disconnections observed.",
	})
	notificationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "embermug_bridge_ble_notifications_total",
		Help: "Number of GATT notifications received, by device.",
	}, []string{"addr"})
)

// Count a notification received from the device with the given address.
func CountNotification(addr net.HardwareAddr) {
	notificationsCounter.WithLabelValues(addr.String()).Inc()
}

type connectionPool struct {
	mu sync.Mutex

	connections map[string]Client
}

func initConnectionPool() *connectionPool {
	return &connectionPool{
		connections: make(map[string]ble.Client),
	}
}

func dial(ctx context.Context, addr net.HardwareAddr) (Client, error) {
	c, err := ble.Dial(ctx, ble.NewAddr(addr.String()))

	if err != nil {
		failedConnectionsCounter.Inc()
		return nil, err
	}

	successfulConnectionsCounter.Inc()

	return c, nil
}

// Connect to the device with the given address, reusing a pooled connection if the handle was
// initialized with FlagPersistConnections.
func (h *Handle) Connect(ctx context.Context, addr net.HardwareAddr) (Client, error) {
	if h.connPool == nil {
		return dial(ctx, addr)
	}

	addrStr := addr.String()

	h.connPool.mu.Lock()
	defer h.connPool.mu.Unlock()

	if conn := h.connPool.connections[addrStr]; conn != nil {
		connectionsFromPoolCounter.Inc()
		log.Trace().Stringer("Addr", addr).Msg("ble: reusing connection from connection pool")
		return conn, nil
	}

	conn, err := dial(ctx, addr)

	if err != nil {
		return nil, err
	}

	h.connPool.connections[addrStr] = conn
	log.Debug().Stringer("Addr", addr).Msg("ble: successfully opened new connection to device")

	// drop the pool entry once the link goes away.
	go func() {
		<-conn.Disconnected()

		disconnectsCounter.Inc()
		log.Debug().Stringer("Addr", addr).Msg("ble: connection with device closed, cleaning up")

		h.connPool.mu.Lock()
		defer h.connPool.mu.Unlock()

		if h.connPool.connections[addrStr] == conn {
			delete(h.connPool.connections, addrStr)
		}
	}()

	return conn, nil
}

// Clear the connection pool (if any) and close all connections.
func (h *Handle) DisconnectAll() {
	if h.connPool == nil {
		return
	}

	h.connPool.mu.Lock()
	defer h.connPool.mu.Unlock()

	for addr, conn := range h.connPool.connections {
		if err := conn.CancelConnection(); err != nil {
			log.Debug().Err(err).Str("Addr", addr).Msg("ble: failed to cancel connection")
		}
	}

	h.connPool.connections = make(map[string]ble.Client)
}
