package domain

import (
	"context"
	"sync"
	"sync/atomic"
)

// Connection は1エージェントが専有する物理接続を表します。
// 書き込みは直列化され、join と move がワイヤ上で混ざることはありません。
type Connection struct {
	AgentID   string
	transport Transport

	writeMu sync.Mutex
	closed  atomic.Bool
}

func NewConnection(agentID string, transport Transport) *Connection {
	return &Connection{
		AgentID:   agentID,
		transport: transport,
	}
}

func (c *Connection) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.transport.Write(ctx, data)
}

func (c *Connection) Read(ctx context.Context) ([]byte, error) {
	return c.transport.Read(ctx)
}

// Close は正常クローズを試みます。二度目以降は何もしません。
func (c *Connection) Close(code int32, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.transport.Close(code, reason)
}

// CloseNow はハンドシェイクを待たずに接続を破棄します。Close 済みでも呼べます。
func (c *Connection) CloseNow() error {
	c.closed.Store(true)
	return c.transport.CloseNow()
}
