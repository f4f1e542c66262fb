package domain

import (
	"context"
	"errors"
)

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport,Dialer

// ErrTransportClosed は相手側またはローカルで接続が閉じられたことを表します。
// 受信ループはこれを正常終了として扱います。
var ErrTransportClosed = errors.New("transport closed")

const CloseNormal int32 = 1000

// Transport は Connection（物理接続）が依存するI/O境界です。
type Transport interface {
	Read(ctx context.Context) (data []byte, err error)
	Write(ctx context.Context, data []byte) error
	Close(code int32, reason string) error
	CloseNow() error
}

// Target は接続先ゲームとアクセストークンの組です。
type Target struct {
	URL    string
	GameID string
	Token  string
}

// Dialer は Target への Transport を開きます。
type Dialer interface {
	Dial(ctx context.Context, target Target) (Transport, error)
}
