package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentAlreadyExists は同じ agentID のボットが既に登録されている場合に返されるエラーです。
	ErrAgentAlreadyExists = errors.New("agent already exists")
	// ErrAgentNotFound は指定された agentID のボットが存在しない場合に返されるエラーです。
	ErrAgentNotFound = errors.New("agent not found")
	// ErrSessionAlreadyRunning は同一セッションで Run が二度呼ばれた場合に返されるエラーです。
	ErrSessionAlreadyRunning = errors.New("session already running")
	// ErrInvalidSpec はボット生成パラメータが不正な場合に返されるエラーです。
	ErrInvalidSpec = errors.New("invalid agent spec")
	// ErrUnknownPolicy は未知の移動ポリシー名が指定された場合に返されるエラーです。
	ErrUnknownPolicy = errors.New("unknown movement policy")
	// ErrSupervisorStopped はスーパーバイザーが起動前または停止済みの場合に返されるエラーです。
	ErrSupervisorStopped = errors.New("supervisor stopped")

	// ErrConnect は ConnectError の判定用センチネルです。
	ErrConnect = errors.New("connect failed")
	// ErrDecode は DecodeError の判定用センチネルです。
	ErrDecode = errors.New("protocol decode failed")
)

// ConnectError はゲームサーバーへの接続（dial と join 送信）に失敗したことを表します。
type ConnectError struct {
	AgentID string
	Target  string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.AgentID == "" {
		return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("agent %s: connect %s: %v", e.AgentID, e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

// DecodeError は受信メッセージの解析に失敗したことを表します。セッションは継続します。
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode message: %v", e.Err)
	}
	return fmt.Sprintf("decode %q message: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
