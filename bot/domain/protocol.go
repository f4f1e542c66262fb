package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType はエンベロープの種別です。
//
//	{"type": "<MessageType>", "data": {...}}
type MessageType string

const (
	// サーバー → ボット
	MessageTypeGameState MessageType = "gameState"
	MessageTypeFullState MessageType = "fullState"
	MessageTypeUpdate    MessageType = "update"
	MessageTypeSpawn     MessageType = "spawn"

	// ボット → サーバー
	MessageTypeJoin MessageType = "join"
	MessageTypeMove MessageType = "move"
)

// MaxFoodIndex は受け付ける食料インデックスの上限です。これを超える値でテーブルを伸ばしません。
const MaxFoodIndex = 1 << 20

var (
	ErrEmptyMessage        = errors.New("empty message")
	ErrMissingType         = errors.New("missing message type")
	ErrMissingData         = errors.New("missing message data")
	ErrMissingPlayerName   = errors.New("player record: missing playerName")
	ErrMissingAlive        = errors.New("player record: missing alive")
	ErrMissingCircle       = errors.New("missing circle")
	ErrMissingFoodIndex    = errors.New("food record: missing index")
	ErrFoodIndexOutOfRange = errors.New("food record: index out of range")
)

// Envelope は全メッセージ共通の外枠です。
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Circle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

func (c Circle) Center() Vector {
	return Vector{X: c.X, Y: c.Y}
}

// PlayerRecord はプレイヤー1人分の状態です。名前がゲーム内で一意な識別子になります。
type PlayerRecord struct {
	Name   string `json:"playerName"`
	Alive  bool   `json:"alive"`
	Circle Circle `json:"circle"`
}

func (p *PlayerRecord) UnmarshalJSON(data []byte) error {
	var wire struct {
		PlayerName string  `json:"playerName"`
		Alive      *bool   `json:"alive"`
		Circle     *Circle `json:"circle"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.PlayerName == "":
		return ErrMissingPlayerName
	case wire.Alive == nil:
		return fmt.Errorf("%w (%s)", ErrMissingAlive, wire.PlayerName)
	case wire.Circle == nil:
		return fmt.Errorf("player record %s: %w", wire.PlayerName, ErrMissingCircle)
	}
	*p = PlayerRecord{Name: wire.PlayerName, Alive: *wire.Alive, Circle: *wire.Circle}
	return nil
}

// FoodRecord はサーバーの食料テーブル上の1スロットです。Index が唯一の識別キーです。
type FoodRecord struct {
	Index  int    `json:"index"`
	Circle Circle `json:"circle"`
}

func (f *FoodRecord) UnmarshalJSON(data []byte) error {
	var wire struct {
		Index  *int    `json:"index"`
		Circle *Circle `json:"circle"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.Index == nil:
		return ErrMissingFoodIndex
	case *wire.Index < 0 || *wire.Index > MaxFoodIndex:
		return fmt.Errorf("%w: %d", ErrFoodIndexOutOfRange, *wire.Index)
	case wire.Circle == nil:
		return fmt.Errorf("food record %d: %w", *wire.Index, ErrMissingCircle)
	}
	*f = FoodRecord{Index: *wire.Index, Circle: *wire.Circle}
	return nil
}

// GameState は接続直後に届くワールド全体のスナップショットです。
type GameState struct {
	Players []PlayerRecord `json:"players"`
	Food    []FoodRecord   `json:"food"`
}

// Update は差分です。含まれないエントリは変更しません。
type Update struct {
	Players []PlayerRecord `json:"players,omitempty"`
	Food    []FoodRecord   `json:"food,omitempty"`
}

type JoinPayload struct {
	PlayerName string `json:"playerName"`
}

type MovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Message は解析済みの受信メッセージです。Type に対応するフィールドのみ非nilになります。
// 未知の Type の場合はすべて nil です。
type Message struct {
	Type      MessageType
	GameState *GameState
	Update    *Update
	Spawn     *PlayerRecord
}

// ParseEnvelope はメッセージの外枠だけを解析します。
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(data)) == 0 {
		return env, &DecodeError{Err: ErrEmptyMessage}
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, &DecodeError{Err: err}
	}
	if env.Type == "" {
		return env, &DecodeError{Err: ErrMissingType}
	}
	return env, nil
}

// ParseMessage は受信フレームを解析します。失敗時は *DecodeError を返します。
func ParseMessage(data []byte) (Message, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return Message{}, err
	}
	msg := Message{Type: env.Type}
	switch {
	case env.Type.IsFullState():
		msg.GameState, err = parsePayload[GameState](env)
	case env.Type == MessageTypeUpdate:
		msg.Update, err = parsePayload[Update](env)
	case env.Type == MessageTypeSpawn:
		msg.Spawn, err = parsePayload[PlayerRecord](env)
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// IsFullState は gameState / fullState のどちらでも true を返します。
func (t MessageType) IsFullState() bool {
	return t == MessageTypeGameState || t == MessageTypeFullState
}

func parsePayload[T any](env Envelope) (*T, error) {
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &DecodeError{Type: string(env.Type), Err: ErrMissingData}
	}
	v := new(T)
	if err := json.Unmarshal(env.Data, v); err != nil {
		return nil, &DecodeError{Type: string(env.Type), Err: err}
	}
	return v, nil
}

func encode(t MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

func EncodeJoin(playerName string) ([]byte, error) {
	return encode(MessageTypeJoin, JoinPayload{PlayerName: playerName})
}

func EncodeMove(dir Vector) ([]byte, error) {
	return encode(MessageTypeMove, MovePayload{X: dir.X, Y: dir.Y})
}

// EncodeGameState / EncodeUpdate / EncodeSpawn はサーバー側の送信形式です。テスト用サーバーで使います。
func EncodeGameState(s GameState) ([]byte, error) {
	return encode(MessageTypeGameState, s)
}

func EncodeUpdate(u Update) ([]byte, error) {
	return encode(MessageTypeUpdate, u)
}

func EncodeSpawn(p PlayerRecord) ([]byte, error) {
	return encode(MessageTypeSpawn, p)
}
