package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rso-iota/rso-bots/bot/application"
	"github.com/rso-iota/rso-bots/bot/domain"
)

// BotControl はコントロールサーフェスから見たスーパーバイザーです。
type BotControl interface {
	Add(ctx context.Context, agentID string, spec application.Spec) error
	Remove(ctx context.Context, agentID string) error
	Get(ctx context.Context, agentID string) (application.HandleInfo, bool, error)
	List(ctx context.Context) ([]application.HandleInfo, error)
}

// Defaults はリクエストで省略されたフィールドの既定値です。
type Defaults struct {
	GameID     string
	Target     string
	Policy     string
	NamePrefix string
}

// CreateRequest はボット生成リクエストです。gRPC と HTTP で共通です。
type CreateRequest struct {
	BotID       string `json:"bot_id"`
	GameID      string `json:"game_id"`
	DisplayName string `json:"display_name"`
	Policy      string `json:"policy"`
	Target      string `json:"target"`
	Token       string `json:"token"`
}

func (d Defaults) spec(botID string, req CreateRequest) application.Spec {
	spec := application.Spec{
		GameID:      req.GameID,
		DisplayName: req.DisplayName,
		Policy:      req.Policy,
		Target:      req.Target,
		Credential:  req.Token,
	}
	if spec.GameID == "" {
		spec.GameID = d.GameID
	}
	if spec.Target == "" {
		spec.Target = d.Target
	}
	if spec.Policy == "" {
		spec.Policy = d.Policy
	}
	if spec.DisplayName == "" {
		spec.DisplayName = displayName(d.NamePrefix, botID)
	}
	return spec
}

func displayName(prefix, botID string) string {
	short := botID
	if r := []rune(short); len(r) > 8 {
		short = string(r[:8])
	}
	if prefix == "" {
		return short
	}
	return prefix + "-" + short
}

// BotView はハンドル情報の外部表現です。
type BotView struct {
	BotID            string    `json:"bot_id"`
	SessionID        string    `json:"session_id"`
	GameID           string    `json:"game_id"`
	DisplayName      string    `json:"display_name"`
	Policy           string    `json:"policy"`
	Target           string    `json:"target"`
	State            string    `json:"state"`
	StartedAt        time.Time `json:"started_at"`
	MessagesReceived uint64    `json:"messages_received"`
	DecodeErrors     uint64    `json:"decode_errors"`
	MovesSent        uint64    `json:"moves_sent"`
	Rejoins          uint64    `json:"rejoins"`
}

func NewBotView(info application.HandleInfo) BotView {
	return BotView{
		BotID:            info.AgentID,
		SessionID:        info.SessionID,
		GameID:           info.GameID,
		DisplayName:      info.DisplayName,
		Policy:           info.Policy,
		Target:           info.Target,
		State:            info.State.String(),
		StartedAt:        info.StartedAt,
		MessagesReceived: info.Stats.MessagesReceived,
		DecodeErrors:     info.Stats.DecodeErrors,
		MovesSent:        info.Stats.MovesSent,
		Rejoins:          info.Stats.Rejoins,
	}
}

func (v BotView) fields() map[string]any {
	return map[string]any{
		"bot_id":            v.BotID,
		"session_id":        v.SessionID,
		"game_id":           v.GameID,
		"display_name":      v.DisplayName,
		"policy":            v.Policy,
		"target":            v.Target,
		"state":             v.State,
		"started_at":        v.StartedAt.UTC().Format(time.RFC3339Nano),
		"messages_received": v.MessagesReceived,
		"decode_errors":     v.DecodeErrors,
		"moves_sent":        v.MovesSent,
		"rejoins":           v.Rejoins,
	}
}

// create は Add の直後にハンドルを読み戻します。
// 接続失敗で既に登録解除されていた場合は要求内容から組み立てます。
func create(ctx context.Context, control BotControl, botID string, spec application.Spec) (BotView, error) {
	if err := control.Add(ctx, botID, spec); err != nil {
		return BotView{}, err
	}
	info, ok, err := control.Get(ctx, botID)
	if err != nil {
		return BotView{}, err
	}
	if !ok {
		return BotView{
			BotID:       botID,
			GameID:      spec.GameID,
			DisplayName: spec.DisplayName,
			Policy:      spec.Policy,
			Target:      spec.Target,
			State:       domain.StateTerminated.String(),
		}, nil
	}
	return NewBotView(info), nil
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidSpec) || errors.Is(err, domain.ErrUnknownPolicy)
}
