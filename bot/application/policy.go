package application

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/rso-iota/rso-bots/bot/domain"
)

// PolicyKind は移動ポリシーの種類です。セッション生成時に一度だけ解決されます。
type PolicyKind uint8

const (
	PolicyGreedy PolicyKind = iota + 1
	PolicyRandom
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyGreedy:
		return "greedy"
	case PolicyRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ParsePolicyKind は "greedy" / "random" を PolicyKind に変換します。大文字小文字は区別しません。
func ParsePolicyKind(name string) (PolicyKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "greedy":
		return PolicyGreedy, nil
	case "random":
		return PolicyRandom, nil
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownPolicy, name)
	}
}

// MovementPolicy はボットの意思決定インターフェースです。
// 入力はワールドのスナップショットと自分の名前、出力は単位ベクトルまたはゼロベクトルです。
type MovementPolicy interface {
	Decide(world Snapshot, self string) domain.Vector
}

// NewPolicy は kind に対応するポリシーを返します。
func NewPolicy(kind PolicyKind) (MovementPolicy, error) {
	switch kind {
	case PolicyGreedy:
		return GreedyPolicy{}, nil
	case PolicyRandom:
		return NewRandomPolicy(), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", domain.ErrUnknownPolicy, kind)
	}
}

// GreedyPolicy は最寄りの食料へまっすぐ向かいます。
type GreedyPolicy struct{}

func (GreedyPolicy) Decide(world Snapshot, self string) domain.Vector {
	me, ok := world.Players[self]
	if !ok {
		return domain.Vector{}
	}
	target, ok := findNearestFood(me.Circle.Center(), world.Food)
	if !ok {
		return domain.Vector{}
	}
	return target.Sub(me.Circle.Center()).Normalize()
}

// findNearestFood は from から最も近い食料の中心を返します。
func findNearestFood(from domain.Vector, food []domain.FoodRecord) (domain.Vector, bool) {
	var nearest domain.Vector
	nearestDistSq := math.MaxFloat64
	found := false

	for _, f := range food {
		d := f.Circle.Center().Sub(from)
		distSq := d.X*d.X + d.Y*d.Y
		if distSq < nearestDistSq {
			nearestDistSq = distSq
			nearest = f.Circle.Center()
			found = true
		}
	}
	return nearest, found
}

// RandomPolicy は毎 tick ランダムな方向を選びます。
type RandomPolicy struct {
	rand func() float64 // [0, 1)
}

func NewRandomPolicy() *RandomPolicy {
	return &RandomPolicy{rand: rand.Float64}
}

func (r *RandomPolicy) Decide(_ Snapshot, _ string) domain.Vector {
	angle := r.rand() * 2 * math.Pi
	return domain.Vector{X: math.Cos(angle), Y: math.Sin(angle)}
}
