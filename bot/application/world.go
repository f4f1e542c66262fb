package application

import (
	"sync"

	"github.com/rso-iota/rso-bots/bot/domain"
)

// World はサーバーから受け取った状態をローカルに再構成したものです。
// 受信ループが書き込み、tick ループが読み込みます。Apply 系は RWMutex で原子的に適用されます。
type World struct {
	mu sync.RWMutex

	players map[string]domain.PlayerRecord
	food    []domain.FoodRecord
	known   []bool // food[i] が一度でも記述されたか

	populated bool
}

// Snapshot は World のある時点のディープコピーです。
type Snapshot struct {
	Players map[string]domain.PlayerRecord
	// Food は記述済みのスロットのみをインデックス昇順で保持します。
	Food      []domain.FoodRecord
	FoodSlots int
	Populated bool
}

func NewWorld() *World {
	return &World{
		players: make(map[string]domain.PlayerRecord),
	}
}

// ApplyFullState は以前の状態を破棄し、スナップショットから再構築します。
func (w *World) ApplyFullState(state domain.GameState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.players = make(map[string]domain.PlayerRecord, len(state.Players))
	w.food = nil
	w.known = nil
	for _, p := range state.Players {
		w.players[p.Name] = p
	}
	for _, f := range state.Food {
		w.putFood(f)
	}
	w.populated = true
}

// ApplyUpdate は差分を適用します。未知のプレイヤーは追加されます。暗黙の削除はしません。
func (w *World) ApplyUpdate(update domain.Update) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range update.Players {
		w.players[p.Name] = p
	}
	for _, f := range update.Food {
		w.putFood(f)
	}
}

// ApplySpawn はプレイヤー1人を追加または置き換えます。
func (w *World) ApplySpawn(p domain.PlayerRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.players[p.Name] = p
}

// putFood はインデックスの位置に書き込みます。範囲外ならテーブルを伸ばします。
func (w *World) putFood(f domain.FoodRecord) {
	if f.Index < 0 {
		return
	}
	if f.Index >= len(w.food) {
		grown := make([]domain.FoodRecord, f.Index+1)
		copy(grown, w.food)
		for i := len(w.food); i < len(grown); i++ {
			grown[i].Index = i
		}
		w.food = grown
		known := make([]bool, f.Index+1)
		copy(known, w.known)
		w.known = known
	}
	w.food[f.Index] = f
	w.known[f.Index] = true
}

// Record は指定した名前のプレイヤーを返します。未登場なら false です。
// 「存在しない」と「存在するが死亡中」は呼び出し側で区別してください。
func (w *World) Record(name string) (domain.PlayerRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.players[name]
	return p, ok
}

// Food は index のスロットを返します。伸長で埋められただけの未記述スロットは false です。
func (w *World) Food(index int) (domain.FoodRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if index < 0 || index >= len(w.food) || !w.known[index] {
		return domain.FoodRecord{}, false
	}
	return w.food[index], true
}

func (w *World) FoodLen() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.food)
}

// Populated はフルステートを一度でも受信したかを返します。
func (w *World) Populated() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.populated
}

func (w *World) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Snapshot{
		Players:   make(map[string]domain.PlayerRecord, len(w.players)),
		Food:      make([]domain.FoodRecord, 0, len(w.food)),
		FoodSlots: len(w.food),
		Populated: w.populated,
	}
	for name, p := range w.players {
		s.Players[name] = p
	}
	for i, f := range w.food {
		if w.known[i] {
			s.Food = append(s.Food, f)
		}
	}
	return s
}
