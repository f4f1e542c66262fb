package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/rso-iota/rso-bots/bot/domain"
	"github.com/rso-iota/rso-bots/utils"
)

const (
	// DefaultTickInterval はサーバーの tick レート (33Hz) に合わせた送信間隔です。
	DefaultTickInterval   = time.Second / 33
	DefaultConnectTimeout = 10 * time.Second
	DefaultStopTimeout    = 5 * time.Second

	// forceCloseGrace は強制クローズ後に Run の終了を待つ時間です。
	forceCloseGrace = time.Second
)

// Identity はセッション開始時に決まり、以後変わらないエージェントの属性です。
type Identity struct {
	AgentID     string
	GameID      string
	DisplayName string
	Policy      PolicyKind
	Target      string
}

type SessionConfig struct {
	TickInterval   time.Duration
	ConnectTimeout time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

type SessionDeps struct {
	Dialer domain.Dialer
	Clock  Clock
	Logger *slog.Logger
	Tracer trace.Tracer
	Config SessionConfig
}

// Session は1エージェント分の接続を所有し、受信ループと tick ループを駆動します。
type Session struct {
	identity Identity
	token    string

	dialer domain.Dialer
	policy MovementPolicy
	world  *World
	clock  Clock
	logger *slog.Logger
	tracer trace.Tracer
	cfg    SessionConfig

	conn     atomic.Pointer[domain.Connection]
	state    atomic.Uint32
	activity domain.Activity

	// stepMu はワールドへの適用と rejoin 送信、tick の判断と move 送信を互いに排他にします。
	stepMu          sync.Mutex
	awaitingRespawn bool

	// lifecycle
	started  atomic.Bool
	stopCtx  context.Context
	stopFunc context.CancelFunc
	done     chan struct{}
}

func NewSession(identity Identity, token string, deps SessionDeps) (*Session, error) {
	if deps.Dialer == nil {
		return nil, fmt.Errorf("session: missing dialer")
	}
	if identity.AgentID == "" || identity.GameID == "" || identity.DisplayName == "" || identity.Target == "" {
		return nil, fmt.Errorf("%w: agentID, gameID, displayName and target are required", domain.ErrInvalidSpec)
	}
	policy, err := NewPolicy(identity.Policy)
	if err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}

	stopCtx, stopFunc := context.WithCancel(context.Background())
	return &Session{
		identity: identity,
		token:    token,
		dialer:   deps.Dialer,
		policy:   policy,
		world:    NewWorld(),
		clock:    deps.Clock,
		logger:   deps.Logger.With("agentID", identity.AgentID, "player", identity.DisplayName),
		tracer:   deps.Tracer,
		cfg:      deps.Config.withDefaults(),
		stopCtx:  stopCtx,
		stopFunc: stopFunc,
		done:     make(chan struct{}),
	}, nil
}

func (s *Session) Identity() Identity          { return s.identity }
func (s *Session) Stats() domain.ActivityStats { return s.activity.Stats() }
func (s *Session) State() domain.SessionState  { return domain.SessionState(s.state.Load()) }

func (s *Session) setState(st domain.SessionState) { s.state.Store(uint32(st)) }

// Done は Run が完全に終了したときに閉じられます。
func (s *Session) Done() <-chan struct{} { return s.done }

// Connect はゲームサーバーに接続し join を送信します。失敗時は *domain.ConnectError を返します。
func (s *Session) Connect(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Session.Connect", trace.WithAttributes(
		attribute.String("agent.id", s.identity.AgentID),
		attribute.String("game.id", s.identity.GameID),
	))
	defer span.End()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	connectErr := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		return &domain.ConnectError{AgentID: s.identity.AgentID, Target: s.identity.Target, Err: err}
	}

	tr, err := s.dialer.Dial(dialCtx, domain.Target{
		URL:    s.identity.Target,
		GameID: s.identity.GameID,
		Token:  s.token,
	})
	if err != nil {
		return connectErr(err)
	}
	s.conn.Store(domain.NewConnection(s.identity.AgentID, tr))
	s.setState(domain.StateConnecting)

	if err := s.sendJoin(dialCtx); err != nil {
		return connectErr(fmt.Errorf("send join: %w", err))
	}
	s.setState(domain.StateJoined)
	return nil
}

// Run は接続・join の後、受信ループと tick ループを並行実行します。
// どちらかが終了するかキャンセルされると両方を止め、接続を閉じてから戻ります。
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return domain.ErrSessionAlreadyRunning
	}
	defer close(s.done)
	defer s.setState(domain.StateTerminated)
	defer s.closeTransport()

	if s.stopCtx.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unregister := context.AfterFunc(s.stopCtx, cancel)
	defer unregister()

	if err := s.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.setState(domain.StateRunning)
	s.logger.InfoContext(ctx, "agent joined", "gameID", s.identity.GameID, "policy", s.identity.Policy)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return s.guard("receive", func() error { return s.receiveLoop(gctx) })
	})
	eg.Go(func() error {
		defer cancel()
		return s.guard("tick", func() error { return s.tickLoop(gctx) })
	})
	return eg.Wait()
}

// Stop は両ループをキャンセルし Run の終了を待ちます。何度呼んでも安全です。
// ctx が先に切れた場合は接続を強制的に破棄します。
func (s *Session) Stop(ctx context.Context) error {
	s.stopFunc()
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
	}

	s.logger.WarnContext(ctx, "graceful stop timed out, forcing transport close")
	if conn := s.conn.Load(); conn != nil {
		_ = conn.CloseNow()
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(forceCloseGrace):
		return fmt.Errorf("stop agent %s: %w", s.identity.AgentID, ctx.Err())
	}
}

func (s *Session) guard(activity string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s activity panicked: %v", activity, r)
		}
	}()
	return fn()
}

func (s *Session) receiveLoop(ctx context.Context) error {
	conn := s.conn.Load()
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, domain.ErrTransportClosed) {
				s.logger.InfoContext(ctx, "connection closed by server")
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		s.activity.TouchRead(s.clock.Now())

		msg, err := domain.ParseMessage(data)
		if err != nil {
			s.activity.CountDecodeError()
			s.logger.WarnContext(ctx, "dropping malformed message", "err", err)
			continue
		}
		if err := s.handleMessage(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, msg domain.Message) error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	switch {
	case msg.GameState != nil:
		s.world.ApplyFullState(*msg.GameState)
		return s.checkRespawn(ctx, true)
	case msg.Update != nil:
		s.world.ApplyUpdate(*msg.Update)
	case msg.Spawn != nil:
		s.world.ApplySpawn(*msg.Spawn)
	default:
		s.logger.DebugContext(ctx, "ignoring message", "type", msg.Type)
		return nil
	}
	return s.checkRespawn(ctx, false)
}

// checkRespawn は自分のレコードが死亡に変わった時点で一度だけ join を再送します。
// resync（全状態の受信）では、まだ死亡していれば join を再送します。
// stepMu を保持した状態で呼び出してください。
func (s *Session) checkRespawn(ctx context.Context, resync bool) error {
	me, ok := s.world.Record(s.identity.DisplayName)
	if !ok {
		return nil
	}
	if me.Alive {
		if s.awaitingRespawn {
			s.awaitingRespawn = false
			s.setState(domain.StateRunning)
			s.logger.InfoContext(ctx, "agent respawned")
		}
		return nil
	}
	if s.awaitingRespawn && !resync {
		return nil
	}

	s.awaitingRespawn = true
	s.setState(domain.StateRejoining)
	s.activity.CountRejoin()
	s.logger.InfoContext(ctx, "agent died, rejoining")
	if err := s.sendJoin(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("rejoin: %w", err)
	}
	return nil
}

func (s *Session) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (s *Session) tick(ctx context.Context) error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	if !s.world.Populated() {
		return nil
	}
	me, ok := s.world.Record(s.identity.DisplayName)
	if !ok || !me.Alive || s.awaitingRespawn {
		return nil
	}
	dir := s.policy.Decide(s.world.Snapshot(), s.identity.DisplayName)
	if !utils.FiniteVec(dir) {
		dir = domain.Vector{}
	}
	data, err := domain.EncodeMove(dir)
	if err != nil {
		return err
	}
	if err := s.conn.Load().Write(ctx, data); err != nil {
		return fmt.Errorf("send move: %w", err)
	}
	s.activity.TouchWrite(s.clock.Now())
	s.activity.CountMove()
	return nil
}

func (s *Session) sendJoin(ctx context.Context) error {
	data, err := domain.EncodeJoin(s.identity.DisplayName)
	if err != nil {
		return err
	}
	if err := s.conn.Load().Write(ctx, data); err != nil {
		return err
	}
	s.activity.TouchWrite(s.clock.Now())
	return nil
}

func (s *Session) closeTransport() {
	conn := s.conn.Load()
	if conn == nil {
		return
	}
	if err := conn.Close(domain.CloseNormal, "bot stopped"); err != nil {
		s.logger.Debug("close transport", "err", err)
		_ = conn.CloseNow()
	}
}
