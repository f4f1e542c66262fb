package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rso-iota/rso-bots/bot/domain"
	"github.com/rso-iota/rso-bots/bot/internal/actor"
)

const tracerName = "github.com/rso-iota/rso-bots/bot/application"

// Spec は Add に渡すボット生成パラメータです。
type Spec struct {
	GameID      string
	DisplayName string
	Policy      string
	Target      string
	Credential  string
}

// HandleInfo は Get / List が返すハンドルの読み取り専用ビューです。
type HandleInfo struct {
	AgentID     string
	SessionID   string
	GameID      string
	DisplayName string
	Policy      string
	Target      string
	State       domain.SessionState
	StartedAt   time.Time
	Stats       domain.ActivityStats
}

// CredentialSource は Spec に資格情報がない場合のアクセストークンを提供します。
type CredentialSource interface {
	Token(ctx context.Context, gameID string) (string, error)
}

// StaticCredentials は全ゲームで同じトークンを返します。
type StaticCredentials string

func (c StaticCredentials) Token(context.Context, string) (string, error) {
	return string(c), nil
}

type Deps struct {
	Dialer         domain.Dialer
	Clock          Clock
	Credentials    CredentialSource
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	Session        SessionConfig
	StopTimeout    time.Duration
}

// handle はスーパーバイザーが所有する1エージェント分の管理情報です。
type handle struct {
	id       string
	instance string
	session  *Session
	started  time.Time
}

func (h *handle) info() HandleInfo {
	id := h.session.Identity()
	return HandleInfo{
		AgentID:     h.id,
		SessionID:   h.instance,
		GameID:      id.GameID,
		DisplayName: id.DisplayName,
		Policy:      id.Policy.String(),
		Target:      id.Target,
		State:       h.session.State(),
		StartedAt:   h.started,
		Stats:       h.session.Stats(),
	}
}

// Supervisor は全エージェントセッションのライフサイクルを管理します。
// ハンドルのマップは単一のアクターゴルーチンだけが触り、Add / Remove / Get / List と
// セッション終了通知はすべてコマンドとして直列化されます。
type Supervisor struct {
	dialer      domain.Dialer
	clock       Clock
	credentials CredentialSource
	logger      *slog.Logger
	tracer      trace.Tracer
	sessionCfg  SessionConfig
	stopTimeout time.Duration

	loop    *actor.Loop[command]
	handles map[string]*handle // アクター専有

	runCtx  context.Context
	running sync.WaitGroup
	started atomic.Bool
	done    chan struct{}
}

func NewSupervisor(deps Deps) (*Supervisor, error) {
	if deps.Dialer == nil {
		return nil, fmt.Errorf("supervisor: missing dependencies: dialer=%v", deps.Dialer)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Credentials == nil {
		deps.Credentials = StaticCredentials("")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = noop.NewTracerProvider()
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = DefaultStopTimeout
	}

	s := &Supervisor{
		dialer:      deps.Dialer,
		clock:       deps.Clock,
		credentials: deps.Credentials,
		logger:      deps.Logger,
		tracer:      deps.TracerProvider.Tracer(tracerName),
		sessionCfg:  deps.Session.withDefaults(),
		stopTimeout: deps.StopTimeout,
		handles:     make(map[string]*handle),
		done:        make(chan struct{}),
	}
	loop, err := actor.New(actor.Config[command]{
		Handler: func(ctx context.Context, cmd command) { cmd.execute(ctx, s) },
		Logger:  deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.loop = loop
	return s, nil
}

// Start はアクターを起動します。ctx がキャンセルされると全セッションを停止し、Done を閉じます。
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("supervisor: start called multiple times")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCtx = runCtx
	if err := s.loop.Start(ctx); err != nil {
		cancel()
		return err
	}
	go func() {
		<-s.loop.Done()
		s.shutdown(cancel)
		close(s.done)
	}()
	return nil
}

// Done はシャットダウンが完了すると閉じられます。
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// shutdown はアクター終了後に呼ばれ、残っている全セッションを停止します。
func (s *Supervisor) shutdown(cancel context.CancelFunc) {
	s.logger.Info("supervisor shutting down", "agents", len(s.handles))

	var wg sync.WaitGroup
	for id, h := range s.handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, stop := context.WithTimeout(context.Background(), s.stopTimeout)
			defer stop()
			if err := h.session.Stop(ctx); err != nil {
				s.logger.Warn("agent did not stop cleanly", "agentID", id, "err", err)
			}
		}()
	}
	wg.Wait()
	cancel()
	s.running.Wait()
	clear(s.handles)
	s.logger.Info("supervisor stopped")
}

// Add はエージェントを登録しセッションを起動します。接続の成否は待ちません。
func (s *Supervisor) Add(ctx context.Context, agentID string, spec Spec) (err error) {
	ctx, span := s.tracer.Start(ctx, "Supervisor.Add", trace.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("game.id", spec.GameID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	identity, err := validateSpec(agentID, spec)
	if err != nil {
		return err
	}
	token := spec.Credential
	if token == "" {
		token, err = s.credentials.Token(ctx, spec.GameID)
		if err != nil {
			return fmt.Errorf("resolve credentials for game %s: %w", spec.GameID, err)
		}
	}
	session, err := NewSession(identity, token, SessionDeps{
		Dialer: s.dialer,
		Clock:  s.clock,
		Logger: s.logger,
		Tracer: s.tracer,
		Config: s.sessionCfg,
	})
	if err != nil {
		return err
	}

	reply := make(chan error, 1)
	if err := s.submit(ctx, addCmd{id: agentID, session: session, reply: reply}); err != nil {
		return err
	}
	addErr, err := awaitSubmitted(s, reply)
	if err != nil {
		return err
	}
	return addErr
}

// Remove はセッションを停止し、終了を待ってからハンドルを破棄します。
func (s *Supervisor) Remove(ctx context.Context, agentID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "Supervisor.Remove", trace.WithAttributes(
		attribute.String("agent.id", agentID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	reply := make(chan removeResult, 1)
	if err := s.submit(ctx, removeCmd{id: agentID, reply: reply}); err != nil {
		return err
	}
	res, err := awaitSubmitted(s, reply)
	if err != nil {
		return err
	}
	if res.err != nil {
		return res.err
	}

	// ハンドルは既に切り離されているため、呼び出し元がキャンセルしても停止は最後まで行う。
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stopTimeout)
	defer cancel()
	if err := res.handle.session.Stop(stopCtx); err != nil {
		s.logger.WarnContext(ctx, "agent did not stop cleanly", "agentID", agentID, "err", err)
	}
	s.logger.InfoContext(ctx, "agent removed", "agentID", agentID)
	return nil
}

// Get は agentID のハンドル情報を返します。存在しなければ false です。
func (s *Supervisor) Get(ctx context.Context, agentID string) (HandleInfo, bool, error) {
	reply := make(chan getResult, 1)
	if err := s.submit(ctx, getCmd{id: agentID, reply: reply}); err != nil {
		return HandleInfo{}, false, err
	}
	res, err := await(ctx, s, reply)
	if err != nil {
		return HandleInfo{}, false, err
	}
	return res.info, res.ok, nil
}

// List は全ハンドル情報を agentID 順で返します。
func (s *Supervisor) List(ctx context.Context) ([]HandleInfo, error) {
	reply := make(chan []HandleInfo, 1)
	if err := s.submit(ctx, listCmd{reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, s, reply)
}

// supervise はセッションを実行し、終了をアクターに通知します。
func (s *Supervisor) supervise(h *handle) {
	defer s.running.Done()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("session panicked: %v", r)
			}
		}()
		return h.session.Run(s.runCtx)
	}()

	if err := s.submit(context.Background(), exitedCmd{id: h.id, instance: h.instance, err: err}); err != nil {
		s.logger.Debug("exit notification dropped", "agentID", h.id, "err", err)
	}
}

func (s *Supervisor) submit(ctx context.Context, cmd command) error {
	err := s.loop.Submit(ctx, cmd)
	if errors.Is(err, actor.ErrNotStarted) || errors.Is(err, actor.ErrStopped) {
		return domain.ErrSupervisorStopped
	}
	return err
}

func await[T any](ctx context.Context, s *Supervisor, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.loop.Done():
		return zero, domain.ErrSupervisorStopped
	}
}

// awaitSubmitted は投入済みの変更コマンドの応答を待ちます。
// アクターが既に状態を変えている可能性があるため、呼び出し元の ctx では打ち切りません。
// アクター停止時も、停止前に処理済みであれば応答を返します。
func awaitSubmitted[T any](s *Supervisor, reply <-chan T) (T, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-s.loop.Done():
	}
	select {
	case v := <-reply:
		return v, nil
	default:
		var zero T
		return zero, domain.ErrSupervisorStopped
	}
}

func validateSpec(agentID string, spec Spec) (Identity, error) {
	switch {
	case agentID == "":
		return Identity{}, fmt.Errorf("%w: agent id is required", domain.ErrInvalidSpec)
	case spec.GameID == "":
		return Identity{}, fmt.Errorf("%w: game id is required", domain.ErrInvalidSpec)
	case spec.DisplayName == "":
		return Identity{}, fmt.Errorf("%w: display name is required", domain.ErrInvalidSpec)
	}
	kind, err := ParsePolicyKind(spec.Policy)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", domain.ErrInvalidSpec, err)
	}
	u, err := url.Parse(spec.Target)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: target: %w", domain.ErrInvalidSpec, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return Identity{}, fmt.Errorf("%w: target %q must be a ws, wss, http or https URL", domain.ErrInvalidSpec, spec.Target)
	}
	if u.Host == "" {
		return Identity{}, fmt.Errorf("%w: target %q has no host", domain.ErrInvalidSpec, spec.Target)
	}
	return Identity{
		AgentID:     agentID,
		GameID:      spec.GameID,
		DisplayName: spec.DisplayName,
		Policy:      kind,
		Target:      spec.Target,
	}, nil
}

// --- actor commands ---

type command interface {
	execute(ctx context.Context, s *Supervisor)
}

type addCmd struct {
	id      string
	session *Session
	reply   chan<- error
}

func (c addCmd) execute(ctx context.Context, s *Supervisor) {
	if _, ok := s.handles[c.id]; ok {
		c.reply <- fmt.Errorf("%w: %s", domain.ErrAgentAlreadyExists, c.id)
		return
	}
	h := &handle{
		id:       c.id,
		instance: uuid.NewString(),
		session:  c.session,
		started:  s.clock.Now(),
	}
	s.handles[c.id] = h
	s.running.Add(1)
	go s.supervise(h)
	s.logger.InfoContext(ctx, "agent added", "agentID", c.id, "sessionID", h.instance)
	c.reply <- nil
}

type removeResult struct {
	handle *handle
	err    error
}

type removeCmd struct {
	id    string
	reply chan<- removeResult
}

func (c removeCmd) execute(_ context.Context, s *Supervisor) {
	h, ok := s.handles[c.id]
	if !ok {
		c.reply <- removeResult{err: fmt.Errorf("%w: %s", domain.ErrAgentNotFound, c.id)}
		return
	}
	delete(s.handles, c.id)
	c.reply <- removeResult{handle: h}
}

type getResult struct {
	info HandleInfo
	ok   bool
}

type getCmd struct {
	id    string
	reply chan<- getResult
}

func (c getCmd) execute(_ context.Context, s *Supervisor) {
	h, ok := s.handles[c.id]
	if !ok {
		c.reply <- getResult{}
		return
	}
	c.reply <- getResult{info: h.info(), ok: true}
}

type listCmd struct {
	reply chan<- []HandleInfo
}

func (c listCmd) execute(_ context.Context, s *Supervisor) {
	infos := make([]HandleInfo, 0, len(s.handles))
	for _, h := range s.handles {
		infos = append(infos, h.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].AgentID < infos[j].AgentID })
	c.reply <- infos
}

// exitedCmd はセッションの Run が戻ったことを通知します。外部からの Remove で既に
// 取り除かれている場合や、同じ ID で別のセッションが登録し直されている場合は何もしません。
type exitedCmd struct {
	id       string
	instance string
	err      error
}

func (c exitedCmd) execute(ctx context.Context, s *Supervisor) {
	h, ok := s.handles[c.id]
	if !ok || h.instance != c.instance {
		return
	}
	delete(s.handles, c.id)
	if c.err != nil {
		s.logger.WarnContext(ctx, "agent session ended, deregistering", "agentID", c.id, "err", c.err)
		return
	}
	s.logger.InfoContext(ctx, "agent session ended, deregistering", "agentID", c.id)
}
