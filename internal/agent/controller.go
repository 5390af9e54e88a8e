package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/convoctl/internal/controlplane"
	"github.com/danmuck/convoctl/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Remote is the control-plane surface the controller drives.
// *controlplane.Client satisfies it.
type Remote interface {
	Join(ctx context.Context, doc []byte) (controlplane.Response, error)
	Leave(ctx context.Context, agentID string) (controlplane.Response, error)
	ListActive(ctx context.Context) (controlplane.Response, error)
}

type Config struct {
	Remote    Remote
	Builder   controlplane.DocumentBuilder
	Scheduler Scheduler
	Retry     RetryPolicy
	// MaxConflictStops bounds how many listed sessions are stopped while
	// resolving one conflict. Listed sessions beyond it are ignored.
	MaxConflictStops int
	Logger           *zerolog.Logger
	Now              func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Retry:            DefaultRetryPolicy(),
		MaxConflictStops: 1,
	}
}

// Controller is the single owner of the local session State. Start and Stop
// absorb every remote and parse error; callers observe effects via State,
// Subscribe and logs.
type Controller struct {
	remote    Remote
	builder   controlplane.DocumentBuilder
	scheduler Scheduler
	policy    RetryPolicy
	maxStops  int
	logger    zerolog.Logger
	now       func() time.Time
	rng       *rand.Rand

	// retries run detached from the Start caller's context
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	state   State
	settled chan struct{}
	subs    map[chan Transition]struct{}
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Remote == nil {
		return nil, ErrRemoteRequired
	}
	if cfg.Builder == nil {
		return nil, ErrBuilderRequired
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewTimerScheduler()
	}
	if cfg.MaxConflictStops <= 0 {
		cfg.MaxConflictStops = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	settled := make(chan struct{})
	close(settled)
	c := &Controller{
		remote:     cfg.Remote,
		builder:    cfg.Builder,
		scheduler:  cfg.Scheduler,
		policy:     cfg.Retry.WithDefaults(),
		maxStops:   cfg.MaxConflictStops,
		logger:     logger.With().Str("component", "agent").Logger(),
		now:        cfg.Now,
		rng:        rand.New(rand.NewSource(cfg.Now().UnixNano())),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		settled:    settled,
		subs:       make(map[chan Transition]struct{}),
	}
	c.state.UpdatedAt = cfg.Now()
	return c, nil
}

// State returns a copy of the current local view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a buffered feed of transitions. Sends never block; a full
// buffer drops the transition. The returned func unsubscribes.
func (c *Controller) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Transition, buffer)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until no attempt is in flight and no retry is pending.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.settled
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the scheduler. Pending retries never fire after Close.
func (c *Controller) Close() {
	c.scheduler.Stop()
	c.cancelBase()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhaseRetryScheduled {
		c.clearLocked()
		c.state.LastError = ErrSchedulerStopped.Error()
		c.transitionLocked(PhaseFailed, OutcomeNone)
	}
}

// Start establishes a session unless one is already established or an
// attempt is already in flight. It returns once this attempt has either
// joined, failed or handed off to a scheduled retry.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state.Joined {
		c.mu.Unlock()
		c.logger.Info().Str("agent_id", c.State().AgentID).Msg("agent already running")
		return
	}
	if c.state.Phase.Busy() {
		phase := c.state.Phase
		c.mu.Unlock()
		c.logger.Info().Stringer("phase", phase).Msg("start already in progress")
		return
	}
	c.state.Attempt = 1
	c.state.LastError = ""
	c.transitionLocked(PhaseStarting, OutcomeNone)
	c.mu.Unlock()

	c.attempt(ctx, 1)
}

// retry is the scheduled unit. It only proceeds if the chain it belongs to is
// still the pending one.
func (c *Controller) retry(attempt int) {
	c.mu.Lock()
	if c.state.Phase != PhaseRetryScheduled || c.state.Joined {
		c.mu.Unlock()
		return
	}
	c.state.Attempt = attempt
	c.transitionLocked(PhaseStarting, OutcomeNone)
	c.mu.Unlock()

	c.logger.Info().Int("attempt", attempt).Msg("retrying agent start")
	c.attempt(c.baseCtx, attempt)
}

func (c *Controller) attempt(ctx context.Context, attempt int) {
	logger := c.logger.With().Int("attempt", attempt).Logger()

	doc, err := c.builder.Build()
	if err != nil {
		c.fail(OutcomeNone, fmt.Errorf("%w: %v", ErrBuildDocument, err))
		return
	}

	logger.Info().Msg("starting conversational agent")
	resp, err := c.remote.Join(ctx, doc)
	if err != nil {
		c.fail(OutcomeTransportError, err)
		return
	}

	switch resp.Status {
	case http.StatusOK:
		out := controlplane.ParseJoin(resp.Body)
		switch out.Kind {
		case controlplane.JoinStarted:
			c.joined(out.AgentID)
		case controlplane.JoinParseFailed:
			c.fail(OutcomeRejected, fmt.Errorf("%w: join response: %v", ErrRemoteRejection, out.Err))
		default:
			c.fail(OutcomeRejected, fmt.Errorf("%w: join %s: %s", ErrRemoteRejection, out.Kind, out.Summary()))
		}
	case http.StatusConflict:
		c.resolveConflict(ctx, attempt)
	default:
		out := controlplane.ParseJoin(resp.Body)
		c.fail(OutcomeRejected, fmt.Errorf("%w: join status %d: %s", ErrRemoteRejection, resp.Status, out.Summary()))
	}
}

func (c *Controller) resolveConflict(ctx context.Context, attempt int) {
	c.setPhase(PhaseConflictResolving, OutcomeConflictDetected)
	observability.RecordStartOutcome(OutcomeConflictDetected.String())
	c.logger.Warn().Int("attempt", attempt).Msg("conflict: agent already exists in channel, resolving")

	listed := c.listRunning(ctx)
	targets := listed.Leading(c.maxStops)
	if len(targets) == 0 {
		c.logger.Info().Int("listed", len(listed.Sessions)).Msg("no running agent at the head of the list, conflict is stale")
		c.scheduleRetry(attempt, RetryStale)
		return
	}
	if len(listed.Sessions) > len(targets) {
		c.logger.Warn().
			Int("listed", len(listed.Sessions)).
			Int("max_conflict_stops", c.maxStops).
			Msg("stopping only the leading listed agents, ignoring the rest")
	}
	for _, session := range targets {
		if err := c.stopByID(ctx, session.AgentID); err != nil {
			c.fail(OutcomeConflictDetected, fmt.Errorf("%w: stop conflicting agent %s: %v", ErrConflict, session.AgentID, err))
			return
		}
		c.logger.Info().Str("agent_id", session.AgentID).Msg("conflicting agent stopped")
	}
	c.scheduleRetry(attempt, RetryConflict)
}

// listRunning treats every list failure as "nothing running".
func (c *Controller) listRunning(ctx context.Context) controlplane.ListOutcome {
	resp, err := c.remote.ListActive(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("list running agents failed")
		return controlplane.ListOutcome{}
	}
	if resp.Status != http.StatusOK {
		c.logger.Warn().Int("status", resp.Status).Msg("list running agents rejected")
		return controlplane.ListOutcome{}
	}
	out, err := controlplane.ParseListActive(resp.Body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("list running agents unparseable")
		return controlplane.ListOutcome{}
	}
	c.logger.Info().Int("running", len(out.Sessions)).Msg("queried running agents")
	return out
}

// stopByID terminates a session this controller does not own. It never
// touches State.
func (c *Controller) stopByID(ctx context.Context, agentID string) error {
	if strings.TrimSpace(agentID) == "" {
		return fmt.Errorf("%w: empty agent id", ErrInvalidLocalState)
	}
	c.logger.Info().Str("agent_id", agentID).Msg("stopping agent by id")
	resp, err := c.remote.Leave(ctx, agentID)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("%w: leave status %d", ErrRemoteRejection, resp.Status)
	}
	return nil
}

func (c *Controller) scheduleRetry(attempt int, kind RetryKind) {
	if c.policy.Exhausted(attempt) {
		c.fail(OutcomeConflictDetected, fmt.Errorf("%w: %d attempts", ErrRetriesExhausted, attempt))
		return
	}
	c.mu.Lock()
	delay := c.policy.Delay(kind, attempt, c.rng)
	c.transitionLocked(PhaseRetryScheduled, OutcomeConflictDetected)
	c.mu.Unlock()

	next := attempt + 1
	if err := c.scheduler.Schedule(delay, func() { c.retry(next) }); err != nil {
		c.fail(OutcomeConflictDetected, err)
		return
	}
	observability.RecordRetryScheduled(string(kind))
	c.logger.Info().
		Str("kind", string(kind)).
		Dur("delay", delay).
		Int("next_attempt", next).
		Msg("agent start retry scheduled")
}

// Stop terminates the owned session. Local state is cleared whatever the
// remote outcome, so a failed leave never blocks the next Start.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.state.Phase == PhaseStopping {
		c.mu.Unlock()
		c.logger.Info().Msg("stop already in progress")
		return
	}
	agentID := c.state.AgentID
	if agentID == "" {
		c.state.Joined = false
		c.state.LastError = ErrInvalidLocalState.Error() + ": no agent id to stop"
		c.state.UpdatedAt = c.now()
		phase := c.state.Phase
		c.mu.Unlock()
		observability.SetAgentJoined(false)
		c.logger.Warn().Stringer("phase", phase).Msg("no active agent to stop (agent_id is empty)")
		return
	}
	c.transitionLocked(PhaseStopping, OutcomeNone)
	c.mu.Unlock()

	logger := c.logger.With().Str("agent_id", agentID).Logger()
	logger.Info().Msg("stopping conversational agent")

	var stopErr error
	resp, err := c.remote.Leave(ctx, agentID)
	switch {
	case err != nil:
		stopErr = err
		logger.Warn().Err(err).Msg("leave failed, clearing state to allow restart")
	case resp.Status != http.StatusOK:
		stopErr = fmt.Errorf("%w: leave status %d", ErrRemoteRejection, resp.Status)
		logger.Warn().Int("status", resp.Status).Msg("leave rejected, clearing state anyway")
	default:
		out := controlplane.ParseLeave(resp.Body)
		if out.OK {
			logger.Info().Msg("agent left successfully")
		} else {
			stopErr = fmt.Errorf("%w: leave code %d: %s", ErrRemoteRejection, out.Code, out.Message)
			if out.Err != nil {
				stopErr = out.Err
			}
			logger.Warn().Err(stopErr).Msg("leave not confirmed, clearing state anyway")
		}
	}

	c.mu.Lock()
	c.clearLocked()
	if stopErr != nil {
		c.state.LastError = stopErr.Error()
	}
	c.transitionLocked(PhaseIdle, OutcomeNone)
	c.mu.Unlock()
	observability.SetAgentJoined(false)
}

func (c *Controller) joined(agentID string) {
	c.mu.Lock()
	c.state.Joined = true
	c.state.AgentID = agentID
	c.state.LastError = ""
	c.transitionLocked(PhaseJoined, OutcomeStarted)
	attempt := c.state.Attempt
	c.mu.Unlock()

	observability.RecordStartOutcome(OutcomeStarted.String())
	observability.SetAgentJoined(true)
	c.logger.Info().Str("agent_id", agentID).Int("attempt", attempt).Msg("agent joined")
}

// fail resets local state; a prior partial state never survives a failed
// attempt.
func (c *Controller) fail(outcome Outcome, err error) {
	if outcome == OutcomeNone || outcome == OutcomeRejected {
		var terr *controlplane.TransportError
		if errors.As(err, &terr) {
			outcome = OutcomeTransportError
		}
	}

	c.mu.Lock()
	c.clearLocked()
	c.state.LastError = err.Error()
	c.transitionLocked(PhaseFailed, outcome)
	attempt := c.state.Attempt
	c.mu.Unlock()

	if outcome != OutcomeConflictDetected {
		observability.RecordStartOutcome(outcome.String())
	}
	observability.SetAgentJoined(false)
	event := c.logger.Error()
	if outcome == OutcomeTransportError {
		event = c.logger.Warn()
	}
	event.Int("attempt", attempt).Stringer("outcome", outcome).Err(err).Msg("agent was not created")
}

func (c *Controller) setPhase(phase Phase, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(phase, outcome)
}

func (c *Controller) clearLocked() {
	c.state.Joined = false
	c.state.AgentID = ""
}

func (c *Controller) transitionLocked(to Phase, outcome Outcome) {
	from := c.state.Phase
	wasBusy := from.Busy()
	c.state.Phase = to
	c.state.UpdatedAt = c.now()

	switch {
	case !wasBusy && to.Busy():
		c.settled = make(chan struct{})
	case wasBusy && !to.Busy():
		close(c.settled)
	}

	tr := Transition{
		From:    from,
		To:      to,
		Outcome: outcome,
		AgentID: c.state.AgentID,
		Attempt: c.state.Attempt,
		Err:     c.state.LastError,
		At:      c.state.UpdatedAt,
	}
	for ch := range c.subs {
		select {
		case ch <- tr:
		default:
		}
	}
}
