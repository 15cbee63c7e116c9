package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Spawner creates worker instances: it resolves the profile's model,
// starts a server through the transport, opens a session, injects the
// identity prompt, and registers the result.
//
// Spawn is idempotent per worker id, and concurrent spawns for the same id
// are coalesced into one in-flight attempt.
type Spawner struct {
	registry    *Registry
	transport   ports.Transport
	resolver    ports.ModelResolver
	permissions ports.PermissionTranslator
	overrides   ports.OverrideStore
	metrics     ports.MetricsCollector
	logger      *zap.Logger

	spawnTimeout time.Duration
	repoContext  string

	inflight singleflight.Group
}

// SpawnerConfig holds spawner collaborators and settings. Resolver,
// overrides and metrics may be nil.
type SpawnerConfig struct {
	Registry     *Registry
	Transport    ports.Transport
	Resolver     ports.ModelResolver
	Permissions  ports.PermissionTranslator
	Overrides    ports.OverrideStore
	Metrics      ports.MetricsCollector
	Logger       *zap.Logger
	SpawnTimeout time.Duration
	// RepoContext is optional text injected into every worker's identity
	// prompt, e.g. a summary of the repository the workers operate on.
	RepoContext string
}

// NewSpawner creates a spawner.
func NewSpawner(cfg SpawnerConfig) *Spawner {
	timeout := cfg.SpawnTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Spawner{
		registry:     cfg.Registry,
		transport:    cfg.Transport,
		resolver:     cfg.Resolver,
		permissions:  cfg.Permissions,
		overrides:    cfg.Overrides,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		spawnTimeout: timeout,
		repoContext:  cfg.RepoContext,
	}
}

// Spawn returns the existing instance for the profile's id, or creates a
// new one. Concurrent callers for the same id share a single in-flight
// attempt; only one server is ever started per id.
//
// Reuse is unconditional: an instance left in error state by a failed
// spawn is returned as-is rather than retried. Callers retry a failed
// worker by stopping it first, which frees the id for a fresh spawn.
func (s *Spawner) Spawn(ctx context.Context, profile domain.WorkerProfile) (domain.WorkerInstance, error) {
	if inst, ok := s.registry.Get(profile.ID); ok {
		return inst, nil
	}

	v, err, _ := s.inflight.Do(profile.ID, func() (interface{}, error) {
		// Re-check under the flight: a previous caller may have finished
		// between the fast path and joining the group.
		if inst, ok := s.registry.Get(profile.ID); ok {
			return inst, nil
		}
		return s.spawn(ctx, profile)
	})
	if err != nil {
		return domain.WorkerInstance{}, err
	}
	return v.(domain.WorkerInstance), nil
}

func (s *Spawner) spawn(ctx context.Context, profile domain.WorkerProfile) (domain.WorkerInstance, error) {
	profile = s.applyOverrides(ctx, profile)

	inst := &domain.WorkerInstance{
		Profile:      profile,
		Status:       domain.WorkerStatusStarting,
		Port:         profile.Port,
		StartedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	// Register up front so a failed spawn stays visible in error state.
	s.registry.register(inst, nil, nil)
	s.registry.publishLifecycle(profile.ID, domain.WorkerStatusStarting)

	s.logger.Info("spawning worker",
		zap.String("worker_id", profile.ID),
		zap.String("model", profile.Model))

	instSnapshot, err := s.startWorker(ctx, profile)
	if err != nil {
		s.registry.mutate(profile.ID, func(i *domain.WorkerInstance) {
			i.Status = domain.WorkerStatusError
			i.LastError = err.Error()
		})
		s.registry.publishLifecycle(profile.ID, domain.WorkerStatusError)
		if s.metrics != nil {
			s.metrics.RecordSpawn("error")
		}
		s.logger.Error("spawn failed",
			zap.String("worker_id", profile.ID),
			zap.Error(err))
		return domain.WorkerInstance{}, fmt.Errorf("spawn worker %s: %w", profile.ID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordSpawn("ready")
	}
	s.logger.Info("worker ready",
		zap.String("worker_id", profile.ID),
		zap.String("model", instSnapshot.ResolvedModel),
		zap.String("url", instSnapshot.ServerURL))
	return instSnapshot, nil
}

// startWorker runs the spawn sequence. On any failure it shuts down a
// partially started server best-effort and returns the error.
func (s *Spawner) startWorker(ctx context.Context, profile domain.WorkerProfile) (domain.WorkerInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.spawnTimeout)
	defer cancel()

	resolution, err := s.resolveModel(profile)
	if err != nil {
		return domain.WorkerInstance{}, err
	}

	var toolConfig ports.ToolConfig
	if s.permissions != nil {
		toolConfig = s.permissions.BuildToolConfig(profile.Permissions)
	}

	client, server, err := s.transport.CreateServer(ctx, ports.ServerConfig{
		Hostname:     "127.0.0.1",
		Port:         profile.Port,
		Timeout:      s.spawnTimeout,
		Model:        resolution.Full,
		SystemPrompt: profile.SystemPrompt,
		Temperature:  profile.Temperature,
		ToolConfig:   toolConfig,
	})
	if err != nil {
		return domain.WorkerInstance{}, fmt.Errorf("create server: %w", err)
	}

	sessionID, err := client.CreateSession(ctx)
	if err != nil {
		s.closeServer(profile.ID, server)
		return domain.WorkerInstance{}, fmt.Errorf("create session: %w", err)
	}

	if err := client.PromptNoReply(ctx, sessionID, s.identityPrompt(profile)); err != nil {
		s.closeServer(profile.ID, server)
		return domain.WorkerInstance{}, fmt.Errorf("inject identity: %w", err)
	}

	var snapshot domain.WorkerInstance
	s.registry.mu.Lock()
	entry, ok := s.registry.instances[profile.ID]
	if ok {
		entry.client = client
		entry.server = server
		entry.instance.Status = domain.WorkerStatusReady
		entry.instance.ServerURL = server.URL()
		entry.instance.SessionID = sessionID
		entry.instance.ResolvedModel = resolution.Full
		entry.instance.LastActivity = time.Now()
		snapshot = cloneInstance(entry.instance)
	}
	s.registry.mu.Unlock()
	if !ok {
		// Stopped while starting; clean up the server we just made.
		s.closeServer(profile.ID, server)
		return domain.WorkerInstance{}, fmt.Errorf("%w: %s", domain.ErrWorkerNotFound, profile.ID)
	}

	s.registry.publishLifecycle(profile.ID, domain.WorkerStatusReady)
	return snapshot, nil
}

// resolveModel passes explicit "provider/model" specs through unchanged
// and resolves symbolic tags via the external resolver, failing loudly
// when the resolver is unavailable.
func (s *Spawner) resolveModel(profile domain.WorkerProfile) (*ports.Resolution, error) {
	spec := profile.Model
	if provider, model, ok := strings.Cut(spec, "/"); ok && provider != "" && model != "" {
		return &ports.Resolution{Full: spec, ProviderID: provider, ModelID: model}, nil
	}

	if s.resolver == nil {
		return nil, fmt.Errorf("%w: %q is not an explicit provider/model id and no resolver is configured", domain.ErrModelUnresolved, spec)
	}
	resolution, err := s.resolver.Resolve(spec, ports.ResolveContext{
		WorkerID: profile.ID,
		Vision:   profile.Vision,
		Web:      profile.Web,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnresolved, err)
	}
	return resolution, nil
}

// applyOverrides merges stored per-worker overrides over the static
// profile. Override-store failures are logged and ignored; the profile is
// used as-is.
func (s *Spawner) applyOverrides(ctx context.Context, profile domain.WorkerProfile) domain.WorkerProfile {
	if s.overrides == nil {
		return profile
	}
	o, err := s.overrides.GetOverrides(ctx, profile.ID)
	if err != nil {
		s.logger.Warn("failed to fetch profile overrides",
			zap.String("worker_id", profile.ID),
			zap.Error(err))
		return profile
	}
	return o.Apply(profile)
}

// identityPrompt builds the one-shot context block injected at spawn:
// worker id, capabilities, permission summary, and optional repo context.
func (s *Spawner) identityPrompt(profile domain.WorkerProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are worker %q (%s).\n", profile.ID, profile.Name)
	if profile.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", profile.Purpose)
	}

	var caps []string
	if profile.Vision {
		caps = append(caps, "vision")
	}
	if profile.Web {
		caps = append(caps, "web")
	}
	if len(caps) > 0 {
		fmt.Fprintf(&b, "Capabilities: %s\n", strings.Join(caps, ", "))
	}

	if s.permissions != nil {
		fmt.Fprintf(&b, "Permissions: %s\n", s.permissions.Summarize(profile.Permissions))
	}
	if s.repoContext != "" {
		fmt.Fprintf(&b, "\nRepository context:\n%s\n", s.repoContext)
	}
	return b.String()
}

func (s *Spawner) closeServer(workerID string, server ports.ServerHandle) {
	if server == nil {
		return
	}
	if err := server.Close(); err != nil {
		s.logger.Warn("failed to close partially started server",
			zap.String("worker_id", workerID),
			zap.Error(err))
	}
}
