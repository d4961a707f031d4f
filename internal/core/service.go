package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridcore/internal/blob"
	"gridcore/internal/translate"
	"gridcore/internal/upgrade"
	"gridcore/internal/version"
	"gridcore/pkg/domain"
)

// Service orchestrates translation and store upgrades over a model store,
// with plugins supplying the rules and steps.
type Service struct {
	store    domain.ModelStore
	strategy version.Strategy

	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	archive blob.Store

	mu           sync.Mutex
	plugins      map[string]PluginMetadata
	rules        []translate.Rule
	steps        []upgrade.Step
	stepNames    map[string]struct{}
	schemas      map[string]map[string]any
	translations *translate.Context
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(audit AuditRecorder) ServiceOption {
	return func(s *Service) {
		if audit != nil {
			s.audit = audit
		}
	}
}

// WithArchive attaches an archive store for snapshot exports.
func WithArchive(archive blob.Store) ServiceOption {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithStrategy overrides the version strategy used for rule resolution and
// upgrade planning.
func WithStrategy(strategy version.Strategy) ServiceOption {
	return func(s *Service) {
		if strategy != nil {
			s.strategy = strategy
		}
	}
}

// NewService constructs a service backed by the supplied model store.
func NewService(store domain.ModelStore, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("service requires a model store")
	}
	svc := &Service{
		store:     store,
		strategy:  version.Default(),
		logger:    noopLogger{},
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		audit:     noopAudit{},
		plugins:   make(map[string]PluginMetadata),
		stepNames: make(map[string]struct{}),
		schemas:   make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(svc)
	}
	translations, err := translate.NewContext(nil, nil, nil, nil, translate.WithStrategy(svc.strategy))
	if err != nil {
		return nil, err
	}
	svc.translations = translations
	return svc, nil
}

// Store returns the underlying model store.
func (s *Service) Store() domain.ModelStore { return s.store }

// observe starts a span for the operation and returns a finish func that
// records metrics and closes the span.
func (s *Service) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	return ctx, func(err error) {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
		span.End(err)
	}
}

// InstallPlugin registers a plugin, merging its rules, steps, and schemas
// into the service. Installation is atomic: a duplicate rule key or step name
// anywhere in the plugin leaves the service unchanged.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already installed", plugin.Name())
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("register plugin %s: %w", plugin.Name(), err)
	}

	for _, step := range registry.Steps() {
		if _, exists := s.stepNames[step.Name()]; exists {
			return PluginMetadata{}, fmt.Errorf("plugin %s: upgrade step %q already installed", plugin.Name(), step.Name())
		}
	}

	merged := append(append([]translate.Rule(nil), s.rules...), registry.Rules()...)
	translations, err := translate.NewContext(nil, nil, nil, merged, translate.WithStrategy(s.strategy))
	if err != nil {
		return PluginMetadata{}, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
	}

	s.rules = merged
	s.translations = translations
	for _, step := range registry.Steps() {
		s.stepNames[step.Name()] = struct{}{}
		s.steps = append(s.steps, step)
	}
	for componentType, schema := range registry.Schemas() {
		s.schemas[componentType] = schema
	}

	meta := metadataFor(plugin, registry)
	s.plugins[plugin.Name()] = meta
	s.logger.Info("plugin installed",
		"plugin", meta.Name,
		"version", meta.Version,
		"rules", len(meta.Rules),
		"steps", len(meta.Steps),
	)
	return meta, nil
}

// InstalledPlugins returns metadata for installed plugins sorted by name.
func (s *Service) InstalledPlugins() []PluginMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Schemas returns the installed component schema fragments keyed by type.
func (s *Service) Schemas() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]any, len(s.schemas))
	for componentType, schema := range s.schemas {
		cp := make(map[string]any, len(schema))
		for k, v := range schema {
			cp[k] = v
		}
		out[componentType] = cp
	}
	return out
}

// Translations returns the current translation context built from installed
// plugin rules.
func (s *Service) Translations() *translate.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translations
}

// Translate converts a record to targetType using the highest-versioned
// installed rule for the pair.
func (s *Service) Translate(ctx context.Context, record domain.Record, targetType string) (domain.Record, error) {
	_, finish := s.observe(ctx, "translate")
	translated, err := s.Translations().Translate(record, targetType)
	finish(err)
	if err != nil {
		s.logger.Warn("translate failed", "source", record.Type, "target", targetType, "error", err)
		return domain.Record{}, err
	}
	return translated, nil
}

// TranslateAt converts a record to targetType using the rule registered at
// exactly the given version.
func (s *Service) TranslateAt(ctx context.Context, record domain.Record, targetType, versionToken string) (domain.Record, error) {
	_, finish := s.observe(ctx, "translate_at")
	translated, err := s.Translations().TranslateAt(record, targetType, versionToken)
	finish(err)
	if err != nil {
		s.logger.Warn("translate failed", "source", record.Type, "target", targetType, "version", versionToken, "error", err)
		return domain.Record{}, err
	}
	return translated, nil
}

// UpgradeReport aggregates one UpgradeStore run.
type UpgradeReport struct {
	RunID       string               `json:"run_id"`
	FromVersion string               `json:"from_version"`
	ToVersion   string               `json:"to_version"`
	Results     []upgrade.StepResult `json:"results"`
}

// OK reports whether every candidate step either applied or was cleanly
// skipped.
func (r UpgradeReport) OK() bool {
	for _, res := range r.Results {
		if res.Status == upgrade.StatusFailed || res.Status == upgrade.StatusUndecided {
			return false
		}
	}
	return true
}

// UpgradeStore runs the installed upgrade steps against the persisted model
// in a single transaction. Store-level steps chain over the whole snapshot;
// component-level steps rewrite each record in place. The schema version is
// bumped to the highest target among applied steps. A failed step is recorded
// in the report and does not abort the run; the error return covers storage
// and invariant failures only.
func (s *Service) UpgradeStore(ctx context.Context) (UpgradeReport, error) {
	ctx, finish := s.observe(ctx, "upgrade_store")

	s.mu.Lock()
	steps := make([]upgrade.Step, len(s.steps))
	copy(steps, s.steps)
	s.mu.Unlock()

	report := UpgradeReport{RunID: uuid.NewString()}
	uctx := upgrade.Context{"run_id": report.RunID}
	pipeline := upgrade.NewPipeline(upgrade.WithStrategy(s.strategy))

	err := s.store.RunInTransaction(ctx, func(tx domain.ModelTx) error {
		current := tx.SchemaVersion()
		report.FromVersion = current
		report.ToVersion = current

		var storeSteps, componentSteps []upgrade.Step
		for _, step := range steps {
			if step.UpgradeType() == upgrade.TypeComponent {
				componentSteps = append(componentSteps, step)
			} else {
				storeSteps = append(storeSteps, step)
			}
		}

		snapshot := tx.Snapshot()
		runReport, err := pipeline.Run(current, storeSteps, snapshot, uctx)
		if err != nil {
			return err
		}
		report.Results = append(report.Results, runReport.Results...)
		upgraded, ok := runReport.Data.(domain.Snapshot)
		if !ok {
			return fmt.Errorf("store upgrade step returned %T, want domain.Snapshot", runReport.Data)
		}

		report.Results = append(report.Results, runComponentSteps(componentSteps, &upgraded, current, s.strategy, uctx)...)

		next, err := appliedTarget(current, report.Results, s.strategy)
		if err != nil {
			return err
		}
		upgraded.SchemaVersion = next
		report.ToVersion = next
		tx.RestoreSnapshot(upgraded)
		tx.SetSchemaVersion(next)
		return nil
	})
	finish(err)

	s.recordUpgradeAudit(ctx, report, err)
	if err != nil {
		s.logger.Error("store upgrade failed", "run_id", report.RunID, "error", err)
		return UpgradeReport{RunID: report.RunID}, err
	}
	s.logger.Info("store upgrade finished",
		"run_id", report.RunID,
		"from", report.FromVersion,
		"to", report.ToVersion,
		"steps", len(report.Results),
		"ok", report.OK(),
	)
	return report, nil
}

// runComponentSteps applies each applicable component-level step to every
// record in the snapshot. A step that fails on any record is marked failed
// and the snapshot keeps the records it had before that step.
func runComponentSteps(steps []upgrade.Step, snapshot *domain.Snapshot, current string, strategy version.Strategy, uctx upgrade.Context) []upgrade.StepResult {
	results := make([]upgrade.StepResult, 0, len(steps))
	for _, step := range steps {
		result := upgrade.StepResult{Name: step.Name(), TargetVersion: step.TargetVersion()}
		decision := upgrade.ShallUpgrade(step, current, strategy)
		switch {
		case decision.IsErr():
			result.Status = upgrade.StatusUndecided
			result.Err = decision.Err()
		case !decision.Value():
			result.Status = upgrade.StatusSkipped
		default:
			if err := applyStepToRecords(step, snapshot, uctx); err != nil {
				result.Status = upgrade.StatusFailed
				result.Err = err
			} else {
				result.Status = upgrade.StatusApplied
			}
		}
		results = append(results, result)
	}
	return results
}

func applyStepToRecords(step upgrade.Step, snapshot *domain.Snapshot, uctx upgrade.Context) error {
	types := make([]string, 0, len(snapshot.Components))
	for componentType := range snapshot.Components {
		types = append(types, componentType)
	}
	sort.Strings(types)

	staged := make(map[string][]domain.Record, len(types))
	for _, componentType := range types {
		records := snapshot.Components[componentType]
		rewritten := make([]domain.Record, len(records))
		for i, record := range records {
			out := upgrade.RunStep(step, record, uctx)
			if out.IsErr() {
				return out.Err()
			}
			next, ok := out.Value().(domain.Record)
			if !ok {
				return fmt.Errorf("component upgrade step %s returned %T, want domain.Record", step.Name(), out.Value())
			}
			rewritten[i] = next
		}
		staged[componentType] = rewritten
	}
	for componentType, records := range staged {
		snapshot.Components[componentType] = records
	}
	return nil
}

// appliedTarget returns the highest version among current and the targets of
// applied steps.
func appliedTarget(current string, results []upgrade.StepResult, strategy version.Strategy) (string, error) {
	tokens := []string{current}
	for _, result := range results {
		if result.Status == upgrade.StatusApplied {
			tokens = append(tokens, result.TargetVersion)
		}
	}
	return version.Latest(strategy, tokens)
}

func (s *Service) recordUpgradeAudit(ctx context.Context, report UpgradeReport, runErr error) {
	entry := AuditEntry{
		Operation: "upgrade_store",
		RunID:     report.RunID,
		Success:   runErr == nil && report.OK(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if payload, err := domain.NewChangePayloadFromValue(report); err == nil {
		entry.Payload = payload
	}
	s.audit.Record(ctx, entry)
}

// ArchiveSnapshot exports the current model snapshot as JSON through the
// configured archive store. When key is empty a unique export key is
// generated under exports/.
func (s *Service) ArchiveSnapshot(ctx context.Context, key string) (blob.Info, error) {
	ctx, finish := s.observe(ctx, "archive_snapshot")
	if s.archive == nil {
		err := fmt.Errorf("no archive store configured")
		finish(err)
		return blob.Info{}, err
	}

	var snapshot domain.Snapshot
	if err := s.store.View(ctx, func(view domain.ModelView) error {
		snapshot = view.Snapshot()
		return nil
	}); err != nil {
		finish(err)
		return blob.Info{}, err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		finish(err)
		return blob.Info{}, err
	}
	if key == "" {
		key = fmt.Sprintf("exports/snapshot-%s-%s.json", snapshot.SchemaVersion, uuid.NewString())
	}
	info, err := s.archive.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"schema_version": snapshot.SchemaVersion},
	})
	finish(err)
	if err != nil {
		s.logger.Error("snapshot archive failed", "key", key, "error", err)
		return blob.Info{}, err
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: "archive_snapshot",
		Success:   true,
	})
	s.logger.Info("snapshot archived", "key", info.Key, "bytes", info.Size)
	return info, nil
}
