package flowengine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProvider is an in-process [FlowProvider] for tests and single-node
// embedders. Every write publishes a mutation event to the bound
// notifier, synchronously, before the write call returns — the same
// invalidate-before-acknowledge contract a database-backed provider must
// honor.
type MemoryProvider struct {
	mu       sync.RWMutex
	flows    map[uuid.UUID]Flow
	slugs    map[string]uuid.UUID
	stages   map[uuid.UUID]Stage
	bindings map[uuid.UUID]StageBinding

	notify func(ctx context.Context, m Mutation)
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		flows:    make(map[uuid.UUID]Flow),
		slugs:    make(map[string]uuid.UUID),
		stages:   make(map[uuid.UUID]Stage),
		bindings: make(map[uuid.UUID]StageBinding),
	}
}

// BindNotifier sets the mutation notifier unless one is already bound.
// [Builder.Build] binds the engine's own NotifyMutation automatically.
func (p *MemoryProvider) BindNotifier(fn func(ctx context.Context, m Mutation)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notify == nil {
		p.notify = fn
	}
}

func (p *MemoryProvider) publish(ctx context.Context, m Mutation) {
	p.mu.RLock()
	fn := p.notify
	p.mu.RUnlock()
	if fn != nil {
		fn(ctx, m)
	}
}

// PutFlow creates or updates a flow. Updates bump the flow version when
// the caller did not advance it.
func (p *MemoryProvider) PutFlow(ctx context.Context, f Flow) Flow {
	p.mu.Lock()
	old, existed := p.flows[f.ID]
	if existed {
		if f.Version <= old.Version {
			f.Version = old.Version + 1
		}
		if old.Slug != f.Slug {
			delete(p.slugs, old.Slug)
		}
	} else if f.Version == 0 {
		f.Version = 1
	}
	p.flows[f.ID] = f
	p.slugs[f.Slug] = f.ID
	p.mu.Unlock()

	op := OpUpdate
	if !existed {
		op = OpCreate
	}
	p.publish(ctx, Mutation{Kind: KindFlow, Op: op, FlowID: f.ID})
	return f
}

// DeleteFlow removes a flow. Bindings of the flow stay behind as
// unreachable entries; deleting them is the caller's cleanup.
func (p *MemoryProvider) DeleteFlow(ctx context.Context, id uuid.UUID) {
	p.mu.Lock()
	f, ok := p.flows[id]
	if ok {
		delete(p.flows, id)
		delete(p.slugs, f.Slug)
	}
	p.mu.Unlock()

	if ok {
		p.publish(ctx, Mutation{Kind: KindFlow, Op: OpDelete, FlowID: id})
	}
}

// PutStage creates or updates a stage.
func (p *MemoryProvider) PutStage(ctx context.Context, s Stage) {
	p.mu.Lock()
	_, existed := p.stages[s.ID]
	p.stages[s.ID] = s
	p.mu.Unlock()

	op := OpUpdate
	if !existed {
		op = OpCreate
	}
	p.publish(ctx, Mutation{Kind: KindStage, Op: op, StageID: s.ID})
}

// DeleteStage removes a stage. Bindings referencing it become dangling
// and are skipped by the resolver with a warning.
func (p *MemoryProvider) DeleteStage(ctx context.Context, id uuid.UUID) {
	p.mu.Lock()
	_, ok := p.stages[id]
	delete(p.stages, id)
	p.mu.Unlock()

	if ok {
		p.publish(ctx, Mutation{Kind: KindStage, Op: OpDelete, StageID: id})
	}
}

// PutBinding creates or updates a stage binding. A zero ID gets a fresh
// UUID; a zero CreatedAt is stamped now, which also makes it the stable
// secondary ordering key.
func (p *MemoryProvider) PutBinding(ctx context.Context, b StageBinding) StageBinding {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	p.mu.Lock()
	_, existed := p.bindings[b.ID]
	p.bindings[b.ID] = b
	p.mu.Unlock()

	op := OpUpdate
	if !existed {
		op = OpCreate
	}
	p.publish(ctx, Mutation{
		Kind:      KindStageBinding,
		Op:        op,
		FlowID:    b.FlowID,
		StageID:   b.StageID,
		BindingID: b.ID,
	})
	return b
}

// DeleteBinding removes a stage binding.
func (p *MemoryProvider) DeleteBinding(ctx context.Context, id uuid.UUID) {
	p.mu.Lock()
	b, ok := p.bindings[id]
	delete(p.bindings, id)
	p.mu.Unlock()

	if ok {
		p.publish(ctx, Mutation{
			Kind:      KindStageBinding,
			Op:        OpDelete,
			FlowID:    b.FlowID,
			StageID:   b.StageID,
			BindingID: id,
		})
	}
}

// GetFlowBySlug implements [FlowProvider].
func (p *MemoryProvider) GetFlowBySlug(_ context.Context, slug string) (*Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.slugs[slug]
	if !ok {
		return nil, ErrFlowNotFound
	}
	f := p.flows[id]
	return &f, nil
}

// GetFlow implements [FlowProvider].
func (p *MemoryProvider) GetFlow(_ context.Context, id uuid.UUID) (*Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	f, ok := p.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	return &f, nil
}

// GetStage implements [FlowProvider].
func (p *MemoryProvider) GetStage(_ context.Context, id uuid.UUID) (*Stage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.stages[id]
	if !ok {
		return nil, ErrStageNotFound
	}
	return &s, nil
}

// ListBindings implements [FlowProvider].
func (p *MemoryProvider) ListBindings(_ context.Context, flowID uuid.UUID) ([]StageBinding, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []StageBinding
	for _, b := range p.bindings {
		if b.FlowID == flowID {
			out = append(out, cloneBinding(b))
		}
	}
	return out, nil
}

// ListBindingsForStage implements [FlowProvider].
func (p *MemoryProvider) ListBindingsForStage(_ context.Context, stageID uuid.UUID) ([]StageBinding, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []StageBinding
	for _, b := range p.bindings {
		if b.StageID == stageID {
			out = append(out, cloneBinding(b))
		}
	}
	return out, nil
}

func cloneBinding(b StageBinding) StageBinding {
	out := b
	out.PolicyBindings = append([]PolicyBinding(nil), b.PolicyBindings...)
	return out
}
