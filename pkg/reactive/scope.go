package reactive

import reactorerrors "github.com/vango-dev/reactor/internal/errors"

// Scope groups effects and cleanup callbacks so they can be disposed
// together. Scopes form a hierarchy: a scope created while another is
// active becomes its child and is stopped with it, unless it is detached.
type Scope struct {
	rt *Runtime
	id uint64

	// parent is the scope that was active at creation, nil when detached.
	// Non-owning.
	parent *Scope

	// index is this scope's position in parent.children.
	index int

	// children are nested, non-detached scopes.
	children []*Scope

	// effects are owned by this scope.
	effects []*Effect

	// cleanups are registered via OnCleanup or OnScopeDispose.
	cleanups []func()

	active   bool
	detached bool
}

// NewScope creates a scope. Unless detached, the scope is linked as a child
// of the currently active scope.
func (rt *Runtime) NewScope(detached bool) *Scope {
	s := &Scope{
		rt:       rt,
		id:       nextID(),
		active:   true,
		detached: detached,
	}
	if !detached && rt.activeScope != nil {
		p := rt.activeScope
		s.parent = p
		s.index = len(p.children)
		p.children = append(p.children, s)
	}
	return s
}

// CurrentScope returns the ambient scope, or nil.
func (rt *Runtime) CurrentScope() *Scope {
	return rt.activeScope
}

// ID returns the unique identifier of the scope.
func (s *Scope) ID() uint64 {
	return s.id
}

// Parent returns the scope that was active when s was created, or nil for
// a detached scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Active reports whether the scope has not been stopped.
func (s *Scope) Active() bool {
	return s.active
}

// Effects returns the number of effects currently owned by the scope.
func (s *Scope) Effects() int {
	return len(s.effects)
}

// Run makes s the ambient scope while fn executes, so effects and cleanups
// created by fn are collected by s. The previous scope is restored even if
// fn panics. Running an inactive scope warns and does nothing.
func (s *Scope) Run(fn func()) {
	if !s.active {
		s.rt.warn(reactorerrors.CodeInactiveScope, "scope", s.id)
		return
	}
	rt := s.rt
	prev := rt.activeScope
	rt.activeScope = s
	defer func() {
		rt.activeScope = prev
	}()
	fn()
}

// OnCleanup registers fn to run when the scope stops. On a scope that has
// already stopped, fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if !s.active {
		s.rt.callWithErrorHandling(LabelScopeCleanup, fn)
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

// Stop stops every owned effect, runs the registered cleanups in
// registration order, stops child scopes, and unlinks s from its parent.
// Stop is idempotent.
func (s *Scope) Stop() {
	s.stop(false)
}

func (s *Scope) stop(fromParent bool) {
	if !s.active {
		return
	}
	s.active = false

	effects := s.effects
	s.effects = nil
	for _, e := range effects {
		e.Stop()
	}

	cleanups := s.cleanups
	s.cleanups = nil
	for _, fn := range cleanups {
		s.rt.callWithErrorHandling(LabelScopeCleanup, fn)
	}

	children := s.children
	s.children = nil
	for _, child := range children {
		child.stop(true)
	}

	if !s.detached && s.parent != nil && !fromParent {
		s.parent.removeChild(s)
	}
	s.parent = nil
}

// removeChild unlinks child by moving the last child into its slot.
func (s *Scope) removeChild(child *Scope) {
	n := len(s.children)
	if n == 0 || child.index >= n || s.children[child.index] != child {
		return
	}
	last := s.children[n-1]
	s.children[child.index] = last
	last.index = child.index
	s.children = s.children[:n-1]
}

// removeEffect drops e from the scope without stopping it.
func (s *Scope) removeEffect(e *Effect) {
	for i, owned := range s.effects {
		if owned == e {
			s.effects = append(s.effects[:i], s.effects[i+1:]...)
			return
		}
	}
}

// recordEffectScope attaches e to scope, or to the ambient scope when scope
// is nil.
func (rt *Runtime) recordEffectScope(e *Effect, scope *Scope) *Scope {
	if scope == nil {
		scope = rt.activeScope
	}
	if scope == nil || !scope.active {
		return nil
	}
	scope.effects = append(scope.effects, e)
	return scope
}

// OnScopeDispose registers fn on the ambient scope. Without an active scope
// it warns and fn is never called.
func (rt *Runtime) OnScopeDispose(fn func()) {
	if rt.activeScope == nil {
		rt.warn(reactorerrors.CodeNoActiveScope)
		return
	}
	rt.activeScope.OnCleanup(fn)
}
