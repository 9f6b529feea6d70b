package systems

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/vkcore/engine/core"
	"github.com/spaghettifunk/vkcore/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

var asyncQueueRoles = []metadata.QueueRole{
	metadata.QueueRoleAsyncTransfer,
	metadata.QueueRoleAsyncCompute,
}

/**
 * @brief Assigns queue roles to queue families. Selection is greedy and
 * deterministic: the same families and roles always give the same map.
 */
type QueueSelector struct {
	/**
	 * @brief Order in which main roles claim families. Main roles missing from
	 * the list are appended in default order. Async roles always come last.
	 */
	Priority []metadata.QueueRole
}

func NewQueueSelector(priority []metadata.QueueRole) (*QueueSelector, error) {
	qs := &QueueSelector{}
	order, err := normalizePriority(priority)
	if err != nil {
		return nil, err
	}
	qs.Priority = order
	return qs, nil
}

type queueRequest struct {
	role     metadata.QueueRole
	required bool
}

type selectionState struct {
	families []metadata.QueueFamilyProperties
	// families picked so far, in pick order
	selected []uint32
	// next queue index per family
	next   map[uint32]uint32
	result metadata.QueueRoleMap
}

// Select assigns every required and optional role. A required role no family
// can serve fails with *core.NoSuitableQueueFamilyError; an unservable
// optional role is left out of the map.
func (qs *QueueSelector) Select(families []metadata.QueueFamilyProperties, required, optional []metadata.QueueRole) (metadata.QueueRoleMap, error) {
	priority, err := normalizePriority(qs.Priority)
	if err != nil {
		return nil, err
	}

	wanted := map[metadata.QueueRole]bool{}
	for _, r := range optional {
		if !r.IsValid() {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, r)
		}
		wanted[r] = false
	}
	for _, r := range required {
		if !r.IsValid() {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, r)
		}
		wanted[r] = true
	}

	requests := []queueRequest{}
	for _, r := range append(slices.Clone(priority), asyncQueueRoles...) {
		if req, ok := wanted[r]; ok {
			requests = append(requests, queueRequest{role: r, required: req})
		}
	}

	state := &selectionState{
		families: families,
		next:     map[uint32]uint32{},
		result:   metadata.QueueRoleMap{},
	}
	for _, req := range requests {
		var family uint32
		var found bool
		if req.role.IsAsync() {
			family, found = state.leastShared(req.role)
		} else {
			family, found = state.reuseOrFirst(req.role)
		}
		if !found {
			if req.required {
				core.LogError("No queue family supports the required role '%s'.", req.role)
				return nil, &core.NoSuitableQueueFamilyError{Role: req.role}
			}
			core.LogWarn("No queue family supports the optional role '%s', skipping.", req.role)
			continue
		}
		assignment := state.assign(family)
		state.result[req.role] = assignment
		core.LogDebug("Queue role '%s' assigned to %s.", req.role, assignment)
	}
	return state.result, nil
}

func (s *selectionState) supports(family uint32, role metadata.QueueRole) bool {
	f := s.families[family]
	return f.QueueCount > 0 && f.Flags.Effective().Has(role.RequiredFlags())
}

// reuseOrFirst prefers a family a higher-priority role already uses.
func (s *selectionState) reuseOrFirst(role metadata.QueueRole) (uint32, bool) {
	for _, f := range s.selected {
		if s.supports(f, role) {
			return f, true
		}
	}
	for i := range s.families {
		if s.supports(uint32(i), role) {
			return uint32(i), true
		}
	}
	return 0, false
}

// leastShared picks the family with the fewest capabilities beyond the ones
// the role needs. A dedicated family scores zero.
func (s *selectionState) leastShared(role metadata.QueueRole) (uint32, bool) {
	need := role.RequiredFlags().Effective()
	best, bestScore := uint32(0), math.MaxInt
	for i := range s.families {
		if !s.supports(uint32(i), role) {
			continue
		}
		score := (s.families[i].Flags.Effective() &^ need).Count()
		if score < bestScore {
			best, bestScore = uint32(i), score
		}
	}
	return best, bestScore != math.MaxInt
}

func (s *selectionState) assign(family uint32) metadata.QueueAssignment {
	if !slices.Contains(s.selected, family) {
		s.selected = append(s.selected, family)
	}
	index := s.next[family] % s.families[family].QueueCount
	s.next[family]++
	return metadata.QueueAssignment{FamilyIndex: family, QueueIndex: index}
}

func normalizePriority(priority []metadata.QueueRole) ([]metadata.QueueRole, error) {
	order := make([]metadata.QueueRole, 0, len(metadata.DefaultQueuePriority))
	for _, r := range priority {
		if !r.IsValid() || r.IsAsync() {
			return nil, fmt.Errorf("%w: queue priority may only list main roles, got %s", core.ErrInvalidConfig, r)
		}
		if slices.Contains(order, r) {
			return nil, fmt.Errorf("%w: queue role %s listed twice in priority", core.ErrInvalidConfig, r)
		}
		order = append(order, r)
	}
	for _, r := range metadata.DefaultQueuePriority {
		if !slices.Contains(order, r) {
			order = append(order, r)
		}
	}
	return order, nil
}
