// Package fanout splits a logical request into bounded per-target requests.
package fanout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/interop/jobgather/internal/domain/model"
)

var (
	// ErrInvalidCapacity indicates a capacity rule returned a non-positive size.
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrMissingParent indicates the plan has no parent request id to correlate chunks.
	ErrMissingParent = errors.New("parent request id is required")
)

// Reasons attached to InvalidItem.
const (
	ReasonMissingTargetID = "missing target id"
	ReasonMissingEndpoint = "missing target endpoint"
)

// TargetFunc resolves the target of one item. Returning an error marks the item invalid.
type TargetFunc func(index int, item model.WorkItem) (model.Target, error)

// CapacityFunc returns the maximum number of items per request for a target.
type CapacityFunc func(targetID string) int

// Plan is the output of BuildPlan.
type Plan struct {
	Requests []model.FanoutRequest
	Invalid  []model.InvalidItem
}

// ItemCount returns the number of items scheduled across all requests.
func (p Plan) ItemCount() int {
	n := 0
	for _, r := range p.Requests {
		n += len(r.Items)
	}
	return n
}

// Targets returns the distinct target ids in emission order.
func (p Plan) Targets() []string {
	seen := make(map[string]struct{}, len(p.Requests))
	var out []string
	for _, r := range p.Requests {
		if _, ok := seen[r.Target.ID]; ok {
			continue
		}
		seen[r.Target.ID] = struct{}{}
		out = append(out, r.Target.ID)
	}
	return out
}

type group struct {
	target model.Target
	items  []model.WorkItem
}

// BuildPlan groups items by target and splits each group into chunks no larger than the
// target's capacity. Items keep their input order inside a chunk and groups are emitted in
// the order their first item was encountered. Items without a usable target are returned
// in Plan.Invalid instead of being dropped.
func BuildPlan(parentRequestID string, items []model.WorkItem, targetOf TargetFunc, capacityOf CapacityFunc) (Plan, error) {
	if strings.TrimSpace(parentRequestID) == "" {
		return Plan{}, ErrMissingParent
	}
	if targetOf == nil || capacityOf == nil {
		return Plan{}, errors.New("target and capacity functions are required")
	}

	var (
		plan   Plan
		order  []string
		groups = make(map[string]*group)
	)

	for i, item := range items {
		target, err := targetOf(i, item)
		if err == nil {
			err = validateTarget(target)
		}
		if err != nil {
			plan.Invalid = append(plan.Invalid, model.InvalidItem{Item: item, Index: i, Reason: err.Error()})
			continue
		}
		target.ID = strings.TrimSpace(target.ID)
		g, ok := groups[target.ID]
		if !ok {
			g = &group{target: target}
			groups[target.ID] = g
			order = append(order, target.ID)
		}
		g.items = append(g.items, item)
	}

	chunkSeq := 0
	for _, id := range order {
		g := groups[id]
		size := capacityOf(id)
		if size <= 0 {
			return Plan{}, fmt.Errorf("target %s: %w (got %d)", id, ErrInvalidCapacity, size)
		}
		for start := 0; start < len(g.items); start += size {
			end := min(start+size, len(g.items))
			chunk := make([]model.WorkItem, end-start)
			copy(chunk, g.items[start:end])
			plan.Requests = append(plan.Requests, model.FanoutRequest{
				ParentRequestID: parentRequestID,
				RequestChunkID:  fmt.Sprintf("%s_%d", parentRequestID, chunkSeq),
				Target:          g.target,
				Items:           chunk,
			})
			chunkSeq++
		}
	}
	return plan, nil
}

func validateTarget(t model.Target) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New(ReasonMissingTargetID)
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New(ReasonMissingEndpoint)
	}
	return nil
}

// StaticTarget returns a TargetFunc that addresses every item to the same target,
// for requests where the target is supplied once per logical request.
func StaticTarget(t model.Target) TargetFunc {
	return func(int, model.WorkItem) (model.Target, error) {
		return t, nil
	}
}
