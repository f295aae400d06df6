package fanout

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interop/jobgather/internal/domain/model"
)

func items(keys ...string) []model.WorkItem {
	out := make([]model.WorkItem, len(keys))
	for i, k := range keys {
		out[i] = model.WorkItem{Key: k}
	}
	return out
}

// byPrefix addresses "a1" to gateway "a", "b7" to gateway "b", and "" to nothing.
func byPrefix(_ int, item model.WorkItem) (model.Target, error) {
	if item.Key == "" {
		return model.Target{}, nil
	}
	id := item.Key[:1]
	if id == "x" {
		return model.Target{ID: id}, nil
	}
	return model.Target{ID: id, Endpoint: "https://" + id + ".example/xca"}, nil
}

func fixed(n int) CapacityFunc {
	return func(string) int { return n }
}

func keysOf(r model.FanoutRequest) []string {
	out := make([]string, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Key
	}
	return out
}

func TestBuildPlan_GroupsAndChunks(t *testing.T) {
	plan, err := BuildPlan("req", items("a1", "b1", "a2", "a3", "b2", "a4", "a5"), byPrefix, fixed(2))
	require.NoError(t, err)
	require.Len(t, plan.Requests, 4)

	assert.Equal(t, []string{"a1", "a2"}, keysOf(plan.Requests[0]))
	assert.Equal(t, []string{"a3", "a4"}, keysOf(plan.Requests[1]))
	assert.Equal(t, []string{"a5"}, keysOf(plan.Requests[2]))
	assert.Equal(t, []string{"b1", "b2"}, keysOf(plan.Requests[3]))

	for i, r := range plan.Requests {
		assert.Equal(t, "req", r.ParentRequestID)
		assert.Equal(t, fmt.Sprintf("req_%d", i), r.RequestChunkID)
	}
	assert.Equal(t, []string{"a", "b"}, plan.Targets())
	assert.Equal(t, 7, plan.ItemCount())
	assert.Empty(t, plan.Invalid)
}

func TestBuildPlan_ReportsInvalidTargets(t *testing.T) {
	resolverErr := errors.New("no home community id")
	targetOf := func(i int, item model.WorkItem) (model.Target, error) {
		if item.Key == "boom" {
			return model.Target{}, resolverErr
		}
		return byPrefix(i, item)
	}

	plan, err := BuildPlan("req", items("a1", "", "x1", "boom", "a2"), targetOf, fixed(10))
	require.NoError(t, err)
	require.Len(t, plan.Requests, 1)
	assert.Equal(t, []string{"a1", "a2"}, keysOf(plan.Requests[0]))

	require.Len(t, plan.Invalid, 3)
	assert.Equal(t, 1, plan.Invalid[0].Index)
	assert.Equal(t, ReasonMissingTargetID, plan.Invalid[0].Reason)
	assert.Equal(t, ReasonMissingEndpoint, plan.Invalid[1].Reason)
	assert.Equal(t, "boom", plan.Invalid[2].Item.Key)
	assert.Equal(t, resolverErr.Error(), plan.Invalid[2].Reason)
}

func TestBuildPlan_NoEmptyChunks(t *testing.T) {
	plan, err := BuildPlan("req", nil, byPrefix, fixed(3))
	require.NoError(t, err)
	assert.Empty(t, plan.Requests)

	plan, err = BuildPlan("req", items("", ""), byPrefix, fixed(3))
	require.NoError(t, err)
	assert.Empty(t, plan.Requests)
	assert.Len(t, plan.Invalid, 2)
}

func TestBuildPlan_Errors(t *testing.T) {
	_, err := BuildPlan("", items("a1"), byPrefix, fixed(1))
	require.ErrorIs(t, err, ErrMissingParent)

	_, err = BuildPlan("req", items("a1"), byPrefix, fixed(0))
	require.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = BuildPlan("req", items("a1"), nil, fixed(1))
	require.Error(t, err)
}

func TestBuildPlan_StaticTarget(t *testing.T) {
	target := model.Target{ID: "2.16.840.1.113883.3.9621", Endpoint: "https://gw.example/xcpd"}
	plan, err := BuildPlan("req", items("p1", "p2", "p3"), StaticTarget(target), fixed(2))
	require.NoError(t, err)
	require.Len(t, plan.Requests, 2)
	assert.Equal(t, target, plan.Requests[1].Target)
}

func TestBuildPlan_CapacityInvariant(t *testing.T) {
	policy, err := NewCapacityPolicy(4, map[string]int{"a": 1, "b": 3})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))
	letters := []string{"a", "b", "c", "x", ""}

	for round := range 200 {
		n := rng.IntN(40)
		in := make([]model.WorkItem, n)
		want := map[string]int{}
		for i := range in {
			l := letters[rng.IntN(len(letters))]
			key := ""
			if l != "" {
				key = fmt.Sprintf("%s%d", l, i)
			}
			in[i] = model.WorkItem{Key: key}
			if l != "" && l != "x" {
				want[l]++
			}
		}

		plan, err := BuildPlan(fmt.Sprintf("r%d", round), in, byPrefix, policy.CapacityOf)
		require.NoError(t, err)

		got := map[string]int{}
		for _, r := range plan.Requests {
			require.NotEmpty(t, r.Items)
			require.LessOrEqual(t, len(r.Items), policy.CapacityOf(r.Target.ID))
			got[r.Target.ID] += len(r.Items)
		}
		assert.Equal(t, want, got)
		assert.Equal(t, n, plan.ItemCount()+len(plan.Invalid))
	}
}
