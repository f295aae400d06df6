package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/interop/jobgather/internal/domain/model"
)

type searcher interface {
	Search(data any) (any, error)
}

// JMESPathTargetResolver extracts the target identity embedded in each item's JSON payload.
type JMESPathTargetResolver struct {
	id       searcher
	endpoint searcher
	// Endpoints is consulted when the endpoint expression is empty or yields nothing,
	// e.g. a gateway directory keyed by home community id.
	Endpoints map[string]string
}

// NewJMESPathTargetResolver compiles the id and endpoint expressions. endpointExpr may be empty.
func NewJMESPathTargetResolver(idExpr, endpointExpr string, endpoints map[string]string) (*JMESPathTargetResolver, error) {
	if strings.TrimSpace(idExpr) == "" {
		return nil, errors.New("target id expression is required")
	}
	id, err := jmespath.Compile(idExpr)
	if err != nil {
		return nil, fmt.Errorf("compile target id expression: %w", err)
	}
	r := &JMESPathTargetResolver{id: id, Endpoints: endpoints}
	if strings.TrimSpace(endpointExpr) != "" {
		ep, err := jmespath.Compile(endpointExpr)
		if err != nil {
			return nil, fmt.Errorf("compile target endpoint expression: %w", err)
		}
		r.endpoint = ep
	}
	return r, nil
}

// Resolve implements TargetFunc.
func (r *JMESPathTargetResolver) Resolve(_ int, item model.WorkItem) (model.Target, error) {
	if len(item.Payload) == 0 {
		return model.Target{}, errors.New("item payload is empty")
	}
	var doc any
	if err := json.Unmarshal(item.Payload, &doc); err != nil {
		return model.Target{}, fmt.Errorf("decode item payload: %w", err)
	}

	id, err := searchString(r.id, doc)
	if err != nil {
		return model.Target{}, err
	}
	t := model.Target{ID: strings.TrimPrefix(id, "urn:oid:")}
	if r.endpoint != nil {
		if t.Endpoint, err = searchString(r.endpoint, doc); err != nil {
			return model.Target{}, err
		}
	}
	if t.Endpoint == "" {
		t.Endpoint = r.Endpoints[t.ID]
	}
	return t, nil
}

func searchString(expr searcher, doc any) (string, error) {
	v, err := expr.Search(doc)
	if err != nil {
		return "", fmt.Errorf("evaluate expression: %w", err)
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(s), nil
	case float64:
		return fmt.Sprintf("%v", s), nil
	default:
		return "", fmt.Errorf("expression yielded %T, want string", v)
	}
}
