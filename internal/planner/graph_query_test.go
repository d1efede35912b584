package planner

import (
	"reflect"
	"testing"

	"github.com/masterchef/catalogcheck/internal/config"
)

// upgradePlan mirrors an OS upgrade catalog: the script is ordered before the
// cron job and notifies the reboot, both declared on the script itself.
func upgradePlan() *Plan {
	return &Plan{Steps: []Step{
		{Resource: config.Resource{ID: "utils", Type: "package"}},
		{Resource: config.Resource{ID: "upgrade", Type: "exec", Require: []string{"utils"}}},
		{Resource: config.Resource{ID: "script", Type: "file", Before: []string{"cron"}, Notify: []string{"reboot"}}},
		{Resource: config.Resource{ID: "cron", Type: "cron"}},
		{Resource: config.Resource{ID: "reboot", Type: "reboot", Subscribe: []string{"upgrade"}}},
	}}
}

func TestQueryGraphFollowsSourceDeclaredEdges(t *testing.T) {
	plan := upgradePlan()

	down := QueryGraph(plan, GraphQueryRequest{ResourceID: "script", Direction: "downstream"})
	if want := []string{"cron", "reboot"}; !reflect.DeepEqual(down.Downstream, want) {
		t.Fatalf("downstream of script = %v, want %v", down.Downstream, want)
	}
	if len(down.Upstream) != 0 {
		t.Fatalf("downstream query should not fill upstream: %+v", down)
	}

	up := QueryGraph(plan, GraphQueryRequest{ResourceID: "reboot", Direction: "upstream"})
	if want := []string{"script", "upgrade", "utils"}; !reflect.DeepEqual(up.Upstream, want) {
		t.Fatalf("upstream of reboot = %v, want %v", up.Upstream, want)
	}

	both := QueryGraph(plan, GraphQueryRequest{ResourceID: "cron"})
	if want := []string{"script"}; !reflect.DeepEqual(both.Upstream, want) || len(both.Downstream) != 0 {
		t.Fatalf("unexpected query for cron: %+v", both)
	}
	if !reflect.DeepEqual(both.Impacted, []string{"script"}) {
		t.Fatalf("impacted = %v", both.Impacted)
	}
}

func TestQueryGraphEdgeDeclaredOnBothEnds(t *testing.T) {
	plan := &Plan{Steps: []Step{
		{Resource: config.Resource{ID: "a", Before: []string{"b"}}},
		{Resource: config.Resource{ID: "b", Require: []string{"a"}}},
		{Resource: config.Resource{ID: "c", Subscribe: []string{"b"}}},
		{Resource: config.Resource{ID: "b2", Notify: []string{"c"}, DependsOn: []string{"a"}}},
	}}
	up, down := buildDependencyMaps(plan)
	if want := []string{"a"}; !reflect.DeepEqual(up["b"], want) {
		t.Fatalf("upstream map for b = %v, want %v", up["b"], want)
	}
	if want := []string{"b", "b2"}; !reflect.DeepEqual(down["a"], want) {
		t.Fatalf("downstream map for a = %v, want %v", down["a"], want)
	}

	res := QueryGraph(plan, GraphQueryRequest{ResourceID: "a", Direction: "downstream"})
	if want := []string{"b", "b2", "c"}; !reflect.DeepEqual(res.Downstream, want) {
		t.Fatalf("downstream of a = %v, want %v", res.Downstream, want)
	}
	res = QueryGraph(plan, GraphQueryRequest{ResourceID: "c", Direction: "upstream"})
	if want := []string{"a", "b", "b2"}; !reflect.DeepEqual(res.Upstream, want) {
		t.Fatalf("upstream of c = %v, want %v", res.Upstream, want)
	}
}

func TestQueryGraphDepthAndDirection(t *testing.T) {
	plan := upgradePlan()
	res := QueryGraph(plan, GraphQueryRequest{ResourceID: "utils", Direction: "downstream", Depth: 1})
	if want := []string{"upgrade"}; !reflect.DeepEqual(res.Downstream, want) {
		t.Fatalf("depth-limited downstream = %v, want %v", res.Downstream, want)
	}
	res = QueryGraph(plan, GraphQueryRequest{ResourceID: "utils", Direction: "sideways"})
	if want := []string{"reboot", "upgrade"}; !reflect.DeepEqual(res.Downstream, want) {
		t.Fatalf("unknown direction should query both ways, got %+v", res)
	}
	if got := QueryGraph(nil, GraphQueryRequest{ResourceID: "x"}); got.ResourceID != "x" || got.Impacted != nil {
		t.Fatalf("nil plan query = %+v", got)
	}
}
