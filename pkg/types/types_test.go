package types

import "testing"

func TestConsistencyThreshold(t *testing.T) {
	tests := []struct {
		level ConsistencyLevel
		rf    int
		want  int
	}{
		{ConsistencyOne, 1, 1},
		{ConsistencyOne, 3, 1},
		{ConsistencyQuorum, 1, 1},
		{ConsistencyQuorum, 3, 2},
		{ConsistencyQuorum, 4, 3},
		{ConsistencyQuorum, 5, 3},
		{ConsistencyAll, 3, 3},
	}
	for _, tt := range tests {
		if got := tt.level.Threshold(tt.rf); got != tt.want {
			t.Errorf("%s.Threshold(%d) = %d, want %d", tt.level, tt.rf, got, tt.want)
		}
	}
}

func TestParseDataType(t *testing.T) {
	if dt, ok := ParseDataType("varchar"); !ok || dt != TypeText {
		t.Errorf("varchar should alias text, got %v %v", dt, ok)
	}
	if _, ok := ParseDataType("blob"); ok {
		t.Error("blob should not parse")
	}
}

func TestNodeStatusString(t *testing.T) {
	statuses := map[NodeStatus]string{
		StatusBootstrap: "bootstrap",
		StatusNormal:    "normal",
		StatusLeaving:   "leaving",
		StatusRemoving:  "removing",
		StatusDead:      "dead",
	}
	for status, want := range statuses {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
