package workflow

import (
	"testing"

	"OpsDiagnosis/internal/models"
)

func TestRouteAfterSymptomCollection_HasEnoughInfo(t *testing.T) {
	sess := models.NewSession("s1")
	sess.ConfirmedSymptoms = []string{"cpu_high"}
	sess.CollectedInfo = map[string]interface{}{"error_messages": []string{"x"}}

	if got := RouteAfterSymptomCollection(sess); got != RouteHasEnoughInfo {
		t.Errorf("expected has_enough_info, got %s", got)
	}
}

func TestRouteAfterSymptomCollection_NeedsInfo(t *testing.T) {
	sess := models.NewSession("s2")

	if got := RouteAfterSymptomCollection(sess); got != RouteNeedsInfo {
		t.Errorf("expected needs_info, got %s", got)
	}

	// 信息不足时，追问的字段必须是匹配模板的第一个缺失项。
	missing := MissingFields(sess.ProblemType, sess.CollectedInfo)
	if len(missing) == 0 {
		t.Fatal("expected missing fields for an empty session")
	}
	if missing[0] != RequiredFields("general")[0] {
		t.Errorf("expected first missing field %q, got %q", RequiredFields("general")[0], missing[0])
	}
}

func TestRouteAfterSymptomCollection_ErrorMessagesFromJSON(t *testing.T) {
	// JSON 反序列化后的会话中 error_messages 是 []interface{} 形态。
	sess := models.NewSession("s3")
	sess.ConfirmedSymptoms = []string{"内存不足"}
	sess.CollectedInfo = map[string]interface{}{"error_messages": []interface{}{"OOM"}}

	if got := RouteAfterSymptomCollection(sess); got != RouteHasEnoughInfo {
		t.Errorf("expected has_enough_info, got %s", got)
	}
}

func TestRouteAfterSymptomCollection_Idempotent(t *testing.T) {
	sess := models.NewSession("s4")
	sess.ConfirmedSymptoms = []string{"cpu_high"}
	sess.CollectedInfo = map[string]interface{}{"error_messages": []string{"x"}}

	first := RouteAfterSymptomCollection(sess)
	second := RouteAfterSymptomCollection(sess)
	if first != second {
		t.Errorf("routing is not idempotent: %s vs %s", first, second)
	}
}

func TestRouteAfterConfirmation(t *testing.T) {
	cases := []struct {
		input string
		want  ConfirmationRoute
	}{
		{"thanks, resolved", RouteSolved},
		{"THANKS A LOT", RouteSolved},
		{"谢谢，问题解决了", RouteSolved},
		{"still broken", RouteNeedsMoreHelp},
		{"还不行，服务还是很慢", RouteNeedsMoreHelp},
		{"我的磁盘空间爆满", RouteNewProblem},
		{"something completely different", RouteNewProblem},
		// 同时命中两个集合时，结束关键词优先。
		{"没有问题了，谢谢", RouteSolved},
	}

	for _, tc := range cases {
		if got := RouteAfterConfirmation(tc.input); got != tc.want {
			t.Errorf("RouteAfterConfirmation(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestRequiredFieldsFallsBackToGeneral(t *testing.T) {
	if got := RequiredFields("unknown"); got[0] != "错误信息" {
		t.Errorf("expected general template for unknown problem type, got %v", got)
	}
	if got := RequiredFields("cpu_high"); got[0] != "发生时间" {
		t.Errorf("expected cpu template first field 发生时间, got %v", got)
	}
}
