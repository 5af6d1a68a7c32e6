package review

import "testing"

func TestDetectPhase(t *testing.T) {
	cases := []struct {
		name    string
		history []Turn
		want    Phase
	}{
		{"empty history", nil, PhaseClarify},
		{
			"unanswered questions",
			[]Turn{{Role: "assistant", Content: "请先回答以下问题。【问题确认】1. 电源电压是多少？"}},
			PhaseClarify,
		},
		{
			"answered questions",
			[]Turn{
				{Role: "assistant", Content: "【问题确认】1. 电源电压是多少？"},
				{Role: "user", Content: "5V"},
			},
			PhaseReview,
		},
		{
			"english marker answered",
			[]Turn{
				{Role: "assistant", Content: "[Clarifying Questions]\n1. What is the supply voltage?"},
				{Role: "user", Content: "12V"},
			},
			PhaseReview,
		},
		{
			"new questions reset review state",
			[]Turn{
				{Role: "assistant", Content: "【问题确认】1. 电源电压？"},
				{Role: "user", Content: "5V"},
				{Role: "assistant", Content: "这是评审报告……"},
				{Role: "user", Content: "请换个思路再看一遍"},
				{Role: "assistant", Content: "【问题确认】1. 负载电流范围？"},
			},
			PhaseClarify,
		},
		{
			"blank user reply does not answer",
			[]Turn{
				{Role: "assistant", Content: "【问题确认】1. 电源电压？"},
				{Role: "user", Content: "   \n"},
			},
			PhaseClarify,
		},
		{
			"marker in user turn is ignored",
			[]Turn{
				{Role: "user", Content: "我想要一个带【问题确认】环节的评审"},
			},
			PhaseClarify,
		},
		{
			"assistant reply without marker keeps review",
			[]Turn{
				{Role: "assistant", Content: "[Clarifying Questions] 1. Load?"},
				{Role: "user", Content: "2A"},
				{Role: "assistant", Content: "Here is the report."},
				{Role: "user", Content: "Please also check thermal limits."},
			},
			PhaseReview,
		},
	}
	for _, tc := range cases {
		if got := DetectPhase(tc.history); got != tc.want {
			t.Errorf("%s: DetectPhase = %q, want %q", tc.name, got, tc.want)
		}
	}
}
