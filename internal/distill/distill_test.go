package distill

import (
	"reflect"
	"strings"
	"testing"
)

func TestDistill_CaptureExample(t *testing.T) {
	raw := "Built feature. TODO: ship v1 due:2026-02-20. I need to update docs."

	result := Distill(raw, nil)

	wantActions := "- [ ] ship v1 due:2026-02-20\n- [ ] update docs"
	if result.ActionsMD != wantActions {
		t.Errorf("actions:\ngot  %q\nwant %q", result.ActionsMD, wantActions)
	}
	if result.Summary != raw {
		t.Errorf("summary = %q, want the raw text (under limit)", result.Summary)
	}
	if !strings.HasPrefix(result.DetailsMD, "- Built feature.") {
		t.Errorf("details = %q", result.DetailsMD)
	}
}

func TestDistill_EmptyText(t *testing.T) {
	result := Distill("   \n  ", nil)

	if result.Summary != "Processed note" {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.DetailsMD != "-" {
		t.Errorf("details = %q", result.DetailsMD)
	}
	if result.ActionsMD != "-" {
		t.Errorf("actions = %q", result.ActionsMD)
	}
}

func TestDistill_SummaryTruncation(t *testing.T) {
	raw := strings.Repeat("word ", 60)
	result := Distill(raw, nil)

	if len(result.Summary) != 140 {
		t.Errorf("summary length = %d, want 140", len(result.Summary))
	}
	if !strings.HasSuffix(result.Summary, "...") {
		t.Errorf("summary should end with ellipsis: %q", result.Summary)
	}
}

func TestDistill_ActionsFromCheckboxesAndIntents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			"checkbox lines",
			"- [ ] Walk dog\n- [x] Buy milk",
			[]string{"Walk dog", "Buy milk"},
		},
		{
			"inline todo",
			"Some context. todo: call the vet",
			[]string{"call the vet"},
		},
		{
			"intent sentence",
			"I want to start running again.",
			[]string{"start running again"},
		},
		{
			"dedupe case-insensitively",
			"- [ ] Walk dog\ntodo: walk dog",
			[]string{"Walk dog"},
		},
		{
			"strips leading to",
			"I plan to to review the budget.",
			[]string{"review the budget"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Distill(tt.raw, nil)
			var want string
			for i, item := range tt.want {
				if i > 0 {
					want += "\n"
				}
				want += "- [ ] " + item
			}
			if result.ActionsMD != want {
				t.Errorf("actions:\ngot  %q\nwant %q", result.ActionsMD, want)
			}
		})
	}
}

func TestDistill_Tags(t *testing.T) {
	result := Distill("great workout today, then worked on my code project", []string{"daily"})

	if !reflect.DeepEqual(result.Tags, []string{"daily", "fitness", "project"}) {
		t.Errorf("tags = %v", result.Tags)
	}

	// Existing tags are preserved first and never duplicated.
	result = Distill("slept badly", []string{"sleep"})
	if !reflect.DeepEqual(result.Tags, []string{"sleep"}) {
		t.Errorf("tags = %v", result.Tags)
	}
}

func TestDistill_DetailsLimitedToThreeSentences(t *testing.T) {
	raw := "One. Two. Three. Four. Five."
	result := Distill(raw, nil)

	want := "- One.\n- Two.\n- Three."
	if result.DetailsMD != want {
		t.Errorf("details:\ngot  %q\nwant %q", result.DetailsMD, want)
	}
}
