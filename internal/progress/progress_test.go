package progress

import (
	"testing"

	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/scoring"
)

func q(points int, required bool) model.Question {
	return model.Question{Text: "q", Type: model.TypeOpen, PointValue: points, Required: required, Rubric: &model.Rubric{}}
}

func testTopics() []model.Topic {
	return []model.Topic{
		{Title: "Core", Required: true, Questions: []model.Question{q(5, true), q(3, false), q(2, true)}},
		{Title: "Single", Required: true, Questions: []model.Question{q(10, true)}},
		{Title: "Optional", Required: false, Questions: []model.Question{q(4, false)}},
	}
}

func TestNewCachesPoints(t *testing.T) {
	tr := New(testTopics())
	st := tr.Status("Core")
	if st.Core != 7 || st.Total != 10 {
		t.Errorf("Status(Core) = %+v, want core 7 total 10", st)
	}
	if st.Points != 0 || st.Completed {
		t.Errorf("fresh tracker should be empty: %+v", st)
	}
	if s := tr.Summary(); s.CoreTopics != 2 || s.TotalPoints != 24 {
		t.Errorf("Summary() = %+v", s)
	}
}

func TestBestScoreMonotonic(t *testing.T) {
	tr := New(testTopics())
	for _, pts := range []int{4, 2, 9} {
		tr.RecordScore("Single", 0, scoring.Result{Points: pts})
	}
	if best, _ := tr.BestScore("Single", 0); best != 9 {
		t.Errorf("BestScore() = %d, want 9", best)
	}
	if tr.Points("Single") != 9 {
		t.Errorf("Points() = %d, want 9", tr.Points("Single"))
	}
	if tr.Attempts("Single", 0) != 3 {
		t.Errorf("Attempts() = %d, want 3", tr.Attempts("Single", 0))
	}
}

func TestCompletionFiresOnce(t *testing.T) {
	tr := New(testTopics())

	steps := []struct {
		points    int
		wantFired bool
	}{
		{3, false},
		{5, false},
		{7, true},
		{2, false}, // drop
		{8, false}, // rise again
	}
	for _, s := range steps {
		if fired := tr.setPoints("Core", s.points); fired != s.wantFired {
			t.Errorf("setPoints(%d) fired = %v, want %v", s.points, fired, s.wantFired)
		}
	}
	if tr.Summary().CompletedTopics != 1 {
		t.Errorf("CompletedTopics = %d, want 1", tr.Summary().CompletedTopics)
	}
	if !tr.IsTopicCompleted("Core") {
		t.Error("Core should stay completed")
	}
}

func TestCompletionThroughScores(t *testing.T) {
	tr := New(testTopics())

	if tr.RecordScore("Core", 0, scoring.Result{IsCorrect: true, Points: 5}) {
		t.Error("5 of 7 core points should not complete")
	}
	if !tr.RecordScore("Core", 2, scoring.Result{IsCorrect: true, Points: 2}) {
		t.Error("7 of 7 core points should complete")
	}
	if tr.RecordScore("Core", 1, scoring.Result{IsCorrect: true, Points: 3}) {
		t.Error("completion must not fire twice")
	}
	if tr.Points("Core") != 10 {
		t.Errorf("Points() = %d, want 10", tr.Points("Core"))
	}
}

func TestRequiredTopicWithoutCorePoints(t *testing.T) {
	tr := New([]model.Topic{
		{Title: "Bonus", Required: true, Questions: []model.Question{q(2, false)}},
	})

	if tr.RecordScore("Bonus", 0, scoring.Result{Points: 0}) {
		t.Error("a wrong answer worth nothing should not complete the topic")
	}
	if tr.IsTopicCompleted("Bonus") {
		t.Fatal("topic completed without any points")
	}
	if !tr.RecordScore("Bonus", 0, scoring.Result{Points: 1}) {
		t.Error("the first earned point should complete a topic without core points")
	}
}

func TestOptionalTopicNeverCompletes(t *testing.T) {
	tr := New(testTopics())
	tr.RecordScore("Optional", 0, scoring.Result{IsCorrect: true, Points: 4})
	if tr.IsTopicCompleted("Optional") {
		t.Error("optional topics do not complete")
	}
	if tr.ProgressPercent("Optional") != 100 {
		t.Errorf("ProgressPercent() = %d, want 100", tr.ProgressPercent("Optional"))
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		earned, core, want int
	}{
		{0, 0, 0},
		{1, 0, 100},
		{12, 10, 100},
		{5, 7, 71},
		{0, 7, 0},
		{7, 7, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.earned, tt.core); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.earned, tt.core, got, tt.want)
		}
	}
}

func TestApplyChatGrade(t *testing.T) {
	tr := New(testTopics())

	tr.ApplyChatGrade("Core", scoring.ChatGrade{Classification: scoring.ClassQuestion})
	tr.ApplyChatGrade("Core", scoring.ChatGrade{Classification: scoring.ClassAnswer, Points: 2})
	tr.ApplyChatGrade("Core", scoring.ChatGrade{Classification: scoring.ClassAnswer, Points: 0})

	s := tr.Summary()
	if s.Questions != 1 || s.CorrectAnswers != 1 {
		t.Errorf("Summary() = %+v, want 1 question and 1 correct answer", s)
	}
	if tr.Points("Core") != 2 {
		t.Errorf("Points() = %d, want 2", tr.Points("Core"))
	}

	// Chat credit survives a later question score recompute.
	tr.RecordScore("Core", 0, scoring.Result{IsCorrect: true, Points: 5})
	if tr.Points("Core") != 7 || !tr.IsTopicCompleted("Core") {
		t.Errorf("Points() = %d completed=%v, want 7 and completed", tr.Points("Core"), tr.IsTopicCompleted("Core"))
	}

	// Capped at the topic total.
	tr.ApplyChatGrade("Core", scoring.ChatGrade{Classification: scoring.ClassAnswer, Points: 50})
	if tr.Points("Core") != 10 {
		t.Errorf("Points() = %d, want 10", tr.Points("Core"))
	}
}

func TestRestartTopic(t *testing.T) {
	tr := New(testTopics())
	tr.RecordScore("Single", 0, scoring.Result{Points: 3})
	tr.RecordScore("Single", 0, scoring.Result{IsCorrect: true, Points: 10})
	tr.RecordScore("Core", 0, scoring.Result{IsCorrect: true, Points: 5})

	tr.RestartTopic("Single")

	if tr.Points("Single") != 0 || tr.IsTopicCompleted("Single") || tr.Attempts("Single", 0) != 0 {
		t.Error("RestartTopic should clear the topic")
	}
	if _, ok := tr.BestScore("Single", 0); ok {
		t.Error("scores should be cleared")
	}
	if tr.Summary().CompletedTopics != 0 {
		t.Errorf("CompletedTopics = %d, want 0", tr.Summary().CompletedTopics)
	}
	if tr.Points("Core") != 5 {
		t.Error("other topics must keep their points")
	}

	// Completion can fire again after a restart.
	if !tr.RecordScore("Single", 0, scoring.Result{IsCorrect: true, Points: 10}) {
		t.Error("completion should fire again after restart")
	}
}

func TestMessagesAndReset(t *testing.T) {
	tr := New(testTopics())
	tr.CountMessage()
	tr.CountMessage()
	if tr.Summary().Messages != 2 {
		t.Errorf("Messages = %d, want 2", tr.Summary().Messages)
	}
	tr.RecordScore("Core", 0, scoring.Result{Points: 5, IsCorrect: true})
	tr.ResetMessages()
	if tr.Summary().Messages != 0 || tr.Points("Core") != 5 {
		t.Error("ResetMessages should only clear the message count")
	}

	tr.Reset()
	if tr.Points("Core") != 0 || tr.Summary() != (Summary{CoreTopics: 2, TotalPoints: 24}) {
		t.Errorf("Reset() left state behind: %+v", tr.Summary())
	}
}

func TestUnknownTopicIgnored(t *testing.T) {
	tr := New(testTopics())
	if tr.RecordScore("Nope", 0, scoring.Result{Points: 1}) {
		t.Error("unknown topic should not complete")
	}
	if len(tr.Statuses()) != 3 {
		t.Errorf("Statuses() = %d entries, want 3", len(tr.Statuses()))
	}
}
