package academic

import (
	"math"
	"testing"
)

func TestLetterGrade(t *testing.T) {
	tests := []struct {
		percentage float64
		want       string
	}{
		{100, "A"}, {93, "A"}, {92.999, "A-"}, {90, "A-"},
		{89.5, "B+"}, {87, "B+"}, {83, "B"}, {80, "B-"},
		{79.99, "C+"}, {77, "C+"}, {73, "C"}, {70, "C-"},
		{67, "D+"}, {63, "D"}, {60, "D-"}, {59.999, "F"}, {0, "F"}, {-5, "F"},
	}
	for _, tt := range tests {
		if got := LetterGrade(tt.percentage); got != tt.want {
			t.Errorf("LetterGrade(%v) = %q, want %q", tt.percentage, got, tt.want)
		}
	}
}

func TestGPAPoints(t *testing.T) {
	tests := []struct {
		letter string
		want   float64
	}{
		{"A", 4}, {"A-", 3.7}, {"B+", 3.3}, {"B", 3}, {"C-", 1.7}, {"D-", 0.7}, {"F", 0},
		{"E", 0}, {"", 0}, {"a", 0},
	}
	for _, tt := range tests {
		if got := GPAPoints(tt.letter); got != tt.want {
			t.Errorf("GPAPoints(%q) = %v, want %v", tt.letter, got, tt.want)
		}
	}
	if IsLetterGrade("E") || !IsLetterGrade("F") {
		t.Error("IsLetterGrade() failed!")
	}
}

func TestFinalScore(t *testing.T) {
	tests := []struct {
		name      string
		grades    []Grade
		wantScore float64
		wantOk    bool
	}{
		{name: "no grades"},
		{name: "unpublished only", grades: []Grade{{Score: 90, MaxScore: 100, Weight: 1}}},
		{
			name:      "single",
			grades:    []Grade{{Score: 45, MaxScore: 50, Weight: 0.5, IsPublished: true}},
			wantScore: 90, wantOk: true,
		},
		{
			name: "weighted, unpublished ignored",
			grades: []Grade{
				{Score: 90, MaxScore: 100, Weight: 0.6, IsPublished: true},
				{Score: 40, MaxScore: 50, Weight: 0.4, IsPublished: true},
				{Score: 0, MaxScore: 100, Weight: 1},
			},
			wantScore: 86, wantOk: true,
		},
		{
			name:      "zero weights",
			grades:    []Grade{{Score: 90, MaxScore: 100, Weight: 0, IsPublished: true}},
			wantScore: 0, wantOk: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, ok := FinalScore(tt.grades)
			if ok != tt.wantOk || math.Abs(score-tt.wantScore) > 1e-9 {
				t.Errorf("FinalScore() = (%v, %v), want (%v, %v)", score, ok, tt.wantScore, tt.wantOk)
			}
		})
	}
}

func TestWeightedGPA(t *testing.T) {
	tests := []struct {
		name   string
		grades []CreditedGrade
		want   float64
	}{
		{name: "no grades", want: 0},
		{name: "no credits", grades: []CreditedGrade{{Letter: "A", Credits: 0}}, want: 0},
		{name: "weighted", grades: []CreditedGrade{{Letter: "A", Credits: 4}, {Letter: "B", Credits: 3}}, want: 25.0 / 7},
		{name: "unknown letter", grades: []CreditedGrade{{Letter: "A", Credits: 3}, {Letter: "P", Credits: 3}}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightedGPA(tt.grades); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("WeightedGPA() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	if got := Percentage(9.3, 10); math.Abs(got-93) > 1e-9 {
		t.Errorf("Percentage(9.3, 10) = %v, want 93", got)
	}
	if got := Percentage(5, 0); got != 0 {
		t.Errorf("Percentage(5, 0) = %v, want 0", got)
	}
}
