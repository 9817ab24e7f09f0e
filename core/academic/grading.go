package academic

var (
	letterThresholds = []struct {
		min    float64
		letter string
	}{
		{93, "A"}, {90, "A-"}, {87, "B+"}, {83, "B"}, {80, "B-"},
		{77, "C+"}, {73, "C"}, {70, "C-"}, {67, "D+"}, {63, "D"}, {60, "D-"},
	}

	gpaPoints = map[string]float64{
		"A": 4.0, "A-": 3.7,
		"B+": 3.3, "B": 3.0, "B-": 2.7,
		"C+": 2.3, "C": 2.0, "C-": 1.7,
		"D+": 1.3, "D": 1.0, "D-": 0.7,
		"F": 0.0,
	}
)

// LetterGrade maps a percentage to its letter grade; the first threshold reached wins.
func LetterGrade(percentage float64) string {
	for _, t := range letterThresholds {
		if percentage >= t.min {
			return t.letter
		}
	}
	return "F"
}

// GPAPoints returns the grade points of letter. Unknown letters are worth 0.
func GPAPoints(letter string) float64 {
	return gpaPoints[letter]
}

// IsLetterGrade reports whether letter is a known letter grade.
func IsLetterGrade(letter string) bool {
	_, ok := gpaPoints[letter]
	return ok
}

// Percentage of score over maxScore. A zero maxScore yields 0.
func Percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return score / maxScore * 100
}

// FinalScore is the weighted average percentage of the published grades.
// ok is false when none of the grades is published.
func FinalScore(grades []Grade) (score float64, ok bool) {
	var totalWeighted, totalWeight float64
	for _, g := range grades {
		if !g.IsPublished {
			continue
		}
		ok = true
		totalWeighted += Percentage(g.Score, g.MaxScore) * g.Weight
		totalWeight += g.Weight
	}
	if totalWeight > 0 {
		score = totalWeighted / totalWeight
	}
	return score, ok
}

// CreditedGrade is one completed enrollment as seen by the GPA computation.
type CreditedGrade struct {
	Letter  string
	Credits int
}

// WeightedGPA is the credit weighted average of the grade points. No credits yields 0.
func WeightedGPA(grades []CreditedGrade) float64 {
	var points float64
	var credits int
	for _, g := range grades {
		points += GPAPoints(g.Letter) * float64(g.Credits)
		credits += g.Credits
	}
	if credits == 0 {
		return 0
	}
	return points / float64(credits)
}
