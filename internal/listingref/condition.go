package listingref

import (
	"strings"

	"carvalue-api/internal/model"
)

// Keywords are matched as substrings of the lower-cased answer. Clean forms
// are tested and cut out first, since most of them contain a damage word.
var (
	cleanKeywords = []string{
		"değişensiz", "degisensiz", "boyasız", "boyasiz", "hatasız", "hatasiz",
		"tramersiz", "hasarsız", "hasarsiz", "kazasız", "kazasiz",
		"orijinal", "orjinal", "original", "unpainted", "no damage", "not damaged",
		"accident free", "accident-free", "no accident", "clean",
	}
	damageKeywords = []string{
		"değişen", "degisen", "boyalı", "boyali", "boya", "hasar", "tramer", "kaza",
		"lokal", "replaced", "painted", "damaged", "damage", "accident", "dent", "scratch",
	}
)

// ParseCondition maps a free-text answer to a condition bucket. Any damage
// word outside a clean phrase wins; otherwise a clean phrase means original.
func ParseCondition(text string) model.Condition {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return model.ConditionUnknown
	}

	sawClean := false
	for _, kw := range cleanKeywords {
		if strings.Contains(t, kw) {
			sawClean = true
			t = strings.ReplaceAll(t, kw, " ")
		}
	}
	for _, kw := range damageKeywords {
		if strings.Contains(t, kw) {
			return model.ConditionDamaged
		}
	}
	if sawClean {
		return model.ConditionOriginal
	}
	return model.ConditionUnknown
}
