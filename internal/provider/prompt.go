package provider

import (
	"fmt"
	"strings"

	"github.com/adiga-code/numerology/internal/models"
)

var tariffFocus = map[models.Tariff]string{
	models.TariffQuick:  "краткий разбор: число жизненного пути, число судьбы и главные рекомендации",
	models.TariffDeep:   "глубокий разбор: все основные числа, сильные и слабые стороны, прогноз на год",
	models.TariffPair:   "анализ совместимости пары: числа каждого партнёра и их взаимодействие",
	models.TariffFamily: "анализ семьи: числа каждого участника и динамика отношений в семье",
}

var styleVoice = map[models.Style]string{
	models.StyleAnalytical: "Пиши структурированно и по делу, объясняй расчёты.",
	models.StyleShamanic:   "Пиши образно, с метафорами и символами, сохраняя точность расчётов.",
}

// BuildPrompt renders tariff, style and participant data into a prompt.
func BuildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Составь нумерологический отчёт. Формат: %s.\n", tariffFocus[req.Tariff])
	if voice, ok := styleVoice[req.Style]; ok {
		b.WriteString(voice)
		b.WriteByte('\n')
	}

	b.WriteString("\nУчастники:\n")
	for i, p := range req.Participants {
		fmt.Fprintf(&b, "%d. %s (%s), дата рождения %s", i+1, p.FullName, roleTitle(p.Role), p.BirthDate)
		if p.BirthTime != nil {
			fmt.Fprintf(&b, ", время %s", *p.BirthTime)
		}
		if p.BirthPlace != nil {
			fmt.Fprintf(&b, ", место %s", *p.BirthPlace)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func roleTitle(r models.ParticipantRole) string {
	switch r {
	case models.RoleMain:
		return "заказчик"
	case models.RolePartner:
		return "партнёр"
	default:
		return "член семьи"
	}
}
