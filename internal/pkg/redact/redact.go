// redact маскирует чувствительные данные перед записью в логи.
// Auth-сервис никогда не логирует пароли, секреты refresh-токенов и
// access-токены; e-mail маскируется с сохранением домена — этого достаточно,
// чтобы связать записи при разборе инцидента, не раскрывая адрес целиком.
package redact

import "strings"

// Email маскирует e-mail для логирования.
//
// Правила:
//   - Строка должна содержать РОВНО один символ '@', иначе возвращается "***";
//   - Локальная часть (до '@') заменяется на первые два символа (по рунам) + "***";
//   - Если длина локальной части ≤ 2 символов — возвращается "***@<domain>";
//   - Доменная часть возвращается без изменений.
//
// Примеры:
//
//	"foobar@example.com"   -> "fo***@example.com"
//	"ab@ex.com"            -> "***@ex.com"
//	"no-at"                -> "***"
func Email(s string) string {
	// ровно один '@' — иначе считаем e-mail невалидным и редактируем полностью.
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	// срез по рунам: многобайтовая локальная часть не режется посреди руны.
	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает литерал-заглушку для токена в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Password возвращает литерал-заглушку для пароля в логах.
func Password() string { return "[REDACTED_PASSWORD]" }
