package reputation

// confusables maps characters that visually resemble ASCII letters to the
// letter they imitate: Cyrillic and Greek lookalikes, a few Latin-Extended
// forms, and the classic digit substitutions.
//
// The table is deliberately fixed and small. Phishing domains targeting
// wallets overwhelmingly use this core set; a full Unicode confusables
// database would add noise without catching meaningfully more.
var confusables = map[rune]rune{
	// Cyrillic
	'а': 'a', // U+0430
	'е': 'e', // U+0435
	'ё': 'e', // U+0451
	'о': 'o', // U+043E
	'р': 'p', // U+0440
	'с': 'c', // U+0441
	'у': 'y', // U+0443
	'х': 'x', // U+0445
	'і': 'i', // U+0456
	'ѕ': 's', // U+0455
	'ј': 'j', // U+0458
	'һ': 'h', // U+04BB
	'ԁ': 'd', // U+0501
	'ԛ': 'q', // U+051B
	'ԝ': 'w', // U+051D

	// Greek
	'α': 'a',
	'ε': 'e',
	'ι': 'i',
	'κ': 'k',
	'ν': 'v',
	'ο': 'o',
	'ρ': 'p',
	'τ': 't',
	'υ': 'u',

	// Latin-Extended
	'ı': 'i', // dotless i
	'ł': 'l',
	'ø': 'o',
	'ç': 'c',
	'ń': 'n',
	'á': 'a',
	'à': 'a',
	'é': 'e',
	'è': 'e',
	'ó': 'o',
	'ö': 'o',
	'ü': 'u',

	// Digit substitutions
	'0': 'o',
	'1': 'l',
	'3': 'e',
	'5': 's',
}

// mapConfusables maps every character of s through the confusable table,
// returning the ASCII-normalized string and the substitutions that were
// applied. When no character maps, the returned string equals the input
// and subs is empty.
func mapConfusables(s string) (mapped string, subs []rune) {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if ascii, ok := confusables[r]; ok {
			out = append(out, ascii)
			subs = append(subs, r)
			continue
		}
		out = append(out, r)
	}
	return string(out), subs
}
