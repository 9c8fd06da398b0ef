package resolver

import (
	"regexp"
	"strings"
)

var (
	versionSuffix   = regexp.MustCompile(`-v\d+(\.\d+){0,2}$`)
	underscoreVer   = regexp.MustCompile(`_v\d+(\.\d+){0,2}$`)
	dateSuffix      = regexp.MustCompile(`-\d{8}$`)
	paramSizeSuffix = regexp.MustCompile(`-\d+[bB]$`)
	variantTails    = regexp.MustCompile(`-(chat|instruct|base|hf|gguf|awq|gptq|fp16|int8|int4)$`)
	repeatedDashes  = regexp.MustCompile(`-{2,}`)
)

// NormalizeName lowercases a source-specific model name and strips version,
// date, parameter-size, and quantization/variant tails so that names coined
// by different sources for the same model converge to one string. It is
// idempotent: NormalizeName(NormalizeName(x)) == NormalizeName(x).
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if idx := strings.Index(n, "/"); idx >= 0 {
		n = n[idx+1:]
	}
	for {
		before := n
		n = versionSuffix.ReplaceAllString(n, "")
		n = underscoreVer.ReplaceAllString(n, "")
		n = dateSuffix.ReplaceAllString(n, "")
		n = paramSizeSuffix.ReplaceAllString(n, "")
		n = variantTails.ReplaceAllString(n, "")
		if n == before {
			break
		}
	}
	n = repeatedDashes.ReplaceAllString(n, "-")
	return strings.Trim(n, "-_ ")
}
