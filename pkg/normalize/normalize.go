// Package normalize provides legacy-compatible company name normalization.
//
// The same normal form is used both as the cache key for name-based lookups
// and as the hash input for temporary ID generation, so any change here
// changes which rows collide. Keep it in lockstep with the data already in
// enrichment_index.
package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// statusMarkers are company status annotations that appear embedded in
// customer names ("中国平安-已转出", "（原）中国平安"). They are stripped so
// that all variants of a name map to the same key.
var statusMarkers = []string{
	"已转出", "待转出", "终止", "转出", "保留", "暂停", "注销", "清算",
	"解散", "吊销", "撤销", "停业", "歇业", "关闭", "迁出", "迁入",
	"变更", "合并", "分立", "破产", "重整", "托管", "接管", "整顿",
	"清盘", "退出", "终结", "结束", "完结", "已作废", "作废", "存量", "原",
}

var (
	whitespaceRe     = regexp.MustCompile(`\s+`)
	businessSuffixRe = regexp.MustCompile(`(?:\(团托\)|（团托）|-[A-Za-z][A-Za-z0-9]*|-[0-9]+|-养老|-福利)$`)
	trailingPunctRe  = regexp.MustCompile(`[-\.。]+$`)
	emptyBracketsRe  = regexp.MustCompile(`（）$`)
)

// markerPatterns holds the compiled start/end/bracket patterns per status
// marker, longest marker first so e.g. "已转出" wins over "转出".
var markerPatterns = buildMarkerPatterns()

type markerPattern struct {
	start   *regexp.Regexp
	end     *regexp.Regexp
	bracket *regexp.Regexp
}

func buildMarkerPatterns() []markerPattern {
	markers := make([]string, len(statusMarkers))
	copy(markers, statusMarkers)
	sort.SliceStable(markers, func(i, j int) bool {
		return len(markers[i]) > len(markers[j])
	})

	patterns := make([]markerPattern, 0, len(markers))
	for _, m := range markers {
		q := regexp.QuoteMeta(m)
		patterns = append(patterns, markerPattern{
			start:   regexp.MustCompile(`^[\(（]?` + q + `[\)）]?-?`),
			end:     regexp.MustCompile(`[-\(（]` + q + `[\)）]?$`),
			bracket: regexp.MustCompile(`[\(（]` + q + `[\)）]$`),
		})
	}
	return patterns
}

// Name converts a raw company name to its canonical form. The operations and
// their order mirror the legacy clean_company_name pipeline:
//
//  1. remove all whitespace
//  2. strip business suffixes (及下属子企业, (团托), -codes, -养老, -福利)
//  3. strip status markers at start, end, and in trailing brackets
//  4. full-width to half-width ASCII
//  5. normalize brackets to Chinese form
//  6. strip trailing punctuation and empty bracket pairs
//  7. lowercase
//
// Name is idempotent and returns "" for empty input.
func Name(raw string) string {
	if raw == "" {
		return ""
	}

	name := whitespaceRe.ReplaceAllString(raw, "")
	name = strings.ReplaceAll(name, "及下属子企业", "")
	name = businessSuffixRe.ReplaceAllString(name, "")

	for _, p := range markerPatterns {
		name = p.start.ReplaceAllString(name, "")
		name = p.end.ReplaceAllString(name, "")
		name = p.bracket.ReplaceAllString(name, "")
	}

	name = foldFullWidth(name)
	name = strings.ReplaceAll(name, "(", "（")
	name = strings.ReplaceAll(name, ")", "）")
	name = trailingPunctRe.ReplaceAllString(name, "")
	name = emptyBracketsRe.ReplaceAllString(name, "")

	return strings.ToLower(name)
}

// foldFullWidth maps the full-width Latin block U+FF01..U+FF5E onto plain
// ASCII by subtracting 0xFEE0.
func foldFullWidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0xFF01 && r <= 0xFF5E {
			r -= 0xFEE0
		}
		b.WriteRune(r)
	}
	return b.String()
}
