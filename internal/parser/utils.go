package parser

import (
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// NormalizeHeader 规范化表头：小写，非字母数字替换为空格，压缩空白
// "PPO No." / "ppo  no" / "PPO-NO" 均得到 "ppo no"
func NormalizeHeader(name string) string {
	name = strings.ToLower(name)
	name = nonAlnumRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(name, " "))
}

// CollapseSpaces 去除首尾空白并压缩内部空白
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HeaderEquals 规范化后相等
func HeaderEquals(a, b string) bool {
	na := NormalizeHeader(a)
	return na != "" && na == NormalizeHeader(b)
}

// tokenJaccard 词集合 Jaccard 系数
func tokenJaccard(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]int, len(ta)+len(tb))
	for _, t := range ta {
		set[t] |= 1
	}
	for _, t := range tb {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// editSimilarity 1 - 编辑距离/较长串长度
func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings(ra, rb, editOptions)
	return 1 - float64(dist)/float64(longest)
}

// Similarity 表头与候选名称的相似度（0-100），两者均为规范化后的文本
//   - 完全相等 100
//   - 包含关系 70-90（按长度比例）
//   - 词集合 Jaccard ×80
//   - 编辑距离相似度 ×85
func Similarity(header, candidate string) float64 {
	if header == "" || candidate == "" {
		return 0
	}
	if header == candidate {
		return 100
	}
	best := 0.0
	short, long := header, candidate
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= 3 && strings.Contains(long, short) {
		best = 70 + 20*float64(len(short))/float64(len(long))
	}
	if s := tokenJaccard(header, candidate) * 80; s > best {
		best = s
	}
	if s := editSimilarity(header, candidate) * 85; s > best {
		best = s
	}
	return best
}

// FieldScore 表头对某个规范字段的得分：取所有同义词中的最高分
func FieldScore(header string, synonyms []string) float64 {
	h := NormalizeHeader(header)
	if h == "" {
		return 0
	}
	best := 0.0
	for _, syn := range synonyms {
		if s := Similarity(h, NormalizeHeader(syn)); s > best {
			best = s
		}
	}
	return best
}
