package cmd

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Metrics compares a transcription against ground truth
type Metrics struct {
	CharacterSimilarity   float64 `json:"character_similarity" yaml:"character_similarity"`
	WordSimilarity        float64 `json:"word_similarity" yaml:"word_similarity"`
	WordAccuracy          float64 `json:"word_accuracy" yaml:"word_accuracy"`
	WordErrorRate         float64 `json:"word_error_rate" yaml:"word_error_rate"`
	TotalWordsOriginal    int     `json:"total_words_original" yaml:"total_words_original"`
	TotalWordsTranscribed int     `json:"total_words_transcribed" yaml:"total_words_transcribed"`
	CorrectWords          int     `json:"correct_words" yaml:"correct_words"`
	Substitutions         int     `json:"substitutions" yaml:"substitutions"`
	Deletions             int     `json:"deletions" yaml:"deletions"`
	Insertions            int     `json:"insertions" yaml:"insertions"`
}

// normalizeText composes Vietnamese diacritics, collapses whitespace and
// lowercases
func normalizeText(text string) string {
	text = norm.NFC.String(text)
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// levenshteinDistance counts rune edits, so a missing diacritic costs one
func levenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	cur := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		cur[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			cur[j] = min(
				prev[j]+1,      // deletion
				cur[j-1]+1,     // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, cur = cur, prev
	}
	return prev[len(r2)]
}

func calculateSimilarity(s1, s2 string) float64 {
	maxLen := max(len([]rune(s1)), len([]rune(s2)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinDistance(s1, s2))/float64(maxLen)
}

// wordEdits aligns two word sequences and counts the operations
func wordEdits(orig, trans []string) (correct, substitutions, deletions, insertions int) {
	m, n := len(orig), len(trans)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if orig[i-1] == trans[j-1] {
				dp[i][j] = dp[i-1][j-1]
			} else {
				dp[i][j] = 1 + min(dp[i-1][j], dp[i][j-1], dp[i-1][j-1])
			}
		}
	}

	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && orig[i-1] == trans[j-1]:
			correct++
			i--
			j--
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+1:
			substitutions++
			i--
			j--
		case i > 0 && dp[i][j] == dp[i-1][j]+1:
			deletions++
			i--
		default:
			insertions++
			j--
		}
	}
	return correct, substitutions, deletions, insertions
}

// CalculateAccuracyMetrics scores transcribed against original after
// normalizing both
func CalculateAccuracyMetrics(original, transcribed string) Metrics {
	origNorm := normalizeText(original)
	transNorm := normalizeText(transcribed)
	origWords := strings.Fields(origNorm)
	transWords := strings.Fields(transNorm)

	correct, subs, dels, ins := wordEdits(origWords, transWords)
	wer := 0.0
	if len(origWords) > 0 {
		wer = float64(subs+dels+ins) / float64(len(origWords))
	} else if len(transWords) > 0 {
		wer = 1.0
	}

	return Metrics{
		CharacterSimilarity:   calculateSimilarity(origNorm, transNorm),
		WordSimilarity:        wordSimilarity(origWords, transWords),
		WordAccuracy:          1.0 - wer,
		WordErrorRate:         wer,
		TotalWordsOriginal:    len(origWords),
		TotalWordsTranscribed: len(transWords),
		CorrectWords:          correct,
		Substitutions:         subs,
		Deletions:             dels,
		Insertions:            ins,
	}
}

// wordSimilarity is 1 minus the word-level edit distance over the longer
// sequence
func wordSimilarity(orig, trans []string) float64 {
	longest := max(len(orig), len(trans))
	if longest == 0 {
		return 1.0
	}
	_, subs, dels, ins := wordEdits(orig, trans)
	return 1.0 - float64(subs+dels+ins)/float64(longest)
}
