package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLowercasesAndTrims(t *testing.T) {
	assert.Equal(t, "machine learning", Normalize("  Machine   Learning  "))
}

func TestNormalizeCollapsesUnicodeWhitespace(t *testing.T) {
	assert.Equal(t, "a b", Normalize("a\t\n b"))
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Equal(t, "", Normalize("   "))
}

// TestFingerprintStability is property #1 from spec §8: strings differing
// only by outer/inner whitespace or case fingerprint identically.
func TestFingerprintStability(t *testing.T) {
	variants := []string{
		"machine learning",
		"Machine Learning",
		"  machine   learning  ",
		"MACHINE\tLEARNING",
	}
	want := Fingerprint(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, want, Fingerprint(v))
	}
}

func TestFingerprintDiffersForDistinctQueries(t *testing.T) {
	corpus := []string{
		"machine learning",
		"deep learning",
		"natural language processing",
		"computer vision",
		"reinforcement learning",
	}
	seen := make(map[uint64]string)
	for _, q := range corpus {
		fp := Fingerprint(q)
		if prior, ok := seen[fp]; ok {
			t.Fatalf("collision between %q and %q", prior, q)
		}
		seen[fp] = q
	}
}

func TestFingerprintWithVariesByK(t *testing.T) {
	a := FingerprintWith("query", 5, nil, nil)
	b := FingerprintWith("query", 10, nil, nil)
	assert.NotEqual(t, a, b)
}

func TestFingerprintWithVariesByMinScore(t *testing.T) {
	s1 := float32(0.5)
	s2 := float32(0.75)
	a := FingerprintWith("query", 5, &s1, nil)
	b := FingerprintWith("query", 5, &s2, nil)
	assert.NotEqual(t, a, b)
}

func TestFingerprintWithFilterOrderIndependent(t *testing.T) {
	a := FingerprintWith("query", 5, nil, map[string]string{"language": "en", "frozen": "false"})
	b := FingerprintWith("query", 5, nil, map[string]string{"frozen": "false", "language": "en"})
	assert.Equal(t, a, b)
}

func TestFingerprintWithVariesByFilters(t *testing.T) {
	a := FingerprintWith("query", 5, nil, map[string]string{"language": "en"})
	b := FingerprintWith("query", 5, nil, map[string]string{"language": "fr"})
	assert.NotEqual(t, a, b)
}

func TestValidateRejectsEmpty(t *testing.T) {
	assert.Error(t, Validate("   "))
}

func TestValidateRejectsTooLong(t *testing.T) {
	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, Validate(string(long)))
}

func TestValidateRejectsNoAlphanumeric(t *testing.T) {
	assert.Error(t, Validate("!!! --- ???"))
}

func TestValidateRejectsControlCharacters(t *testing.T) {
	assert.Error(t, Validate("hello\x01world"))
}

func TestValidateAllowsTabCRLF(t *testing.T) {
	assert.NoError(t, Validate("hello\tworld\r\n"))
}

// TestValidateScenario is scenario S1's query form: "Machine   Learning"
// must pass validation and normalize identically to "machine learning".
func TestValidateScenario(t *testing.T) {
	assert.NoError(t, Validate("Machine   Learning"))
	assert.Equal(t, Normalize("machine learning"), Normalize("Machine   Learning"))
}
