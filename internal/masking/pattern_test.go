package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyNoneReturnsValueUnchanged(t *testing.T) {
	out, err := Apply(None(), "555-01-2345", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "555-01-2345", out)
}

func TestApplyFullFillsEntireLength(t *testing.T) {
	out, err := Apply(Full(), "12345", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "█████", out)
}

func TestApplyRedactedIsConstantToken(t *testing.T) {
	out, err := Apply(Redacted(), "anything at all", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, redactedToken, out)
}

func TestApplyPartialShowsFirstAndLastWithFillInMiddle(t *testing.T) {
	// n=11 >= f+l=2+2=4
	out, err := Apply(Partial(2, 2), "12345678901", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "12███████01", out)
	assert.Equal(t, 11, len([]rune(out)))
}

func TestApplyPartialExactBoundaryNoFill(t *testing.T) {
	// n=4 == f+l=4: no middle at all.
	out, err := Apply(Partial(2, 2), "1234", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "1234", out)
}

func TestApplyPartialShortStringShowsOnlyMinFirstChars(t *testing.T) {
	// n=3 < f+l=2+2=4: show min(f, n)=2 leading chars, redact the rest.
	out, err := Apply(Partial(2, 2), "abc", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab█", out)
}

func TestApplyPartialShortStringFewerThanShowFirst(t *testing.T) {
	// n=1 < f=2: show only the 1 available char.
	out, err := Apply(Partial(2, 2), "a", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", out)
}

func TestApplyPartialEmptyStringYieldsEmptyOutput(t *testing.T) {
	out, err := Apply(Partial(2, 2), "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestApplyPartialNeverOverlapsFirstAndLast(t *testing.T) {
	// f=3, l=3 on n=5: would overlap if both taken at face value; falls
	// into the n < f+l branch, so only min(f, n)=3 leading chars show.
	out, err := Apply(Partial(3, 3), "abcde", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc██", out)
}

func TestApplyHashedUsesResolvedSaltAndIsDeterministic(t *testing.T) {
	salts := StaticSaltSource{"salt-1": []byte("pepper")}

	out1, err := Apply(Hashed("sha256", "salt-1"), "patient@example.com", salts, nil)
	require.NoError(t, err)

	out2, err := Apply(Hashed("sha256", "salt-1"), "patient@example.com", salts, nil)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Len(t, out1, 64) // hex-encoded sha256
	assert.NotEqual(t, "patient@example.com", out1)
}

func TestApplyHashedFailsOnUnknownSaltRef(t *testing.T) {
	salts := StaticSaltSource{}

	_, err := Apply(Hashed("sha256", "missing"), "value", salts, nil)
	require.Error(t, err)
}

func TestApplyTokenizedIsDeterministicPerScheme(t *testing.T) {
	tokenizer := HMACTokenizer{Keys: map[string][]byte{"mrn": []byte("key-material")}}

	out1, err := Apply(Tokenized("mrn"), "MRN-12345", nil, tokenizer)
	require.NoError(t, err)

	out2, err := Apply(Tokenized("mrn"), "MRN-12345", nil, tokenizer)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.NotEqual(t, "MRN-12345", out1)
}

func TestApplyTokenizedFailsWithoutTokenizer(t *testing.T) {
	_, err := Apply(Tokenized("mrn"), "value", nil, nil)
	require.Error(t, err)
}
