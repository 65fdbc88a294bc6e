package secctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	token, err := issuer.Issue("session-1")
	require.NoError(t, err)

	require.NoError(t, issuer.Verify("session-1", token))
}

func TestTokenIssuerRejectsWrongSession(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	token, err := issuer.Issue("session-1")
	require.NoError(t, err)

	assert.Error(t, issuer.Verify("session-2", token))
}

func TestTokenIssuerRejectsMalformedToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	assert.Error(t, issuer.Verify("session-1", "not-a-token"))
	assert.Error(t, issuer.Verify("session-1", "bm9u.c2Vuc2U="))
}

func TestIsMutatingOnlyCoversStateChangingMethods(t *testing.T) {
	assert.True(t, IsMutating("POST"))
	assert.True(t, IsMutating("PUT"))
	assert.True(t, IsMutating("PATCH"))
	assert.True(t, IsMutating("DELETE"))
	assert.False(t, IsMutating("GET"))
	assert.False(t, IsMutating("HEAD"))
	assert.False(t, IsMutating("OPTIONS"))
}

func TestEvaluateCrossSiteSameOriginNeverBlocked(t *testing.T) {
	v := EvaluateCrossSite("https://api.rustcare.example", "https://api.rustcare.example", SameSiteStrict)
	assert.False(t, v.CrossSite)
	assert.False(t, v.Blocked)
}

func TestEvaluateCrossSiteStrictBlocksCrossOrigin(t *testing.T) {
	v := EvaluateCrossSite("https://evil.example", "https://api.rustcare.example", SameSiteStrict)
	assert.True(t, v.CrossSite)
	assert.True(t, v.Blocked)
}

func TestEvaluateCrossSiteLaxWarnsButAllows(t *testing.T) {
	v := EvaluateCrossSite("https://partner.example", "https://api.rustcare.example", SameSiteLax)
	assert.True(t, v.CrossSite)
	assert.False(t, v.Blocked)
}

func TestCheckExemptsNonMutatingMethods(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	result, err := Check(issuer, "GET", "https://evil.example", "https://api.rustcare.example", "s1", "bad-token", SameSiteStrict, nil)
	require.NoError(t, err)
	assert.False(t, result.CrossSiteWarning)
}

func TestCheckBlocksStrictCrossSiteMutation(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	_, err := Check(issuer, "POST", "https://evil.example", "https://api.rustcare.example", "s1", "whatever", SameSiteStrict, nil)
	require.Error(t, err)
}

func TestCheckRequiresValidTokenOnMutation(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	_, err := Check(issuer, "POST", "https://api.rustcare.example", "https://api.rustcare.example", "s1", "garbage", SameSiteStrict, nil)
	require.Error(t, err)
}

func TestCheckLaxCrossSiteMutationWithValidTokenWarnsButSucceeds(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))
	token, err := issuer.Issue("s1")
	require.NoError(t, err)

	result, err := Check(issuer, "POST", "https://partner.example", "https://api.rustcare.example", "s1", token, SameSiteLax, nil)
	require.NoError(t, err)
	assert.True(t, result.CrossSiteWarning)
}

func TestCheckSameSiteMutationWithValidTokenSucceeds(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))
	token, err := issuer.Issue("s1")
	require.NoError(t, err)

	result, err := Check(issuer, "PUT", "https://api.rustcare.example", "https://api.rustcare.example", "s1", token, SameSiteStrict, nil)
	require.NoError(t, err)
	assert.False(t, result.CrossSiteWarning)
}

func TestCheckAllowedOriginSatisfiesMutationWithoutCSRFToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	result, err := Check(issuer, "POST", "https://partner.example", "https://api.rustcare.example", "s1", "", SameSiteStrict, []string{"https://partner.example"})
	require.NoError(t, err)
	assert.False(t, result.CrossSiteWarning)
}

func TestCheckUnlistedOriginStillRequiresCSRFToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"))

	_, err := Check(issuer, "POST", "https://evil.example", "https://api.rustcare.example", "s1", "", SameSiteStrict, []string{"https://partner.example"})
	require.Error(t, err)
}

func TestOriginAllowedRejectsEmptyOrigin(t *testing.T) {
	assert.False(t, originAllowed("", []string{"https://partner.example"}))
}

func TestOriginAllowedMatchesExactEntry(t *testing.T) {
	assert.True(t, originAllowed("https://partner.example", []string{"https://a.example", "https://partner.example"}))
	assert.False(t, originAllowed("https://other.example", []string{"https://a.example", "https://partner.example"}))
}
