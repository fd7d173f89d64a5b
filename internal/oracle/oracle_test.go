package oracle

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriloop/internal/claim"
)

type nopVerifier struct{}

func (nopVerifier) Verify(_ context.Context, c claim.Claim) (claim.VerificationResult, error) {
	return claim.VerificationResult{ClaimID: c.ID, Verdict: claim.Verified}, nil
}

func (nopVerifier) Remediate(_ context.Context, _ []claim.VerificationResult) (claim.RemediationPlan, error) {
	return claim.RemediationPlan{}, nil
}

func TestCatalogRegisterAndBuild(t *testing.T) {
	c := NewCatalog()
	var gotCfg Config
	require.NoError(t, c.Register("exec", func(cfg Config) (Verifier, error) {
		gotCfg = cfg
		return nopVerifier{}, nil
	}))

	v, err := c.Build("exec", Config{"binary": "/usr/bin/true"})
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, "/usr/bin/true", gotCfg["binary"])
}

func TestCatalogDuplicateRegistration(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("exec", func(Config) (Verifier, error) { return nopVerifier{}, nil }))
	require.ErrorIs(t, c.Register("exec", func(Config) (Verifier, error) { return nopVerifier{}, nil }), claim.ErrConfiguration)
}

func TestCatalogValidation(t *testing.T) {
	c := NewCatalog()
	require.ErrorIs(t, c.Register("", func(Config) (Verifier, error) { return nopVerifier{}, nil }), claim.ErrConfiguration)
	require.ErrorIs(t, c.Register("exec", nil), claim.ErrConfiguration)
}

func TestCatalogBuildUnknownType(t *testing.T) {
	c := NewCatalog()
	_, err := c.Build("missing", nil)
	require.ErrorIs(t, err, claim.ErrConfiguration)
}

func TestCatalogBuildFactoryError(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("bad", func(Config) (Verifier, error) {
		return nil, fmt.Errorf("missing credentials")
	}))
	_, err := c.Build("bad", nil)
	require.ErrorIs(t, err, claim.ErrConfiguration)
}

func TestCatalogTypesSorted(t *testing.T) {
	c := NewCatalog()
	for _, tag := range []string{"proof", "exec", "policy"} {
		require.NoError(t, c.Register(tag, func(Config) (Verifier, error) { return nopVerifier{}, nil }))
	}
	assert.Equal(t, []string{"exec", "policy", "proof"}, c.Types())
}
