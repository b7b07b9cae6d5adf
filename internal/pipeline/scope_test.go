package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/reconcore/internal/models"
)

func TestScopeConfig_ValidateTarget(t *testing.T) {
	s := &ScopeConfig{AllowedDomains: []string{"*.example.com", "other.org"}}

	assert.NoError(t, s.ValidateTarget("foo.example.com"))
	assert.NoError(t, s.ValidateTarget("other.org"))
	assert.Error(t, s.ValidateTarget("example.com"))
	assert.Error(t, s.ValidateTarget("foo.bar.example.com"))
	assert.Error(t, s.ValidateTarget("evil.com"))
}

func TestScopeConfig_ValidateTarget_EmptyAllowsAll(t *testing.T) {
	s := &ScopeConfig{}
	assert.NoError(t, s.ValidateTarget("anything.tld"))
}

func TestScopeConfig_ValidateIP(t *testing.T) {
	s := &ScopeConfig{AllowedCIDRs: []string{"10.0.0.0/8"}}

	assert.NoError(t, s.ValidateIP("10.1.2.3"))
	assert.Error(t, s.ValidateIP("192.168.1.1"))
	assert.Error(t, s.ValidateIP("not-an-ip"))
}

func TestScopeFor_WiresTargetIncludeAndIPRanges(t *testing.T) {
	target := models.NewTarget("acme", "acme.com")
	target.Include = []string{"*.acme.com"}
	target.IPRanges = []string{"10.0.0.0/8"}

	s := ScopeFor(target)
	require.Equal(t, []string{"*.acme.com"}, s.AllowedDomains)
	require.Equal(t, []string{"10.0.0.0/8"}, s.AllowedCIDRs)
}

func TestValidateHost_RejectsExcludedEvenIfIncluded(t *testing.T) {
	target := models.NewTarget("acme", "acme.com")
	target.Include = []string{"*.acme.com"}
	target.Exclude = []string{"internal.acme.com"}

	s := ScopeFor(target)
	assert.NoError(t, s.ValidateHost(target, "www.acme.com"))
	assert.Error(t, s.ValidateHost(target, "internal.acme.com"))
	assert.Error(t, s.ValidateHost(target, "outside.other.com"))
}

func TestValidateHost_NoIncludeStillEnforcesExclude(t *testing.T) {
	target := models.NewTarget("acme", "acme.com")
	target.Exclude = []string{"staging.acme.com"}

	s := ScopeFor(target)
	assert.NoError(t, s.ValidateHost(target, "www.acme.com"))
	assert.Error(t, s.ValidateHost(target, "staging.acme.com"))
}
