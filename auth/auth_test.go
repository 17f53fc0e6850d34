package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func alwaysOK(string, []byte, []byte, []byte) error { return nil }
func alwaysFail(string, []byte, []byte, []byte) error { return ErrFailed }

func TestAllFailsIfAnyFails(t *testing.T) {
	v := All(VerifierFunc(alwaysOK), VerifierFunc(alwaysFail))
	assert.Error(t, v.Verify("glenda", nil, nil, nil))
}

func TestAllSucceedsIfAllSucceed(t *testing.T) {
	v := All(VerifierFunc(alwaysOK), VerifierFunc(alwaysOK))
	assert.NoError(t, v.Verify("glenda", nil, nil, nil))
}

func TestAnySucceedsIfOneSucceeds(t *testing.T) {
	v := Any(VerifierFunc(alwaysFail), VerifierFunc(alwaysOK))
	assert.NoError(t, v.Verify("glenda", nil, nil, nil))
}

func TestAnyFailsIfAllFail(t *testing.T) {
	v := Any(VerifierFunc(alwaysFail), VerifierFunc(alwaysFail))
	assert.Error(t, v.Verify("glenda", nil, nil, nil))
}

func TestWhitelist(t *testing.T) {
	v := Whitelist("glenda", "rob")
	assert.NoError(t, v.Verify("glenda", nil, nil, nil))
	assert.Error(t, v.Verify("kenji", nil, nil, nil))
}
