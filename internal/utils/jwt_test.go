package utils

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestKioskTokenRoundTripsLaneClaim(t *testing.T) {
    tok, err := NewKioskToken("secret", "lane-1", 30)
    require.NoError(t, err)

    lane, err := VerifyKioskToken("secret", tok)
    require.NoError(t, err)
    assert.Equal(t, "lane-1", lane, "verified claim identifies the provisioned lane")
}

func TestVerifyKioskTokenRejectsWrongSecret(t *testing.T) {
    tok, err := NewKioskToken("secret", "lane-1", 30)
    require.NoError(t, err)

    _, err = VerifyKioskToken("other-secret", tok)
    assert.ErrorIs(t, err, ErrKioskToken)
}

func TestVerifyKioskTokenRejectsTokenWithoutLane(t *testing.T) {
    // Staff access tokens share the signing secret but carry no lane
    // claim; they must not open a lane channel.
    at, err := NewAccessToken("secret", 7, "EMPLOYEE", 15)
    require.NoError(t, err)

    _, err = VerifyKioskToken("secret", at.Token)
    assert.ErrorIs(t, err, ErrKioskToken)
}
