package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassClaims_JSON(t *testing.T) {
	exp := time.Unix(1_700_000_000, 0)
	claims := PassClaims{
		Email:            "asha@example.com",
		ID:               7,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}

	data, err := json.Marshal(claims)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"asha@example.com","id":7,"exp":1700000000}`, string(data))

	var decoded PassClaims
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, claims.Email, decoded.Email)
	assert.Equal(t, claims.ID, decoded.ID)
	assert.True(t, decoded.ExpiresAt.Equal(exp))
}
