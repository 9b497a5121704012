package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(decimal.NewFromFloat(25.50), "eur")
	require.NoError(t, err)
	assert.Equal(t, EUR, m.Currency())
	assert.Equal(t, "25.50 EUR", m.String())

	_, err = NewMoney(decimal.NewFromInt(1), "EURO")
	assert.Error(t, err)

	_, err = NewMoney(decimal.NewFromInt(1), "")
	assert.Error(t, err)
}

func TestNewMoneyFromString(t *testing.T) {
	m, err := NewMoneyFromString("42.75", USD)
	require.NoError(t, err)
	assert.Equal(t, 42.75, m.Float64())

	_, err = NewMoneyFromString("not-a-number", USD)
	assert.Error(t, err)
}

func TestNewMoneyFromCents(t *testing.T) {
	m, err := NewMoneyFromCents(1099, EUR)
	require.NoError(t, err)
	assert.Equal(t, "10.99 EUR", m.String())
}

func TestMoney_Predicates(t *testing.T) {
	assert.True(t, Zero(EUR).IsZero())
	assert.False(t, Zero(EUR).IsPositive())

	round := MustNewMoneyFromFloat(100, EUR)
	assert.True(t, round.IsRound())
	assert.True(t, round.IsPositive())
	assert.True(t, round.GreaterThan(99.99))
	assert.False(t, round.GreaterThan(100))

	fractional := MustNewMoneyFromFloat(25.50, EUR)
	assert.False(t, fractional.IsRound())
}

func TestMoney_Equal(t *testing.T) {
	a := MustNewMoneyFromFloat(10, EUR)
	b := MustNewMoneyFromFloat(10, EUR)
	c := MustNewMoneyFromFloat(10, USD)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	in := MustNewMoneyFromFloat(25.50, EUR)

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"25.50","currency":"EUR"}`, string(data))

	var out Money
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Equal(out))
}

func TestMoney_UnmarshalInvalid(t *testing.T) {
	var m Money
	assert.Error(t, json.Unmarshal([]byte(`{"amount":"x","currency":"EUR"}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"amount":"1.00","currency":"EURO"}`), &m))
}
