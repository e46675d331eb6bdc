package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"120", "120"},
		{" 99.50 ", "99.5"},
		{"", "0"},
		{"   ", "0"},
		{"abc", "0"},
		{"12abc", "0"},
		{"NaN", "0"},
		{"-40", "-40"},
		{"1e3", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in).String())
		})
	}
}

func TestSubFloor(t *testing.T) {
	assert.True(t, SubFloor(FromInt(500), FromInt(800)).IsZero())
	assert.Equal(t, "300", SubFloor(FromInt(800), FromInt(500)).String())
	assert.True(t, SubFloor(Zero, Zero).IsZero())
}

func TestClampZero(t *testing.T) {
	assert.True(t, ClampZero(FromInt(-1)).IsZero())
	assert.Equal(t, "7", ClampZero(FromInt(7)).String())
}

func TestSum(t *testing.T) {
	assert.True(t, Sum().IsZero())
	got := Sum(FromInt(100), New(0.1), New(0.2))
	assert.Equal(t, "100.3", got.String())
}

func TestUnmarshalJSON_Lenient(t *testing.T) {
	var v struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
		C Amount `json:"c"`
		D Amount `json:"d"`
		E Amount `json:"e"`
		F Amount `json:"f"`
	}
	body := `{"a": 150, "b": "250.75", "c": "", "d": null, "e": "n/a", "f": true}`
	require.NoError(t, json.Unmarshal([]byte(body), &v))

	assert.Equal(t, "150", v.A.String())
	assert.Equal(t, "250.75", v.B.String())
	assert.True(t, v.C.IsZero())
	assert.True(t, v.D.IsZero())
	assert.True(t, v.E.IsZero())
	assert.True(t, v.F.IsZero())
}

func TestMarshalJSON_BareNumber(t *testing.T) {
	out, err := json.Marshal(map[string]Amount{"total": New(12.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 12.5}`, string(out))
}

func TestBSONRoundTrip(t *testing.T) {
	type doc struct {
		Price Amount `bson:"price"`
	}
	raw, err := bson.Marshal(doc{Price: Parse("1999.99")})
	require.NoError(t, err)

	var back doc
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, "1999.99", back.Price.String())
}

func TestUnmarshalBSON_LegacyTypes(t *testing.T) {
	type doc struct {
		A Amount `bson:"a"`
		B Amount `bson:"b"`
		C Amount `bson:"c"`
		D Amount `bson:"d"`
		E Amount `bson:"e"`
	}
	raw, err := bson.Marshal(bson.M{"a": 12.5, "b": int32(7), "c": int64(9), "d": "40", "e": nil})
	require.NoError(t, err)

	var got doc
	require.NoError(t, bson.Unmarshal(raw, &got))
	assert.Equal(t, "12.5", got.A.String())
	assert.Equal(t, "7", got.B.String())
	assert.Equal(t, "9", got.C.String())
	assert.Equal(t, "40", got.D.String())
	assert.True(t, got.E.IsZero())
}
