package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULID_ParseRoundtrip(t *testing.T) {
	id := NewULID()
	assert.False(t, id.IsZero())
	assert.NotEqual(t, id, NewULID())

	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseULID("not-a-valid-ulid")
	assert.Error(t, err)
}

func TestULID_ValueAndScan(t *testing.T) {
	id := NewULID()

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	v, err = ULID{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	tests := []struct {
		name    string
		in      any
		want    ULID
		wantErr bool
	}{
		{"string", id.String(), id, false},
		{"bytes", []byte(id.String()), id, false},
		{"nil", nil, ULID{}, false},
		{"empty", "", ULID{}, false},
		{"garbage", "zzz", ULID{}, true},
		{"int", 42, ULID{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ULID
			err := got.Scan(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestULID_JSON(t *testing.T) {
	type wrapper struct {
		ID    ULID `json:"id"`
		Owner ULID `json:"owner"`
	}
	in := wrapper{ID: NewULID()}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"owner":null`)

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"id":42}`), &out))
}

func TestBaseModel_BeforeCreate(t *testing.T) {
	var b BaseModel
	require.NoError(t, b.BeforeCreate(nil))
	assert.False(t, b.ID.IsZero())

	existing := b.ID
	require.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, existing, b.ID)
}
