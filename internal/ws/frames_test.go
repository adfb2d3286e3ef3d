package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePKListFrame(t *testing.T) {
	t.Parallel()

	idA := uuid.New()
	idB := uuid.New()

	tests := []struct {
		name    string
		payload string
		want    []uuid.UUID
		wantErr bool
	}{
		{
			name:    "bare identifier normalizes to one-element list",
			payload: `{"pk_list": "` + idA.String() + `"}`,
			want:    []uuid.UUID{idA},
		},
		{
			name:    "list of identifiers",
			payload: `{"pk_list": ["` + idA.String() + `", "` + idB.String() + `"]}`,
			want:    []uuid.UUID{idA, idB},
		},
		{
			name:    "empty list is valid and clears the watch set",
			payload: `{"pk_list": []}`,
			want:    []uuid.UUID{},
		},
		{
			name:    "missing pk_list",
			payload: `{"other": 1}`,
			wantErr: true,
		},
		{
			name:    "null pk_list",
			payload: `{"pk_list": null}`,
			wantErr: true,
		},
		{
			name:    "numeric pk_list",
			payload: `{"pk_list": 42}`,
			wantErr: true,
		},
		{
			name:    "malformed identifier",
			payload: `{"pk_list": "not-a-uuid"}`,
			wantErr: true,
		},
		{
			name:    "malformed identifier in list",
			payload: `{"pk_list": ["` + idA.String() + `", "nope"]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `pk_list=` + idA.String(),
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePKListFrame([]byte(tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPKList)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
